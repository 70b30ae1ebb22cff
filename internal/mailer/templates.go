package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/mmeshcher/livrini/internal/model"
)

var otpTemplate = template.Must(template.New("otp").Parse(`
<div style="font-family:Helvetica,Arial,sans-serif;font-size:16px;color:#222;max-width:600px;margin:0 auto;padding:20px;">
  <div style="text-align:center;margin-bottom:30px;">
    <h1 style="color:#059669;margin:0;">LIVRINI</h1>
  </div>
  <p>Bonjour,</p>
  <p>Voici votre code <strong>{{.Kind}}</strong> :</p>
  <div style="background:#f0fdf4;border:2px solid #059669;border-radius:10px;padding:20px;text-align:center;margin:20px 0;">
    <p style="font-size:32px;font-weight:700;margin:0;letter-spacing:8px;color:#059669;">{{.Code}}</p>
  </div>
  <p style="color:#666;">Ce code expire dans <strong>{{.Minutes}} minutes</strong>.</p>
  <p style="color:#666;">Si vous n'avez pas demandé ce code, ignorez ce message.</p>
  <hr style="border:none;border-top:1px solid #eee;margin:30px 0;">
  <p style="color:#999;font-size:12px;text-align:center;">L'équipe LIVRINI</p>
</div>`))

var welcomeTemplate = template.Must(template.New("welcome").Parse(`
<div style="font-family:Helvetica,Arial,sans-serif;font-size:16px;color:#222;max-width:600px;margin:0 auto;padding:20px;">
  <div style="text-align:center;margin-bottom:30px;">
    <h1 style="color:#059669;margin:0;">LIVRINI</h1>
  </div>
  <p>Bonjour {{.FirstName}},</p>
  <p>Bienvenue sur <strong>LIVRINI</strong> ! Nous sommes ravis de vous compter parmi nos utilisateurs.</p>
  <p>Vous pouvez maintenant profiter de tous nos services de livraison.</p>
  <hr style="border:none;border-top:1px solid #eee;margin:30px 0;">
  <p style="color:#999;font-size:12px;text-align:center;">Bon shopping,<br/>L'équipe LIVRINI</p>
</div>`))

// Mailer формирует письма сервиса и передаёт их Sender.
type Mailer struct {
	sender Sender
}

// New создаёт Mailer поверх указанного Sender.
func New(sender Sender) *Mailer {
	return &Mailer{sender: sender}
}

// SendOTP отправляет одноразовый код подтверждения email или сброса пароля.
func (m *Mailer) SendOTP(ctx context.Context, to, code string, purpose model.OTPPurpose, ttl time.Duration) error {
	subject := "Votre code de vérification LIVRINI"
	kind := "de vérification"
	if purpose == model.OTPPurposeReset {
		subject = "Votre code de réinitialisation LIVRINI"
		kind = "de réinitialisation"
	}

	minutes := int(ttl / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	var buf bytes.Buffer
	if err := otpTemplate.Execute(&buf, struct {
		Kind    string
		Code    string
		Minutes int
	}{kind, code, minutes}); err != nil {
		return fmt.Errorf("render otp mail: %w", err)
	}

	return m.sender.Send(ctx, Message{To: to, Subject: subject, HTML: buf.String()})
}

// SendWelcome отправляет приветственное письмо после подтверждения email.
func (m *Mailer) SendWelcome(ctx context.Context, to, firstName string) error {
	var buf bytes.Buffer
	if err := welcomeTemplate.Execute(&buf, struct{ FirstName string }{firstName}); err != nil {
		return fmt.Errorf("render welcome mail: %w", err)
	}

	return m.sender.Send(ctx, Message{To: to, ToName: firstName, Subject: "Bienvenue sur LIVRINI", HTML: buf.String()})
}
