package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// События Stripe, которые обрабатывает сервис.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

var (
	// ErrInvalidSignature возвращается, если подпись webhook не прошла проверку.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrInvalidPayload возвращается, если тело webhook не разбирается.
	ErrInvalidPayload = errors.New("invalid webhook payload")
	// ErrWebhookNotConfigured возвращается, если секрет webhook не задан и неподписанные события запрещены.
	ErrWebhookNotConfigured = errors.New("webhook secret not configured")
)

// WebhookEvent - событие провайдера в терминах сервиса.
// PaymentIntentID заполняется только для событий платёжного намерения.
type WebhookEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
	FailureMessage  string
}

// WebhookVerifier проверяет подпись и разбирает события Stripe.
type WebhookVerifier struct {
	secret        string
	allowUnsigned bool
}

// NewWebhookVerifier создаёт верификатор. Без секрета события принимаются только при allowUnsigned.
func NewWebhookVerifier(secret string, allowUnsigned bool) *WebhookVerifier {
	return &WebhookVerifier{secret: secret, allowUnsigned: allowUnsigned}
}

// ParseWebhook проверяет заголовок Stripe-Signature и возвращает событие.
func (v *WebhookVerifier) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	var event stripe.Event

	switch {
	case v.secret != "":
		ev, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		event = ev
	case v.allowUnsigned:
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	default:
		return nil, ErrWebhookNotConfigured
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if out.Type != EventPaymentSucceeded && out.Type != EventPaymentFailed {
		return out, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event %s has no object", ErrInvalidPayload, event.ID)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	out.PaymentIntentID = pi.ID
	if pi.LastPaymentError != nil {
		out.FailureMessage = pi.LastPaymentError.Msg
	}

	return out, nil
}
