// Package mailer отправляет транзакционные письма сервиса через API Brevo.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

var (
	// ErrNotConfigured возвращается, если ключ API почтового провайдера не задан.
	ErrNotConfigured = errors.New("mail provider not configured")
	// ErrRejected возвращается, если провайдер отклонил письмо.
	ErrRejected = errors.New("mail rejected by provider")
)

// Message - одно письмо.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

// Sender отправляет готовое письмо.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// BrevoConfig содержит параметры клиента Brevo.
// Timeout ограничивает отправку письма целиком, вместе со всеми повторами.
type BrevoConfig struct {
	APIKey      string
	BaseURL     string
	SenderEmail string
	SenderName  string
	Timeout     time.Duration
	RetryMax    int
}

// BrevoClient инкапсулирует HTTP-взаимодействие с API транзакционных писем Brevo.
type BrevoClient struct {
	baseURL     string
	apiKey      string
	senderEmail string
	senderName  string
	timeout     time.Duration
	httpClient  *retryablehttp.Client
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

type brevoResponse struct {
	MessageID string `json:"messageId"`
	Message   string `json:"message"`
}

// NewBrevoClient создаёт клиент Brevo. Повторы выполняются при сетевых ошибках, 429 и 5xx.
func NewBrevoClient(cfg BrevoConfig) *BrevoClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	retryMax := cfg.RetryMax
	if retryMax < 0 {
		retryMax = 0
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: timeout}
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil

	return &BrevoClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
		timeout:     timeout,
		httpClient:  rc,
	}
}

// Send отправляет письмо через POST /v3/smtp/email.
func (c *BrevoClient) Send(ctx context.Context, msg Message) error {
	if c == nil || c.apiKey == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(brevoRequest{
		Sender:      brevoContact{Email: c.senderEmail, Name: c.senderName},
		To:          []brevoContact{{Email: msg.To, Name: msg.ToName}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/smtp/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var br brevoResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &br) == nil && br.Message != "" {
			return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, br.Message)
		}
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	return nil
}

// LogSender пишет письма в лог вместо отправки. Используется в режиме разработки без ключа API.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender создаёт LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send логирует письмо.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("mail not sent, provider disabled",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("html", msg.HTML),
	)
	return nil
}
