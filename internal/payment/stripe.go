// Package payment содержит шлюз к платёжному провайдеру Stripe.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

var (
	// ErrNotConfigured возвращается, если секретный ключ Stripe не задан.
	ErrNotConfigured = errors.New("payment provider not configured")
	// ErrInvalidAmount возвращается для неположительной суммы.
	ErrInvalidAmount = errors.New("invalid payment amount")
	// ErrPaymentFailed возвращается, если провайдер отклонил платёж.
	ErrPaymentFailed = errors.New("payment failed")
	// ErrProviderDown возвращается при недоступности провайдера.
	ErrProviderDown = errors.New("payment provider unavailable")
	// ErrIntentNotFound возвращается, если платёжное намерение не найдено.
	ErrIntentNotFound = errors.New("payment intent not found")
)

// StatusSucceeded - статус успешно оплаченного намерения.
const StatusSucceeded = string(stripe.PaymentIntentStatusSucceeded)

// Intent - платёжное намерение в терминах сервиса.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Currency     string
	AmountMinor  int64
	Amount       float64
	Metadata     map[string]string
}

// Succeeded сообщает, что платёж проведён.
func (i *Intent) Succeeded() bool {
	return i.Status == StatusSucceeded
}

// StripeGateway реализует работу с платёжными намерениями через клиент Stripe.
type StripeGateway struct {
	client *client.API
}

// NewStripeGateway создаёт шлюз. При пустом ключе шлюз создаётся, но все вызовы возвращают ErrNotConfigured.
func NewStripeGateway(apiKey string) *StripeGateway {
	if apiKey == "" {
		return &StripeGateway{}
	}

	sc := &client.API{}
	sc.Init(apiKey, nil)

	return &StripeGateway{client: sc}
}

// CreateIntent создаёт платёжное намерение на сумму amount в валюте currency.
func (g *StripeGateway) CreateIntent(ctx context.Context, amount float64, currency string, metadata map[string]string) (*Intent, error) {
	if g.client == nil {
		return nil, ErrNotConfigured
	}

	currency = strings.ToLower(strings.TrimSpace(currency))
	minor, err := ToMinorUnits(amount, currency)
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if len(metadata) > 0 {
		params.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			params.Metadata[k] = v
		}
	}
	params.Context = ctx

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}

	return toIntent(pi), nil
}

// GetIntent возвращает платёжное намерение по идентификатору.
func (g *StripeGateway) GetIntent(ctx context.Context, id string) (*Intent, error) {
	if g.client == nil {
		return nil, ErrNotConfigured
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.client.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}

	return toIntent(pi), nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	currency := string(pi.Currency)
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Currency:     currency,
		AmountMinor:  pi.Amount,
		Amount:       FromMinorUnits(pi.Amount, currency),
		Metadata:     pi.Metadata,
	}
}

// mapStripeError переводит ошибки stripe-go в ошибки пакета.
func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Code {
		case stripe.ErrorCodeCardDeclined:
			return fmt.Errorf("%w: card was declined (%s)", ErrPaymentFailed, stripeErr.Msg)
		case stripe.ErrorCodeExpiredCard:
			return fmt.Errorf("%w: card has expired", ErrPaymentFailed)
		case stripe.ErrorCodeBalanceInsufficient:
			return fmt.Errorf("%w: insufficient funds", ErrPaymentFailed)
		case stripe.ErrorCodeResourceMissing:
			return ErrIntentNotFound
		}

		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
			return ErrProviderDown
		}
		return fmt.Errorf("%w: %s", ErrPaymentFailed, stripeErr.Msg)
	}
	return fmt.Errorf("%w: %v", ErrProviderDown, err)
}

// Число знаков дробной части для валют, отличающихся от двух.
var currencyExponents = map[string]int{
	"tnd": 3,
	"bhd": 3,
	"kwd": 3,
	"omr": 3,
	"jod": 3,
	"jpy": 0,
	"krw": 0,
	"vnd": 0,
	"xof": 0,
}

func exponent(currency string) int {
	if e, ok := currencyExponents[strings.ToLower(currency)]; ok {
		return e
	}
	return 2
}

// ToMinorUnits переводит сумму в минимальные единицы валюты (для TND это миллимы).
func ToMinorUnits(amount float64, currency string) (int64, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, ErrInvalidAmount
	}
	return int64(math.Round(amount * math.Pow10(exponent(currency)))), nil
}

// FromMinorUnits переводит сумму из минимальных единиц валюты.
func FromMinorUnits(minor int64, currency string) float64 {
	return float64(minor) / math.Pow10(exponent(currency))
}
