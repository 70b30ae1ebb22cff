package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

func signPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(typ, intentID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": %q,
		"api_version": "2020-08-27",
		"data": {"object": {
			"id": %q,
			"object": "payment_intent",
			"status": "requires_payment_method",
			"last_payment_error": {"message": "Votre carte a été refusée."}
		}}
	}`, typ, intentID))
}

func TestParseWebhook_SignedEvents(t *testing.T) {
	v := NewWebhookVerifier(testWebhookSecret, false)

	tests := []struct {
		name        string
		typ         string
		wantIntent  string
		wantFailure string
	}{
		{name: "succeeded", typ: EventPaymentSucceeded, wantIntent: "pi_ok", wantFailure: "Votre carte a été refusée."},
		{name: "failed", typ: EventPaymentFailed, wantIntent: "pi_ok", wantFailure: "Votre carte a été refusée."},
		{name: "ignored type", typ: "charge.refunded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := eventPayload(tt.typ, "pi_ok")

			ev, err := v.ParseWebhook(payload, signPayload(payload, testWebhookSecret, time.Now()))
			require.NoError(t, err)
			assert.Equal(t, "evt_1", ev.ID)
			assert.Equal(t, tt.typ, ev.Type)
			assert.Equal(t, tt.wantIntent, ev.PaymentIntentID)
			assert.Equal(t, tt.wantFailure, ev.FailureMessage)
		})
	}
}

func TestParseWebhook_Rejections(t *testing.T) {
	payload := eventPayload(EventPaymentSucceeded, "pi_ok")

	tests := []struct {
		name      string
		verifier  *WebhookVerifier
		signature string
		wantErr   error
	}{
		{
			name:      "wrong secret",
			verifier:  NewWebhookVerifier(testWebhookSecret, false),
			signature: signPayload(payload, "whsec_other", time.Now()),
			wantErr:   ErrInvalidSignature,
		},
		{
			name:      "stale timestamp",
			verifier:  NewWebhookVerifier(testWebhookSecret, false),
			signature: signPayload(payload, testWebhookSecret, time.Now().Add(-time.Hour)),
			wantErr:   ErrInvalidSignature,
		},
		{
			name:     "missing signature",
			verifier: NewWebhookVerifier(testWebhookSecret, false),
			wantErr:  ErrInvalidSignature,
		},
		{
			name:     "no secret in production",
			verifier: NewWebhookVerifier("", false),
			wantErr:  ErrWebhookNotConfigured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.verifier.ParseWebhook(payload, tt.signature)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseWebhook_UnsignedInDevelopment(t *testing.T) {
	v := NewWebhookVerifier("", true)

	ev, err := v.ParseWebhook(eventPayload(EventPaymentFailed, "pi_dev"), "")
	require.NoError(t, err)
	assert.Equal(t, "pi_dev", ev.PaymentIntentID)

	_, err = v.ParseWebhook([]byte("{"), "")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
