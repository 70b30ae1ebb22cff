package token

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/livrini/internal/model"
)

func newTestIssuer(now time.Time) *Issuer {
	iss := NewIssuer(Config{Secret: "test-secret", TTL: time.Hour, Leeway: time.Second})
	iss.now = func() time.Time { return now }
	return iss
}

func TestIssueAndParse(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	iss := newTestIssuer(now)

	id := Identity{
		UserID: uuid.New(),
		Role:   model.RoleClient,
		Email:  "a@b.com",
		Name:   "B A",
	}

	raw, expiresAt, err := iss.Issue(id)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt)

	got, err := iss.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestParse_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	iss := newTestIssuer(now)

	raw, _, err := iss.Issue(Identity{UserID: uuid.New(), Role: model.RoleAdmin})
	require.NoError(t, err)

	iss.now = func() time.Time { return now.Add(2 * time.Hour) }

	_, err = iss.Parse(raw)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParse_WithinLeeway(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	iss := newTestIssuer(now)

	raw, _, err := iss.Issue(Identity{UserID: uuid.New(), Role: model.RoleAdmin})
	require.NoError(t, err)

	iss.now = func() time.Time { return now.Add(time.Hour + 500*time.Millisecond) }

	_, err = iss.Parse(raw)
	assert.NoError(t, err)
}

func TestParse_Invalid(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	iss := newTestIssuer(now)

	raw, _, err := iss.Issue(Identity{UserID: uuid.New(), Role: model.RoleClient})
	require.NoError(t, err)

	other := NewIssuer(Config{Secret: "another-secret", TTL: time.Hour})
	other.now = iss.now

	tests := []struct {
		name  string
		token string
		iss   *Issuer
	}{
		{name: "garbage", token: "not-a-token", iss: iss},
		{name: "wrong secret", token: raw, iss: other},
		{name: "tampered payload", token: tamper(raw), iss: iss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.iss.Parse(tt.token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
			assert.NotErrorIs(t, err, ErrTokenExpired)
		})
	}
}

func TestNewIssuer_RandomSecretWhenEmpty(t *testing.T) {
	a := NewIssuer(Config{})
	b := NewIssuer(Config{})

	raw, _, err := a.Issue(Identity{UserID: uuid.New(), Role: model.RoleClient})
	require.NoError(t, err)

	_, err = b.Parse(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.Equal(t, 30*24*time.Hour, a.ttl)
}

func tamper(raw string) string {
	parts := strings.Split(raw, ".")
	payload := []byte(parts[1])
	if payload[0] == 'e' {
		payload[0] = 'f'
	} else {
		payload[0] = 'e'
	}
	parts[1] = string(payload)
	return strings.Join(parts, ".")
}
