package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/livrini/internal/model"
	"github.com/mmeshcher/livrini/internal/token"
)

func newTestIssuer(ttl time.Duration) *token.Issuer {
	return token.NewIssuer(token.Config{Secret: "test-secret", TTL: ttl})
}

func decodeCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success {
		t.Fatalf("error body must have success=false")
	}
	return body.Code
}

func TestAuthMiddleware_WithValidToken(t *testing.T) {
	issuer := newTestIssuer(time.Hour)
	m := NewAuthMiddleware(issuer)

	userID := uuid.New()
	raw, _, err := issuer.Issue(token.Identity{UserID: userID, Role: model.RoleClient, Email: "a@b.tn"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetIdentity(r.Context())
		if !ok {
			t.Fatalf("identity not in context")
		}
		if id.UserID != userID {
			t.Fatalf("user id from context = %s, want %s", id.UserID, userID)
		}
		if id.Role != model.RoleClient {
			t.Fatalf("role from context = %s, want client", id.Role)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+raw)

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	issuer := newTestIssuer(time.Hour)
	m := NewAuthMiddleware(issuer)

	other := token.NewIssuer(token.Config{Secret: "other-secret", TTL: time.Hour})
	foreign, _, err := other.Issue(token.Identity{UserID: uuid.New(), Role: model.RoleAdmin})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{name: "no header", header: "", wantCode: codeTokenMissing},
		{name: "wrong scheme", header: "Token abc", wantCode: codeTokenMissing},
		{name: "empty bearer", header: "Bearer ", wantCode: codeTokenMissing},
		{name: "garbage", header: "Bearer not-a-jwt", wantCode: codeTokenInvalid},
		{name: "foreign signature", header: "Bearer " + foreign, wantCode: codeTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if code := decodeCode(t, w); code != tt.wantCode {
				t.Fatalf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

type expiredParser struct{}

func (expiredParser) Parse(string) (token.Identity, error) {
	return token.Identity{}, token.ErrTokenExpired
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	m := NewAuthMiddleware(expiredParser{})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer whatever")

	m.Middleware(http.NotFoundHandler()).ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := decodeCode(t, w); code != codeTokenExpired {
		t.Fatalf("code = %q, want %q", code, codeTokenExpired)
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireRole(model.RoleAdmin, model.RoleFournisseur)(ok)

	tests := []struct {
		name       string
		identity   *token.Identity
		wantStatus int
	}{
		{name: "admin", identity: &token.Identity{Role: model.RoleAdmin}, wantStatus: http.StatusNoContent},
		{name: "fournisseur", identity: &token.Identity{Role: model.RoleFournisseur}, wantStatus: http.StatusNoContent},
		{name: "client", identity: &token.Identity{Role: model.RoleClient}, wantStatus: http.StatusForbidden},
		{name: "anonymous", identity: nil, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.identity != nil {
				r = r.WithContext(WithIdentity(r.Context(), *tt.identity))
			}
			w := httptest.NewRecorder()

			h.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
