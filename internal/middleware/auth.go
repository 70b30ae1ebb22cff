// Package middleware содержит HTTP middleware сервиса LIVRINI.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mmeshcher/livrini/internal/model"
	"github.com/mmeshcher/livrini/internal/token"
)

type contextKey string

const identityKey contextKey = "identity"

const (
	codeTokenMissing = "token_missing"
	codeTokenExpired = "token_expired"
	codeTokenInvalid = "token_invalid"
	codeForbidden    = "forbidden"
)

// TokenParser проверяет токен сессии.
type TokenParser interface {
	Parse(raw string) (token.Identity, error)
}

// AuthMiddleware проверяет токен из заголовка Authorization: Bearer <token>.
type AuthMiddleware struct {
	tokens TokenParser
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware.
func NewAuthMiddleware(tokens TokenParser) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Middleware проверяет токен и добавляет личность пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Accès non autorisé, token manquant", codeTokenMissing)
			return
		}

		id, err := a.tokens.Parse(raw)
		if err != nil {
			if errors.Is(err, token.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "Session expirée, veuillez vous reconnecter", codeTokenExpired)
				return
			}
			writeError(w, http.StatusUnauthorized, "Token invalide", codeTokenInvalid)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireRole пропускает только пользователей с одной из указанных ролей.
// Должен стоять после Middleware.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetIdentity(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Accès non autorisé, token manquant", codeTokenMissing)
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Accès refusé pour ce rôle", codeForbidden)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// WithIdentity кладёт личность пользователя в контекст.
func WithIdentity(ctx context.Context, id token.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity извлекает личность пользователя из контекста запроса.
func GetIdentity(ctx context.Context) (token.Identity, bool) {
	id, ok := ctx.Value(identityKey).(token.Identity)
	return id, ok
}

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Message: message, Code: code})
}
