// Package token выпускает и проверяет подписанные сессионные токены (JWT).
package token

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mmeshcher/livrini/internal/model"
)

var (
	// ErrTokenExpired возвращается для корректно подписанного, но просроченного токена.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid возвращается для повреждённого или неверно подписанного токена.
	ErrTokenInvalid = errors.New("token invalid")
)

// Identity - данные о пользователе, которые кладутся в токен.
type Identity struct {
	UserID uuid.UUID
	Role   model.Role
	Email  string
	Name   string
}

// Claims - набор утверждений сессионного токена.
type Claims struct {
	Role  model.Role `json:"role"`
	Email string     `json:"email"`
	Name  string     `json:"name"`
	jwt.RegisteredClaims
}

// Config содержит параметры выпуска токенов.
type Config struct {
	Secret string
	TTL    time.Duration
	Leeway time.Duration
}

// Issuer подписывает и проверяет токены алгоритмом HS256.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// NewIssuer создаёт Issuer. Пустой секрет заменяется случайным ключом: токены не переживут перезапуск.
func NewIssuer(cfg Config) *Issuer {
	key := []byte(cfg.Secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	return &Issuer{
		secret: key,
		ttl:    ttl,
		leeway: cfg.Leeway,
		now:    time.Now,
	}
}

// Issue выпускает токен для указанной личности и возвращает момент его истечения.
func (i *Issuer) Issue(id Identity) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := Claims{
		Role:  id.Role,
		Email: id.Email,
		Name:  id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse проверяет подпись и срок действия токена и возвращает закодированную личность.
func (i *Issuer) Parse(raw string) (Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(i.leeway),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: bad subject", ErrTokenInvalid)
	}

	return Identity{
		UserID: userID,
		Role:   claims.Role,
		Email:  claims.Email,
		Name:   claims.Name,
	}, nil
}
