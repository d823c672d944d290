// Package token mints and validates the stateless bearer tokens presented on
// authenticated requests. Tokens are signed with a process-wide secret and
// carry the identity claims the client caches; there is no revocation list,
// a token stays valid until it expires.
package token

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lumichess/account-service/internal/account/entity"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims embeds the registered claims plus the identity fields the client
// needs without a round trip.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type Config struct {
	Secret string
	TTL    time.Duration
}

// ConfigFromEnv reads the signing secret and validity window from env vars.
func ConfigFromEnv() Config {
	ttl := 7 * 24 * time.Hour
	if v := os.Getenv("JWT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			ttl = d
		}
	}
	return Config{Secret: os.Getenv("JWT_SECRET"), TTL: ttl}
}

// Service issues and checks bearer tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
}

func NewService(cfg Config) *Service {
	return &Service{secret: []byte(cfg.Secret), ttl: cfg.TTL}
}

// Mint signs a token for the account. Operations that change identity
// claims (update, verify-email) re-mint so the client's cached claims stay
// consistent with the store.
func (s *Service) Mint(a *entity.Account) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID:   a.ID,
		Email:    a.Email,
		Username: a.Username,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

// Validate parses and verifies a token string. Malformed, badly signed and
// expired tokens all come back as ErrInvalidToken.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !t.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
