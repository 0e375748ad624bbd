// Package auth verifies user session tokens and cron-trigger credentials.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"multichain-wallet-api/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotConfigured = errors.New("auth not configured")
)

// Service verifies bearer tokens against the configured secrets.
type Service struct {
	cfg *config.Config
}

func NewService(cfg *config.Config) *Service {
	return &Service{cfg: cfg}
}

// UserFromRequest resolves the authenticated user id from the Authorization
// header. The resolved id is the only identity trusted for row scoping;
// request bodies never are.
func (s *Service) UserFromRequest(r *http.Request) (string, error) {
	token := bearerToken(r)
	if token == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	return s.UserFromToken(token)
}

// UserFromToken verifies an HS256 session token and extracts the user id
// from its sub (or user_id) claim.
func (s *Service) UserFromToken(tokenString string) (string, error) {
	if s.cfg.JWTSecret == "" {
		return "", ErrNotConfigured
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: invalid token claims", ErrUnauthorized)
	}

	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	if userID, ok := claims["user_id"].(string); ok && userID != "" {
		return userID, nil
	}
	return "", fmt.Errorf("%w: token carries no user id", ErrUnauthorized)
}

// CheckCron authorizes a batch-sweep trigger: either the shared cron secret
// as a bearer token, or the platform-injected cron header.
func (s *Service) CheckCron(r *http.Request) error {
	if s.cfg.CronSecret == "" {
		return ErrNotConfigured
	}
	if bearerToken(r) == s.cfg.CronSecret {
		return nil
	}
	if s.cfg.CronHeaderName != "" && r.Header.Get(s.cfg.CronHeaderName) != "" {
		return nil
	}
	return fmt.Errorf("%w: invalid cron credentials", ErrUnauthorized)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
