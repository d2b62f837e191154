package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tuweeter/internal/config"
)

// AuthService issues signed access tokens. Tokens are verified by the
// transport middleware with the same secret.
type AuthService struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{
		secret: []byte(cfg.JWTSecret),
		maxAge: time.Duration(cfg.AccessTokenMaxAge) * time.Second,
		now:    time.Now,
	}
}

// IssueToken signs an HS256 token carrying user_id.
func (s *AuthService) IssueToken(userID int64) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(s.maxAge).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
