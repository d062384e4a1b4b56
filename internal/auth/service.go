package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/david/quest-radar/internal/logger"
)

// AdminSubject is the token subject granted to holders of the admin secret.
const AdminSubject = "admin"

var (
	ErrInvalidCreds  = errors.New("invalid credentials")
	ErrTokenDisabled = errors.New("token issuance disabled: no admin secret hash configured")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

// Service issues and verifies the bearer tokens protecting write routes.
type Service struct {
	secret    []byte
	adminHash []byte
	ttl       time.Duration
	now       func() time.Time
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewService builds a Service. An empty jwtSecret gets an ephemeral random
// one, so tokens stop verifying when the process restarts.
func NewService(jwtSecret, adminSecretHash string, ttl time.Duration, log logger.Logger) (*Service, error) {
	secret := strings.TrimSpace(jwtSecret)
	if secret == "" {
		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate JWT fallback secret: %w", err)
		}
		secret = base64.RawURLEncoding.EncodeToString(buf)
		log.Warn("JWT_SECRET is not set; using ephemeral in-memory fallback secret")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		secret:    []byte(secret),
		adminHash: []byte(strings.TrimSpace(adminSecretHash)),
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// HashSecret produces the bcrypt hash to configure as ADMIN_SECRET_HASH.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}
	return string(hash), nil
}

// IssueToken exchanges the admin secret for a signed token.
func (s *Service) IssueToken(adminSecret string) (*TokenResponse, error) {
	if len(s.adminHash) == 0 {
		return nil, ErrTokenDisabled
	}
	if err := bcrypt.CompareHashAndPassword(s.adminHash, []byte(adminSecret)); err != nil {
		return nil, ErrInvalidCreds
	}

	now := s.now()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   AdminSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &TokenResponse{Token: token, ExpiresAt: expires.UTC()}, nil
}

// ParseToken verifies tokenString and returns its subject.
func (s *Service) ParseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
