// Package auth issues and validates the API's bearer tokens. Two principal
// kinds exist: data subjects (pseudonymous user ID) and registered controllers
// (controller reference). The token carries which one it is; handlers decide
// what each may do.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"consentire/internal/platform/middleware"
	domainerrors "consentire/pkg/domain-errors"
	"consentire/pkg/domain"
)

const (
	roleUser       = "user"
	roleController = "controller"
)

// Claims is the JWT payload for consentire tokens.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService creates and validates HS256 tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
	now        func() time.Time
}

type Option func(*TokenService)

func WithClock(now func() time.Time) Option {
	return func(s *TokenService) { s.now = now }
}

func NewTokenService(signingKey, issuer string, tokenTTL time.Duration, opts ...Option) *TokenService {
	s := &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		tokenTTL:   tokenTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueUserToken creates a token for a registered data subject.
func (s *TokenService) IssueUserToken(userID domain.UserID) (string, error) {
	return s.issue(userID.String(), roleUser)
}

// IssueControllerToken creates a token for a registered controller.
func (s *TokenService) IssueControllerToken(ref domain.ControllerRef) (string, error) {
	return s.issue(ref.String(), roleController)
}

func (s *TokenService) issue(subject, role string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token, returning the principal for the
// auth middleware.
func (s *TokenService) ValidateToken(tokenString string) (*middleware.TokenClaims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnauthorized, "invalid token")
	}
	if !token.Valid {
		return nil, domainerrors.New(domainerrors.CodeUnauthorized, "invalid token")
	}

	switch claims.Role {
	case roleUser:
		return &middleware.TokenClaims{UserID: claims.Subject}, nil
	case roleController:
		return &middleware.TokenClaims{ControllerRef: claims.Subject}, nil
	default:
		return nil, domainerrors.New(domainerrors.CodeUnauthorized, "unknown token role")
	}
}
