// Package auth provides sample authentication and authorization filters:
// JWT bearer tokens, HTTP Basic against bcrypt hashes, and the
// IsAuthenticated and HasRole checks.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/artpar/actionkit/adapters/clock"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims carried by bearer tokens.
type Claims struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenConfig configures a TokenService.
type TokenConfig struct {
	// Secret signs tokens with HS256. Empty generates a random secret, so
	// tokens only survive as long as the process.
	Secret string
	// Issuer is written into issued tokens and, when set, required on
	// validation.
	Issuer     string
	Expiration time.Duration
	Clock      clock.Clock
}

// TokenService issues and validates HS256 tokens. Safe for concurrent use.
type TokenService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
	clock      clock.Clock
}

// NewTokenService creates a token service.
func NewTokenService(cfg TokenConfig) *TokenService {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		rand.Read(secret)
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = 24 * time.Hour
	}
	return &TokenService{
		secret:     secret,
		issuer:     cfg.Issuer,
		expiration: cfg.Expiration,
		clock:      clock.OrReal(cfg.Clock),
	}
}

// Issue signs a token for subject.
func (s *TokenService) Issue(subject, name string, roles []string) (string, time.Time, error) {
	now := s.clock.Now().UTC()
	expiresAt := now.Add(s.expiration)

	claims := Claims{
		Name:  name,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate checks the signature, expiry and issuer of a token.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token without subject")
	}
	return claims, nil
}

// Refresh issues a new token for the holder of a valid one.
func (s *TokenService) Refresh(tokenString string) (string, time.Time, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.Issue(claims.Subject, claims.Name, claims.Roles)
}

// GenerateSecret generates a random secret suitable for JWT signing.
func GenerateSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
