package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired signals that the provided bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the provided bearer token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Token is the decoded result of a successful verification.
type Token struct {
	UID    string
	Claims map[string]any
}

// TokenVerifier verifies bearer tokens presented by API clients.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*Token, error)
}

// HMACVerifier validates HS256-signed JWTs against a shared secret.
type HMACVerifier struct {
	secret   []byte
	issuer   string
	audience string
	clock    func() time.Time
}

// HMACOption customises HMACVerifier behaviour.
type HMACOption func(*HMACVerifier)

// WithIssuer requires the iss claim to match the provided value.
func WithIssuer(issuer string) HMACOption {
	return func(v *HMACVerifier) {
		v.issuer = strings.TrimSpace(issuer)
	}
}

// WithAudience requires the aud claim to include the provided value.
func WithAudience(audience string) HMACOption {
	return func(v *HMACVerifier) {
		v.audience = strings.TrimSpace(audience)
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) HMACOption {
	return func(v *HMACVerifier) {
		if now != nil {
			v.clock = now
		}
	}
}

// NewHMACVerifier constructs a verifier for HS256 tokens signed with secret.
func NewHMACVerifier(secret string, opts ...HMACOption) (*HMACVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	v := &HMACVerifier{
		secret: []byte(secret),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// VerifyToken parses and validates the JWT, returning the decoded subject and claims.
func (v *HMACVerifier) VerifyToken(_ context.Context, tokenStr string) (*Token, error) {
	claims := jwt.MapClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}
	parser := jwt.NewParser(parserOpts...)

	parsed, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return &Token{
		UID:    strings.TrimSpace(subject),
		Claims: map[string]any(claims),
	}, nil
}
