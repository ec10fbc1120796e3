// Package assertion mints the short-lived service credentials that
// authenticate edge-to-backend calls on behalf of a backend user.
package assertion

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Signer signs assertion claims. The backend must verify with the same
// algorithm and key material.
type Signer interface {
	Sign(claims jwt.Claims) (string, error)
	Method() jwt.SigningMethod
	VerificationKey() any
}

// HMACSigner signs with HS256 and a shared secret.
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret []byte) (*HMACSigner, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("assertion secret is required")
	}
	return &HMACSigner{secret: append([]byte(nil), secret...)}, nil
}

func (s *HMACSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}
	return signed, nil
}

func (s *HMACSigner) Method() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

func (s *HMACSigner) VerificationKey() any {
	return s.secret
}

// Minter issues a fresh assertion per call. Assertions are never cached.
type Minter struct {
	signer Signer
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewMinter(signer Signer, issuer string, ttl time.Duration) (*Minter, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("assertion ttl must be positive")
	}
	return &Minter{signer: signer, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Mint returns a signed assertion whose subject is backendUserID.
func (m *Minter) Mint(backendUserID string) (string, error) {
	if backendUserID == "" {
		return "", fmt.Errorf("backend user id is required")
	}

	issuedAt := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   backendUserID,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(m.ttl)),
		ID:        uuid.NewString(),
	}

	return m.signer.Sign(claims)
}

// Verify parses an assertion the way the backend is expected to. The edge
// never calls it on the request path.
func (m *Minter) Verify(assertion string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(assertion, claims, func(token *jwt.Token) (any, error) {
		return m.signer.VerificationKey(), nil
	},
		jwt.WithValidMethods([]string{m.signer.Method().Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid assertion: %w", err)
	}
	return claims, nil
}
