// Package bridge carries a session reference across an origin boundary as a
// short-lived HMAC-signed token.
package bridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidToken covers every decode failure: bad structure, bad signature,
// bad payload, expiry and replay. Callers must not tell them apart.
var ErrInvalidToken = errors.New("invalid bridge token")

const (
	separator    = "."
	signatureLen = 16
)

var encoding = base64.RawURLEncoding

// Claims is the signed payload of a bridge token.
type Claims struct {
	SessionRef string `json:"s"`
	ExpiresAt  int64  `json:"e"`
	Nonce      string `json:"n"`
}

// Expiry returns the expiry as a time.
func (c Claims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

// Codec encodes and decodes bridge tokens. It is safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Codec)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(secret []byte, ttl time.Duration, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("bridge secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("bridge token ttl must be positive")
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the fixed token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Encode mints a token for sessionRef that expires after the codec TTL.
func (c *Codec) Encode(sessionRef string) (string, error) {
	if sessionRef == "" {
		return "", fmt.Errorf("session reference is required")
	}

	claims := Claims{
		SessionRef: sessionRef,
		ExpiresAt:  c.now().Add(c.ttl).Unix(),
		Nonce:      uuid.NewString(),
	}

	data, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal bridge claims: %w", err)
	}

	payload := encoding.EncodeToString(data)
	return payload + separator + c.sign(payload), nil
}

// Decode verifies token and returns its session reference.
func (c *Codec) Decode(token string) (string, error) {
	claims, err := c.DecodeClaims(token)
	if err != nil {
		return "", err
	}
	return claims.SessionRef, nil
}

// DecodeClaims verifies the signature before looking at the payload, then
// checks expiry. All failures return ErrInvalidToken.
func (c *Codec) DecodeClaims(token string) (Claims, error) {
	parts := strings.Split(token, separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Claims{}, ErrInvalidToken
	}

	payload, signature := parts[0], parts[1]
	if !hmac.Equal([]byte(signature), []byte(c.sign(payload))) {
		return Claims{}, ErrInvalidToken
	}

	data, err := encoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(data, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}

	if claims.SessionRef == "" || claims.Nonce == "" {
		return Claims{}, ErrInvalidToken
	}

	if !c.now().Before(claims.Expiry()) {
		return Claims{}, ErrInvalidToken
	}

	return claims, nil
}

func (c *Codec) sign(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return encoding.EncodeToString(mac.Sum(nil)[:signatureLen])
}
