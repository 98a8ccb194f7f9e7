// Package tokens signs and verifies the compact HS256 tokens used for access
// and refresh credentials.
//
// Verify reports three distinct failure kinds so callers can react
// differently: ErrTokenMalformed, ErrTokenSignatureInvalid and ErrTokenExpired.
// The signature is checked against the raw signing input before any segment
// is decoded, so a modified byte anywhere in the token is reported as a
// signature failure rather than as a decoding failure.
package tokens

import (
	"crypto/hmac"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
	ErrEmptyKey              = errors.New("signing key is empty")
)

// Codec is safe for concurrent use. The zero value uses time.Now.
type Codec struct {
	Now func() time.Time
}

func (c Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Sign stamps iat=now, exp=now+ttl and the token type into claims and returns
// the signed token.
func (c Codec) Sign(claims Claims, key []byte, ttl time.Duration) (string, error) {
	if len(key) == 0 {
		return "", ErrEmptyKey
	}
	now := c.now()
	rc := claims.registered()
	rc.IssuedAt = jwt.NewNumericDate(now)
	rc.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	*claims.tokenType() = claims.expectedType()

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// Verify checks tokenStr and decodes it into claims. Claims are only usable
// when the returned error is nil.
func (c Codec) Verify(tokenStr string, key []byte, claims Claims) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return fmt.Errorf("%w: expected three segments", ErrTokenMalformed)
	}

	sig, err := jwt.SigningMethodHS256.Sign(parts[0]+"."+parts[1], key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenSignatureInvalid, err)
	}
	if !hmac.Equal([]byte(base64.RawURLEncoding.EncodeToString(sig)), []byte(parts[2])) {
		return ErrTokenSignatureInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if _, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		return classify(err)
	}

	if typ := *claims.tokenType(); typ != claims.expectedType() {
		return fmt.Errorf("%w: unexpected token type %q", ErrTokenMalformed, typ)
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrTokenSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}

var defaultCodec Codec

func Sign(claims Claims, key []byte, ttl time.Duration) (string, error) {
	return defaultCodec.Sign(claims, key, ttl)
}

func Verify(tokenStr string, key []byte, claims Claims) error {
	return defaultCodec.Verify(tokenStr, key, claims)
}

func (c Codec) ParseAccess(tokenStr string, accessSecret []byte) (*AccessClaims, error) {
	var claims AccessClaims
	if err := c.Verify(tokenStr, accessSecret, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (c Codec) ParseRefresh(tokenStr string, refreshSecret []byte) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.Verify(tokenStr, refreshSecret, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func AccessClaimsFromToken(tokenStr string, accessSecret []byte) (*AccessClaims, error) {
	return defaultCodec.ParseAccess(tokenStr, accessSecret)
}

func RefreshClaimsFromToken(tokenStr string, refreshSecret []byte) (*RefreshClaims, error) {
	return defaultCodec.ParseRefresh(tokenStr, refreshSecret)
}
