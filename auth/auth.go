// Package auth models the connection-handshake credential contract the
// topology consults while establishing a connection. It stands in for the
// SASL/X.509 handshake spec.md places out of scope, grounded on the
// teacher's JWT-signed capability tokens for inter-service auth.
package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"go.nestdb.dev/driver/mongoerr"
)

// Claims is the handshake token payload a Credential signs for a
// connection attempt.
type Claims struct {
	jwt.RegisteredClaims
	Mechanism string `json:"mechanism"`
}

// Credential signs and caches short-lived handshake tokens for a single
// principal, the way ControlPlaneAuthorizer caches authorization results
// keyed by shard/name/capability to avoid a thundering herd of re-signs.
type Credential struct {
	Username string
	key      []byte
	ttl      time.Duration

	mu     sync.Mutex
	cached string
	expiry time.Time
}

// NewCredential builds a Credential that signs handshake tokens with key
// for username, each valid for ttl.
func NewCredential(username string, key []byte, ttl time.Duration) *Credential {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Credential{Username: username, key: key, ttl: ttl}
}

// Token returns a signed handshake token, reusing a cached one until it is
// within 5 seconds of expiry.
func (c *Credential) Token(mechanism string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.cached != "" && c.expiry.After(now.Add(5*time.Second)) {
		return c.cached, nil
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Mechanism: mechanism,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", &mongoerr.AuthenticationError{Err: fmt.Errorf("signing handshake token: %w", err)}
	}

	c.cached = token
	c.expiry = claims.ExpiresAt.Time
	return token, nil
}

// Verify parses and validates a peer-presented token against key, for
// tests and for servers standing in for the topology during a handshake.
func Verify(token string, key []byte) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, &mongoerr.AuthenticationError{Err: fmt.Errorf("invalid handshake token: %w", err)}
	}
	return claims, nil
}
