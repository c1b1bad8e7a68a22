// Package authtok mints short-lived bearer tokens for the WebSocket
// handshake's optional "Authorization" header.
package authtok

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultTTL is how long a minted token remains valid. The handshake
// happens once per connection, so this only needs to outlive a single
// dial attempt, not the connection itself.
const defaultTTL = 5 * time.Minute

// Mint generates a signed JSON Web Token identifying issuer as the
// caller, suitable for the "Authorization: Bearer <token>" header of a
// WebSocket handshake request, using [jwt.SigningMethodHS256].
func Mint(issuer, signingKey string) (string, error) {
	if issuer == "" {
		return "", errors.New("missing credential: issuer")
	}
	if signingKey == "" {
		return "", errors.New("missing credential: signing key")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(defaultTTL).Unix(),
		"iss": issuer,
	})

	signed, err := token.SignedString([]byte(signingKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign WebSocket handshake JWT: %w", err)
	}

	return signed, nil
}
