// Package idgen generates short, URL-safe identifiers for correlating
// log lines across a connection's lifetime.
package idgen

import "github.com/lithammer/shortuuid/v4"

// New returns a short, unique, URL-safe identifier.
func New() string {
	return shortuuid.New()
}
