// Package auth checks the shared admin token presented on web requests.
//
// It holds no policy: callers decide which operations need an admin.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// AdminToken accepts exactly one configured token. An empty token disables
// admin access entirely.
type AdminToken struct {
	Token string
}

func (a AdminToken) Validate(token string) error {
	want := strings.TrimSpace(a.Token)
	if want == "" || token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(strings.TrimSpace(token))) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Allowed reports whether v accepts token. A nil validator allows nothing.
func Allowed(v Validator, token string) bool {
	if v == nil {
		return false
	}
	return v.Validate(token) == nil
}
