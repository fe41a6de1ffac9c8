// Package oauth is the seam between the gate and the external identity
// provider: given an authorization code it returns the asserted identity, or
// a failure. The real exchange is an opaque synchronous call; tests substitute
// a static provider.
package oauth

import (
	"context"
	"errors"
)

var ErrExchangeFailed = errors.New("oauth: token exchange failed")

// Identity is the assertion extracted from the provider: the email uniquely
// identifies the user, the name is informational.
type Identity struct {
	Email string
	Name  string
}

// Provider exchanges an authorization code for an identity assertion.
type Provider interface {
	Exchange(ctx context.Context, code string) (Identity, error)
}

// Static is a fixed-outcome provider for tests and development.
type Static struct {
	Identity Identity
	Err      error
}

func (s Static) Exchange(context.Context, string) (Identity, error) {
	if s.Err != nil {
		return Identity{}, s.Err
	}
	return s.Identity, nil
}
