package access

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDomainRejected  = errors.New("access: domain not authorized")
	ErrNotRegistered   = errors.New("access: identity not registered")
	ErrInactiveAccount = errors.New("access: inactive account")
	ErrInternal        = errors.New("access: authentication process error")
)

// RateLimitError reports a lockout in effect and how long it has left.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("access: rate limited, retry in %ds", int(e.RetryAfter.Seconds()))
}

// IsRateLimited reports whether err is a lockout rejection.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}
