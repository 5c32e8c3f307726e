package extract

import (
	"errors"
	"fmt"
)

// Kind classifies an extraction failure.
type Kind string

const (
	KindUnreachable           Kind = "unreachable"
	KindPrivateNetworkBlocked Kind = "private-network-blocked"
	KindNoProductFound        Kind = "no-product-found"
)

// Error is a typed extraction failure.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "" when err isn't an extraction error.
func KindOf(err error) Kind {
	var xerr *Error
	if errors.As(err, &xerr) {
		return xerr.Kind
	}
	return ""
}
