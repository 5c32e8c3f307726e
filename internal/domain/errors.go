package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownUser     = errors.New("unknown user")
	ErrUnknownProduct  = errors.New("unknown product")
	ErrUnknownPlatform = errors.New("unknown platform")
)

// CapacityError is returned when a user already holds the maximum number of products.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("product limit reached (%d)", e.Limit)
}

var (
	ErrUnknownStyle = errors.New("unknown style")
	ErrNoChannels   = errors.New("no enabled channels")
)
