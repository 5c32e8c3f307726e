// Package generate turns prompts into promotional copy through a language
// model.
package generate

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a generation failure.
type Kind string

const (
	KindQuotaExceeded   Kind = "quota-exceeded"
	KindTimeout         Kind = "timeout"
	KindInvalidResponse Kind = "invalid-response"
)

// Error is a typed generation failure.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("generation failed (%s, status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("generation failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "" when err isn't a generation error.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return ""
}

// Prompt is one request to the model.
type Prompt struct {
	System string
	User   string
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}
