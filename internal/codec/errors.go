package codec

import (
	"fmt"

	"github.com/MrSnakeDoc/promobot/internal/domain"
)

// DecodeError reports bytes that are not a valid document.
type DecodeError struct {
	Key    domain.DocumentKey
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Key, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnsupportedSchemaError reports a document written by a newer schema.
type UnsupportedSchemaError struct {
	Key       domain.DocumentKey
	Version   int
	Supported int
}

func (e *UnsupportedSchemaError) Error() string {
	return fmt.Sprintf("decode %s: schema_version %d is newer than supported %d", e.Key, e.Version, e.Supported)
}
