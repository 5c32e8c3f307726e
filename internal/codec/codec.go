// Package codec maps store documents to and from their on-disk JSON form.
//
// Every document is wrapped in an envelope carrying its kind and schema version:
//
//	{
//	  "schema_version": 2,
//	  "kind": "users",
//	  "data": { ... }
//	}
//
// Older versions are migrated on decode, newer ones are refused.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/MrSnakeDoc/promobot/internal/domain"
)

// CurrentVersion is the schema version written by Encode.
const CurrentVersion = 2

type envelope struct {
	SchemaVersion int                `json:"schema_version"`
	Kind          domain.DocumentKey `json:"kind"`
	Data          json.RawMessage    `json:"data"`
}

// Encode serializes doc. Equal documents always produce equal bytes.
func Encode(doc domain.Document) ([]byte, error) {
	data, err := marshal(doc, "")
	if err != nil {
		return nil, err
	}
	return marshal(envelope{
		SchemaVersion: CurrentVersion,
		Kind:          doc.Key(),
		Data:          data,
	}, "  ")
}

func marshal(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses bytes written by Encode (or by an older version) into the
// document for key.
func Decode(key domain.DocumentKey, data []byte) (domain.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, &DecodeError{Key: key, Reason: "malformed envelope", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &DecodeError{Key: key, Reason: "trailing data after envelope"}
	}
	if env.Kind != key {
		return nil, &DecodeError{Key: key, Reason: "kind mismatch: " + string(env.Kind)}
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil, &DecodeError{Key: key, Reason: "missing data"}
	}

	switch {
	case env.SchemaVersion <= 0:
		return nil, &DecodeError{Key: key, Reason: "missing schema_version"}
	case env.SchemaVersion > CurrentVersion:
		return nil, &UnsupportedSchemaError{Key: key, Version: env.SchemaVersion, Supported: CurrentVersion}
	}

	raw, err := migrate(key, env.SchemaVersion, env.Data)
	if err != nil {
		return nil, err
	}

	doc, err := domain.NewDocument(key)
	if err != nil {
		return nil, &DecodeError{Key: key, Reason: "unknown document", Err: err}
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, &DecodeError{Key: key, Reason: "malformed data", Err: err}
	}
	if err := doc.Validate(); err != nil {
		return nil, &DecodeError{Key: key, Reason: "invalid document", Err: err}
	}
	return doc, nil
}
