// Package envelope decodes inbound text frames into the message envelope
// shared by every handler: a JSON object, an optional "id" array used for
// request/response correlation and an optional "device" name.
package envelope

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

const (
	FieldID     = "id"
	FieldDevice = "device"
	FieldMethod = "method"
)

var (
	ErrMalformed = errors.New("malformed json")
	ErrNotObject = errors.New("payload is not a json object")
)

// ParseError is returned for payloads that are not a well-formed JSON object.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return "envelope: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Cause lets github.com/pkg/errors.Cause walk through a ParseError.
func (e *ParseError) Cause() error { return e.Err }

// Envelope is a parsed inbound message. Body holds every top-level field,
// including id and device.
type Envelope struct {
	Body   map[string]any
	ID     []any
	Device string
	Raw    []byte

	hasID     bool
	hasDevice bool
}

func (e *Envelope) HasID() bool     { return e != nil && e.hasID }
func (e *Envelope) HasDevice() bool { return e != nil && e.hasDevice }

// Method returns the "method" field when it is a string.
func (e *Envelope) Method() string {
	if e == nil {
		return ""
	}
	m, _ := e.Body[FieldMethod].(string)
	return m
}

// Decode unmarshals the original payload into v.
func (e *Envelope) Decode(v any) error {
	if e == nil {
		return errors.New("envelope is nil")
	}
	return errors.Wrap(json.Unmarshal(e.Raw, v), "decode envelope body")
}

// Parse decodes raw. Numbers are kept as json.Number so that correlation ids
// round-trip unchanged. An "id" that is not an array, or a "device" that is
// not a string, is treated as absent.
func Parse(raw string) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ParseError{Raw: raw, Err: errors.Wrap(ErrMalformed, err.Error())}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ParseError{Raw: raw, Err: errors.Wrap(ErrMalformed, "trailing data after json value")}
	}

	body, ok := v.(map[string]any)
	if !ok {
		return nil, &ParseError{Raw: raw, Err: ErrNotObject}
	}

	env := &Envelope{Body: body, Raw: []byte(raw)}
	if id, ok := body[FieldID].([]any); ok {
		env.ID = id
		env.hasID = true
	}
	if device, ok := body[FieldDevice].(string); ok {
		env.Device = device
		env.hasDevice = true
	}
	return env, nil
}
