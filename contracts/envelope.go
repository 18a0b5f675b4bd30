package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope is the wire shape exchanged with the host in both directions.
// Requests carry a registry-issued CorrelationID, replies echo it back and
// push events leave it empty.
type Envelope struct {
	Kind          string          `json:"kind"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// NewEnvelope builds an envelope, encoding payload unless it is already raw JSON.
func NewEnvelope(kind, correlationID string, payload interface{}) (Envelope, error) {
	raw, err := EncodePayload(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Kind:          kind,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// IsEvent reports whether the envelope is a push notification rather than a reply.
func (e Envelope) IsEvent() bool {
	return e.CorrelationID == ""
}

// Marshal encodes the envelope for the host channel
func (e Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, &EnvelopeError{Reason: "encode", Err: err}
	}
	return data, nil
}

// DecodeEnvelope parses one raw inbound host message.
// Only JSON decoding failures are reported here; deciding whether the
// envelope is routable is left to the inbound dispatcher.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return env, &EnvelopeError{Reason: "empty message", Err: ErrMalformedEnvelope}
	}
	if trimmed[0] != '{' {
		return env, &EnvelopeError{Reason: "not a JSON object", Err: ErrMalformedEnvelope}
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return env, &EnvelopeError{Reason: "decode", Err: fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)}
	}
	return env, nil
}

// EncodePayload converts an arbitrary value into raw JSON. Nil becomes null,
// and json.RawMessage or []byte values are passed through after validation.
func EncodePayload(payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if len(p) == 0 {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(p) {
			return nil, &EnvelopeError{Reason: "invalid raw payload", Err: ErrMalformedEnvelope}
		}
		return p, nil
	case []byte:
		if len(p) == 0 {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(p) {
			return nil, &EnvelopeError{Reason: "invalid raw payload", Err: ErrMalformedEnvelope}
		}
		return json.RawMessage(p), nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &EnvelopeError{Reason: "encode payload", Err: err}
	}
	return data, nil
}

// DecodePayload unmarshals a raw payload into T
func DecodePayload[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode payload into %T: %w", out, err)
	}
	return out, nil
}
