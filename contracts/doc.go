// Package contracts defines the wire envelope exchanged with the embedding host
// and the error taxonomy shared by every hostbridge component.
//
// An Envelope travels in both directions:
//   - requests carry a kind and a registry-issued correlation id
//   - replies echo the correlation id and carry either a payload or an error
//   - push events carry only a kind (used as the topic) and a payload
//
// Payloads stay opaque json.RawMessage values inside the bridge; callers decode
// them at their own boundary with DecodePayload.
package contracts
