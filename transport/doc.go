// Package transport adapts the embedding host's message channel.
//
// A Host exposes exactly two primitives: post a message, and install the one
// function that receives inbound messages. Adapter layers on top of it:
//   - IsAvailable checks host presence at call time
//   - PostRaw encodes an envelope and posts it, optionally with retry and a circuit breaker
//   - SubscribeRaw installs the single inbound hook; a second registration fails
//     with contracts.ErrDuplicateSubscription so inbound messages are never delivered twice
//
// StreamHost implements Host over newline-delimited JSON on an io.Reader and
// io.Writer, which is how a native shell embeds a Go process over stdio.
package transport
