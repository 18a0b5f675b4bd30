// Package messaging implements the correlation and routing core of the host bridge.
//
// CorrelationRegistry turns fire-and-forget posts into request/reply calls:
// every request gets a fresh correlation id from a monotonic counter, a
// pending entry and a Future that completes exactly once, on reply,
// timeout, cancellation or registry shutdown.
//
// EventRouter keeps an ordered subscriber list per topic for push events
// the host sends on its own initiative. Handlers run synchronously in
// subscription order; a failing handler never stops delivery to the next.
//
// InboundDispatcher is the one function installed on the host channel. For
// each inbound message it decides:
//   - correlation id pending: resolve or reject the request
//   - correlation id issued earlier but settled: drop as a late reply
//   - otherwise, with a kind: dispatch as an event on topic kind
//   - otherwise: drop and count as malformed
package messaging
