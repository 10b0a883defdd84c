// Package connection provides connection lifecycle management for a single
// client WebSocket.
//
// This package handles:
//   - The lifecycle state machine (Step) and the Controller that runs it
//   - Exponential backoff for reconnection attempts
//   - Jitter to prevent thundering herd
//   - Keep-alive driven loss detection
//   - Routing of decoded inbound messages to handlers
//
// # States
//
//	Disconnected ──Connect──▶ Connecting ──ok──▶ Connected ──Close──▶ Closing ──▶ Disconnected
//	                              │                  │
//	                              └──fail──▶ Reconnecting ◀──loss / missed pong
//
// Close from Connecting or Reconnecting cancels the dial or retry timer and
// passes through Closing straight to Disconnected.
//
// # Reconnection Strategy
//
// When a connection is lost, the client uses exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. Continue at 30s until successful, or give up after MaxAttempts
//  5. Reset on successful reconnection
//
// The loss of an established connection consults NextDelay(0). Every failed
// retry dial increments the attempt counter before consulting the policy
// again. A failed initial Connect does not count as a retry.
//
// # Jitter
//
// To prevent thundering herd when multiple clients reconnect:
//
//	actual_delay = base_delay + random(0, base_delay * fraction)
//
// # Success Criteria
//
// A reconnection is successful when the TCP connection is established and
// the WebSocket opening handshake completed. Only then is the attempt
// counter reset.
package connection
