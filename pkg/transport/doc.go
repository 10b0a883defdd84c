// Package transport provides the client WebSocket transport.
//
// The transport layer handles:
//   - The opening handshake against ws:// and wss:// endpoints
//   - Text and binary data frames
//   - Ping/pong control frames for connection liveness
//   - The closing handshake
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   JSON / CBOR Messages         │
//	├────────────────────────────────┤
//	│   WebSocket Frames (RFC 6455)  │
//	├────────────────────────────────┤
//	│   TLS (wss://, optional)       │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Keep-Alive
//
// Connection liveness is monitored using ping/pong control frames:
//   - Ping interval: 5 seconds
//   - Pong timeout: 10 seconds
//   - One ping outstanding at a time; the ping payload carries a 4-byte
//     big-endian sequence number echoed by the pong
//   - Maximum detection delay: interval + timeout
package transport
