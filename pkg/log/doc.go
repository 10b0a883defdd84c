// Package log provides structured protocol logging for WebSocket sessions.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, connection).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/wsk/client.wslog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw data frames (FrameEvent) and control frames (ControlMsgEvent)
//   - Wire: Decoded JSON/CBOR messages (MessageEvent)
//   - Connection: Lifecycle state changes (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Log files are CBOR sequences with the .wslog extension. Every event is a
// self-contained CBOR item, so files can be rotated between events. The
// wsk-log CLI tool provides viewing, filtering and statistics.
package log
