package main

import (
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wstoolkit/wstoolkit-go/pkg/config"
	"github.com/wstoolkit/wstoolkit-go/pkg/log"
)

// nopCloser is returned when there is nothing to close.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger builds the operational logger. Output goes to a rotating file
// when cfg.File is set, otherwise to console.
func newLogger(cfg config.LoggingConfig, console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, err
	}

	w := console
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		w, closer = rotator, rotator
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(handler), closer, nil
}

// newProtocolLogger opens the protocol capture, or returns nil when
// capture is disabled. When debug is set, events are also written to
// logger at debug level.
func newProtocolLogger(cfg config.ProtocolLogConfig, logger *slog.Logger, debug bool) (log.Logger, io.Closer) {
	var loggers []log.Logger
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		fl := log.NewWriterLogger(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
		loggers = append(loggers, fl)
		closer = fl
	}
	if debug {
		loggers = append(loggers, log.NewSlogAdapter(logger))
	}

	switch len(loggers) {
	case 0:
		return nil, closer
	case 1:
		return loggers[0], closer
	default:
		return log.NewMultiLogger(loggers...), closer
	}
}
