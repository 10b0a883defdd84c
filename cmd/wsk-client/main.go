// Command wsk-client is a resilient WebSocket client.
//
// It keeps a session to a WebSocket endpoint alive with ping/pong heartbeats
// and exponential-backoff reconnection, exchanges JSON and CBOR messages,
// and can capture the protocol traffic for wsk-log.
//
// Usage:
//
//	wsk-client [flags]
//
// Flags:
//
//	-config string        Configuration file path (.toml, .yaml)
//	-url string           Endpoint URL (ws:// or wss://)
//	-format string        Default message format: json, cbor
//	-log-level string     Log level: debug, info, warn, error
//	-protocol-log string  Protocol capture file (.wslog)
//	-metrics string       Serve Prometheus metrics on this address
//	-greet                Send a greeting after every (re)connect
//	-interactive          Enable interactive command mode
//
// Every setting can also come from the environment with the WSK_ prefix,
// for example WSK_RECONNECT__MAX_ATTEMPTS=10.
//
// Examples:
//
//	# Connect and greet in CBOR on every connect
//	wsk-client -url ws://localhost:9001 -format cbor -greet
//
//	# Interactive session with protocol capture
//	wsk-client -url ws://localhost:9001 -interactive -protocol-log session.wslog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wstoolkit/wstoolkit-go/cmd/wsk-client/interactive"
	"github.com/wstoolkit/wstoolkit-go/pkg/config"
	"github.com/wstoolkit/wstoolkit-go/pkg/connection"
	"github.com/wstoolkit/wstoolkit-go/pkg/metrics"
	"github.com/wstoolkit/wstoolkit-go/pkg/wire"
)

// Flags holds the command-line settings. Non-empty values override the
// configuration file.
type Flags struct {
	ConfigFile  string
	URL         string
	Format      string
	LogLevel    string
	ProtocolLog string
	MetricsAddr string
	Greet       bool
	Interactive bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (.toml, .yaml)")
	flag.StringVar(&flags.URL, "url", "", "Endpoint URL (ws:// or wss://)")
	flag.StringVar(&flags.Format, "format", "", "Default message format: json, cbor")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Protocol capture file (.wslog)")
	flag.StringVar(&flags.MetricsAddr, "metrics", "", "Serve Prometheus metrics on this address")
	flag.BoolVar(&flags.Greet, "greet", false, "Send a greeting after every (re)connect")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable interactive command mode")
}

// apply overlays the flags on cfg.
func (f Flags) apply(cfg *config.Config) {
	if f.URL != "" {
		cfg.URL = f.URL
	}
	if f.Format != "" {
		cfg.Format = f.Format
	}
	if f.LogLevel != "" {
		cfg.Logging.Level = f.LogLevel
	}
	if f.ProtocolLog != "" {
		cfg.ProtocolLog.File = f.ProtocolLog
	}
	if f.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = f.MetricsAddr
	}
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return err
	}
	flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.URL == "" && !flags.Interactive {
		return errors.New("no URL given (use -url or set url in the config file)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	table := connection.NewTable()
	sink := newMessageSink()

	logger, logCloser, err := newLogger(cfg.Logging, sink)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	level, _ := cfg.Logging.SlogLevel()
	plog, plogCloser := newProtocolLogger(cfg.ProtocolLog, logger, level <= slog.LevelDebug)
	defer plogCloser.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Address, reg, logger)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer stopCancel()
			_ = srv.Stop(stopCtx)
		}()
	}

	base, err := cfg.ControllerConfig()
	if err != nil {
		return err
	}
	base.Logger = logger
	base.ProtocolLogger = plog
	base.Observer = collector

	format := cfg.DefaultFormat()
	newSession := func() *connection.Controller {
		ctrl := connection.NewController(base)
		ctrl.Handle(wire.TypeResponse, sink.print)
		ctrl.Handle(wire.TypeServerMessage, sink.print)
		ctrl.OnExhausted(func(err error) {
			logger.Error("giving up on endpoint", "url", ctrl.URL(), "error", err)
		})
		if flags.Greet {
			ctrl.OnConnected(func() {
				// Callbacks run on the controller's event loop.
				go func() {
					greeting := wire.Greeting(format, fmt.Sprintf("Hello from %s (%s)!", cfg.Name, format))
					if err := ctrl.SendFormat(greeting, format); err != nil {
						logger.Warn("greeting failed", "error", err)
					}
				}()
			})
		}
		return ctrl
	}

	// The interactive shell owns the terminal once it exists.
	var shell *interactive.Client
	if flags.Interactive {
		shell, err = interactive.New(table, interactive.Options{
			URL:        cfg.URL,
			Format:     format,
			NewSession: newSession,
		})
		if err != nil {
			return err
		}
		sink.attach(shell.Stdout(), shell)
	}

	logger.Info("wsk-client starting", "url", cfg.URL, "format", format.String(),
		"heartbeat", cfg.Heartbeat.Interval, "max_attempts", cfg.Reconnect.MaxAttempts)

	if cfg.URL != "" {
		ctrl := newSession()
		table.Insert(ctrl)

		connectCtx, connectCancel := context.WithTimeout(ctx, cfg.ConnectTimeout+time.Second)
		err := ctrl.Connect(connectCtx, cfg.URL)
		connectCancel()
		if err != nil {
			// Retries continue in the background.
			logger.Warn("initial connect failed", "url", cfg.URL, "error", err)
		}
	}

	if shell != nil {
		go shell.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
	}

	logger.Info("shutting down", "sessions", table.Len())
	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.CloseGrace+time.Second)
	defer closeCancel()
	if err := table.CloseAll(closeCtx); err != nil {
		logger.Warn("close failed", "error", err)
	}
	return nil
}

// messageSink routes console output and inbound messages to either stderr
// or the interactive shell, whichever owns the terminal.
type messageSink struct {
	mu    sync.Mutex
	w     io.Writer
	shell *interactive.Client
}

func newMessageSink() *messageSink {
	return &messageSink{w: os.Stderr}
}

func (s *messageSink) attach(w io.Writer, shell *interactive.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
	s.shell = shell
}

func (s *messageSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *messageSink) print(msg wire.Message) {
	s.mu.Lock()
	shell := s.shell
	s.mu.Unlock()
	if shell != nil {
		shell.PrintMessage(msg)
		return
	}
	slog.Info("message received", "type", msg.Type, "format", msg.Format.String(), "content", msg.Content())
}
