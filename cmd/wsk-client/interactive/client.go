// Package interactive provides the interactive command-line interface
// for wsk-client.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/wstoolkit/wstoolkit-go/pkg/connection"
	"github.com/wstoolkit/wstoolkit-go/pkg/wire"
)

// Options configures the interactive client.
type Options struct {
	// URL is used by connect and open when no URL is given.
	URL string

	// Format is used by greet when no format is given.
	Format wire.Format

	// NewSession builds an unconnected controller for open. Handlers and
	// observers are the factory's business.
	NewSession func() *connection.Controller

	// CommandTimeout bounds connect and close. Defaults to 10s.
	CommandTimeout time.Duration
}

// Client handles interactive mode for wsk-client. Sessions live in the
// table; one of them is current and receives greet, send and close.
type Client struct {
	table *connection.Table
	opts  Options
	rl    *readline.Instance
	out   io.Writer

	currentID uuid.UUID
}

// New creates a new interactive client reading from the terminal.
func New(table *connection.Table, opts Options) (*Client, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "wsk> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := newClient(table, opts, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newClient(table *connection.Table, opts Options, out io.Writer) *Client {
	if !opts.Format.IsValid() {
		opts.Format = wire.FormatJSON
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 10 * time.Second
	}
	return &Client{table: table, opts: opts, out: out}
}

func completer() *readline.PrefixCompleter {
	formats := []readline.PrefixCompleterInterface{readline.PcItem("json"), readline.PcItem("cbor")}
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("connect"),
		readline.PcItem("open"),
		readline.PcItem("use"),
		readline.PcItem("sessions"),
		readline.PcItem("greet", formats...),
		readline.PcItem("send",
			readline.PcItem(wire.TypeGreeting, formats...),
			readline.PcItem(wire.TypeServerMessage, formats...),
		),
		readline.PcItem("status"),
		readline.PcItem("close"),
		readline.PcItem("quit"),
	)
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Client) Stdout() io.Writer {
	return c.out
}

// Run starts the interactive command loop.
func (c *Client) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Execute(ctx, line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns false when the user asked to
// quit.
func (c *Client) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "connect", "c":
		c.cmdConnect(ctx, args)

	case "open", "o":
		c.cmdOpen(ctx, args)

	case "use", "u":
		c.cmdUse(args)

	case "sessions", "ls":
		c.cmdSessions()

	case "greet", "g":
		c.cmdGreet(args)

	case "send", "s":
		c.cmdSend(args)

	case "status", "st":
		c.cmdStatus()

	case "close":
		c.cmdClose(ctx)

	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Client) printHelp() {
	fmt.Fprintln(c.out, `
wsk-client Commands:
  Connection:
    connect [url]                     - Connect the current session
    open <url>                        - Open a new session and make it current
    use <id>                          - Switch to a session (ID prefix is enough)
    sessions                          - List sessions
    close                             - Close the current session

  Messages:
    greet [json|cbor] [content]       - Send a greeting
    send <type> <json|cbor> [content] - Send a message with a content field

  General:
    status                            - Show current session status
    help                              - Show this help
    quit                              - Exit`)
}

// current returns the current session, or nil. Without an explicit choice
// the oldest session in the table is current.
func (c *Client) current() *connection.Controller {
	if c.currentID == uuid.Nil {
		entries := c.table.List()
		if len(entries) == 0 {
			return nil
		}
		c.currentID = entries[0].ID
	}
	ctrl, ok := c.table.Get(c.currentID)
	if !ok {
		c.currentID = uuid.Nil
		return nil
	}
	return ctrl
}

func (c *Client) requireCurrent() *connection.Controller {
	ctrl := c.current()
	if ctrl == nil {
		fmt.Fprintln(c.out, "No session (use 'open <url>')")
	}
	return ctrl
}
