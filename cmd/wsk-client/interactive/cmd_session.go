package interactive

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wstoolkit/wstoolkit-go/pkg/connection"
)

// cmdConnect handles the connect command.
func (c *Client) cmdConnect(ctx context.Context, args []string) {
	ctrl := c.current()
	if ctrl == nil {
		if c.opts.NewSession == nil {
			fmt.Fprintln(c.out, "No session")
			return
		}
		ctrl = c.opts.NewSession()
		c.currentID = c.table.Insert(ctrl)
	}

	url := c.opts.URL
	if u := ctrl.URL(); u != "" {
		url = u
	}
	if len(args) > 0 {
		url = args[0]
	}
	if url == "" {
		fmt.Fprintln(c.out, "Usage: connect <url>")
		return
	}

	c.connect(ctx, ctrl, url)
}

// cmdOpen handles the open command.
func (c *Client) cmdOpen(ctx context.Context, args []string) {
	if c.opts.NewSession == nil {
		fmt.Fprintln(c.out, "Opening sessions is not supported")
		return
	}
	url := c.opts.URL
	if len(args) > 0 {
		url = args[0]
	}
	if url == "" {
		fmt.Fprintln(c.out, "Usage: open <url>")
		return
	}

	ctrl := c.opts.NewSession()
	id := c.table.Insert(ctrl)
	if !c.connect(ctx, ctrl, url) {
		c.table.Remove(id)
		c.closeController(ctx, ctrl)
		return
	}
	c.currentID = id
	fmt.Fprintf(c.out, "Session %s is now current\n", shortID(id))
}

func (c *Client) connect(ctx context.Context, ctrl *connection.Controller, url string) bool {
	fmt.Fprintf(c.out, "Connecting to %s...\n", url)
	connectCtx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	defer cancel()

	if err := ctrl.Connect(connectCtx, url); err != nil {
		fmt.Fprintf(c.out, "Connect failed: %v\n", err)
		return false
	}
	fmt.Fprintf(c.out, "Connected (connection %s)\n", ctrl.ConnectionID())
	return true
}

// cmdUse handles the use command.
func (c *Client) cmdUse(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: use <id>")
		return
	}

	var matches []uuid.UUID
	for _, e := range c.table.List() {
		if strings.HasPrefix(e.ID.String(), strings.ToLower(args[0])) {
			matches = append(matches, e.ID)
		}
	}
	switch len(matches) {
	case 0:
		fmt.Fprintf(c.out, "No session matches %q\n", args[0])
	case 1:
		c.currentID = matches[0]
		fmt.Fprintf(c.out, "Session %s is now current\n", shortID(matches[0]))
	default:
		fmt.Fprintf(c.out, "%q is ambiguous (%d sessions)\n", args[0], len(matches))
	}
}

// cmdSessions handles the sessions command.
func (c *Client) cmdSessions() {
	entries := c.table.List()
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "No sessions")
		return
	}

	fmt.Fprintf(c.out, "\nSessions (%d):\n", len(entries))
	fmt.Fprintln(c.out, "-------------------------------------------")
	for _, e := range entries {
		marker := " "
		if e.ID == c.currentID {
			marker = "*"
		}
		url := e.URL
		if url == "" {
			url = "-"
		}
		fmt.Fprintf(c.out, "%s %s  %-12s %s\n", marker, shortID(e.ID), e.State, url)
	}
}

// cmdStatus handles the status command.
func (c *Client) cmdStatus() {
	ctrl := c.requireCurrent()
	if ctrl == nil {
		return
	}

	fmt.Fprintln(c.out, "\nSession Status:")
	fmt.Fprintln(c.out, "-------------------------------------------")
	fmt.Fprintf(c.out, "  Session:    %s\n", c.currentID)
	fmt.Fprintf(c.out, "  State:      %s\n", ctrl.State())
	if url := ctrl.URL(); url != "" {
		fmt.Fprintf(c.out, "  URL:        %s\n", url)
	}
	if id := ctrl.ConnectionID(); id != "" {
		fmt.Fprintf(c.out, "  Connection: %s\n", id)
	}
	if n := ctrl.Attempts(); n > 0 {
		fmt.Fprintf(c.out, "  Attempts:   %d\n", n)
	}
	if err := ctrl.Err(); err != nil {
		fmt.Fprintf(c.out, "  Last error: %v\n", err)
	}
	if t := ctrl.LastActivity(); !t.IsZero() {
		fmt.Fprintf(c.out, "  Activity:   %s\n", t.Format("15:04:05.000"))
	}

	hb := ctrl.HeartbeatStats()
	fmt.Fprintf(c.out, "  Heartbeat:  every %s, timeout %s\n", hb.Interval, hb.Timeout)
	fmt.Fprintf(c.out, "              %d pings, %d pongs", hb.PingsSent, hb.PongsReceived)
	if hb.LastLatency > 0 {
		fmt.Fprintf(c.out, ", last RTT %s", hb.LastLatency)
	}
	fmt.Fprintln(c.out)
}

// cmdClose handles the close command.
func (c *Client) cmdClose(ctx context.Context) {
	ctrl := c.requireCurrent()
	if ctrl == nil {
		return
	}

	c.table.Remove(c.currentID)
	c.closeController(ctx, ctrl)
	fmt.Fprintf(c.out, "Session %s closed\n", shortID(c.currentID))

	c.currentID = uuid.Nil
	if c.current() != nil {
		fmt.Fprintf(c.out, "Session %s is now current\n", shortID(c.currentID))
	}
}

func (c *Client) closeController(ctx context.Context, ctrl *connection.Controller) {
	closeCtx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	defer cancel()
	if err := ctrl.Close(closeCtx); err != nil {
		fmt.Fprintf(c.out, "Close: %v\n", err)
	}
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
