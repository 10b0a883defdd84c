package interactive

import (
	"fmt"
	"strings"

	"github.com/wstoolkit/wstoolkit-go/pkg/wire"
)

// cmdGreet handles the greet command.
func (c *Client) cmdGreet(args []string) {
	ctrl := c.requireCurrent()
	if ctrl == nil {
		return
	}

	format := c.opts.Format
	if len(args) > 0 {
		if f, err := wire.ParseFormat(args[0]); err == nil {
			format = f
			args = args[1:]
		}
	}

	msg := wire.Greeting(format, strings.Join(args, " "))
	if err := ctrl.SendFormat(msg, format); err != nil {
		fmt.Fprintf(c.out, "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Sent greeting (%s)\n", format)
}

// cmdSend handles the send command.
func (c *Client) cmdSend(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: send <type> <json|cbor> [content]")
		fmt.Fprintln(c.out, "  Example: send greeting cbor hello there")
		return
	}
	ctrl := c.requireCurrent()
	if ctrl == nil {
		return
	}

	format, err := wire.ParseFormat(args[1])
	if err != nil {
		fmt.Fprintf(c.out, "Invalid format: %v\n", err)
		return
	}

	var fields map[string]any
	if content := strings.Join(args[2:], " "); content != "" {
		fields = map[string]any{wire.KeyContent: content}
	}
	if err := ctrl.SendFormat(wire.NewMessage(args[0], fields), format); err != nil {
		fmt.Fprintf(c.out, "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Sent %s (%s)\n", args[0], format)
}

// PrintMessage writes an inbound message the way the shell shows them.
func (c *Client) PrintMessage(msg wire.Message) {
	if content := msg.Content(); content != "" {
		fmt.Fprintf(c.out, "<- %s (%s): %s\n", msg.Type, msg.Format, content)
		return
	}
	fmt.Fprintf(c.out, "<- %s (%s)\n", msg.Type, msg.Format)
}
