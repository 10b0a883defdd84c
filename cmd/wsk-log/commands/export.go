package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/wstoolkit/wstoolkit-go/pkg/log"
	"github.com/wstoolkit/wstoolkit-go/pkg/wire"
)

// RunExport exports the events matching filter to the specified format.
// An empty output writes to stdout.
func RunExport(path, format, output string, filter log.Filter) error {
	switch format {
	case "jsonl", "csv":
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return exportCSV(reader, w)
	}
	return exportJSONL(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

var csvHeader = []string{"timestamp", "connection_id", "direction", "layer", "category", "url", "type", "format", "detail"}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		eventType, format, detail := csvColumns(event)
		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.ConnectionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.URL,
			eventType,
			format,
			detail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvColumns(event log.Event) (eventType, format, detail string) {
	switch {
	case event.Frame != nil:
		format = "text"
		if event.Frame.Binary {
			format = "binary"
		}
		return "frame", format, strconv.Itoa(event.Frame.Size)
	case event.Message != nil:
		if content, ok := event.Message.Fields[wire.KeyContent].(string); ok {
			detail = content
		}
		return event.Message.Type, event.Message.Format, detail
	case event.StateChange != nil:
		return "state", "", event.StateChange.OldState + ">" + event.StateChange.NewState
	case event.ControlMsg != nil:
		if event.ControlMsg.Seq != nil {
			detail = strconv.FormatUint(uint64(*event.ControlMsg.Seq), 10)
		} else if event.ControlMsg.CloseCode != nil {
			detail = strconv.Itoa(*event.ControlMsg.CloseCode)
		}
		return event.ControlMsg.Type.String(), "", detail
	case event.Error != nil:
		return "error", "", event.Error.Message
	}
	return "unknown", "", ""
}
