package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newJSONAdapter(buf *bytes.Buffer, level slog.Level) *SlogAdapter {
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
	return NewSlogAdapter(slog.New(handler))
}

func parseEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	if buf.Len() == 0 {
		t.Fatal("no output produced")
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	return entry
}

func TestSlogAdapterLogsFrameEvent(t *testing.T) {
	var buf bytes.Buffer
	adapter := newJSONAdapter(&buf, slog.LevelDebug)

	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		Frame:        &FrameEvent{Binary: true, Size: 256, Data: []byte{0x01, 0x02}},
	})

	entry := parseEntry(t, &buf)
	if entry["conn_id"] != "conn-123" {
		t.Errorf("conn_id: got %v, want %q", entry["conn_id"], "conn-123")
	}
	if entry["direction"] != "IN" {
		t.Errorf("direction: got %v, want %q", entry["direction"], "IN")
	}
	if entry["layer"] != "TRANSPORT" {
		t.Errorf("layer: got %v, want %q", entry["layer"], "TRANSPORT")
	}
	if entry["frame"] != "binary" {
		t.Errorf("frame: got %v, want %q", entry["frame"], "binary")
	}
	if entry["frame_size"] != float64(256) {
		t.Errorf("frame_size: got %v, want %v", entry["frame_size"], 256)
	}
}

func TestSlogAdapterLogsMessageEvent(t *testing.T) {
	var buf bytes.Buffer
	adapter := newJSONAdapter(&buf, slog.LevelDebug)

	adapter.Log(Event{
		ConnectionID: "conn-456",
		Direction:    DirectionOut,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		URL:          "ws://localhost:8080/ws",
		Message: &MessageEvent{
			Type:   "greeting",
			Format: "CBOR",
			Fields: map[string]any{"content": "Hello, server (CBOR)!"},
		},
	})

	entry := parseEntry(t, &buf)
	if entry["msg_type"] != "greeting" {
		t.Errorf("msg_type: got %v, want %q", entry["msg_type"], "greeting")
	}
	if entry["format"] != "CBOR" {
		t.Errorf("format: got %v, want %q", entry["format"], "CBOR")
	}
	if entry["content"] != "Hello, server (CBOR)!" {
		t.Errorf("content: got %v", entry["content"])
	}
	if entry["url"] != "ws://localhost:8080/ws" {
		t.Errorf("url: got %v", entry["url"])
	}
}

func TestSlogAdapterLogsStateChange(t *testing.T) {
	var buf bytes.Buffer
	adapter := newJSONAdapter(&buf, slog.LevelDebug)

	adapter.Log(Event{
		ConnectionID: "abc12345-def6-7890",
		Layer:        LayerConnection,
		Category:     CategoryState,
		StateChange: &StateChangeEvent{
			OldState: "CONNECTED",
			NewState: "RECONNECTING",
			Reason:   "heartbeat timeout",
			Attempt:  1,
		},
	})

	output := buf.String()
	for _, want := range []string{"abc12345-def6-7890", "RECONNECTING", "heartbeat timeout", `"attempt":1`} {
		if !strings.Contains(output, want) {
			t.Errorf("output does not contain %q: %s", want, output)
		}
	}
}

func TestSlogAdapterLogsControlFrame(t *testing.T) {
	var buf bytes.Buffer
	adapter := newJSONAdapter(&buf, slog.LevelDebug)

	code := 1000
	adapter.Log(Event{
		Layer:      LayerTransport,
		Category:   CategoryControl,
		ControlMsg: &ControlMsgEvent{Type: ControlMsgClose, CloseCode: &code},
	})

	entry := parseEntry(t, &buf)
	if entry["ctrl_type"] != "CLOSE" {
		t.Errorf("ctrl_type: got %v", entry["ctrl_type"])
	}
	if entry["close_code"] != float64(1000) {
		t.Errorf("close_code: got %v", entry["close_code"])
	}
}

func TestSlogAdapterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	adapter := newJSONAdapter(&buf, slog.LevelInfo)

	adapter.Log(Event{ConnectionID: "quiet"})
	if buf.Len() != 0 {
		t.Errorf("debug event written at info level: %s", buf.String())
	}

	adapter.WithLevel(slog.LevelInfo).Log(Event{ConnectionID: "loud"})
	if !strings.Contains(buf.String(), "loud") {
		t.Error("info-level adapter did not write")
	}
}

func TestSlogAdapterInterfaceSatisfaction(t *testing.T) {
	var _ Logger = (*SlogAdapter)(nil)
}
