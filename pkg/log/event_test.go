package log

import (
	"bytes"
	"testing"
)

func TestDirectionString(t *testing.T) {
	tests := []struct {
		dir  Direction
		want string
	}{
		{DirectionIn, "IN"},
		{DirectionOut, "OUT"},
		{Direction(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.dir.String(); got != tt.want {
			t.Errorf("Direction(%d).String() = %q, want %q", tt.dir, got, tt.want)
		}
	}
}

func TestLayerStringAndParse(t *testing.T) {
	tests := []struct {
		layer Layer
		want  string
	}{
		{LayerTransport, "TRANSPORT"},
		{LayerWire, "WIRE"},
		{LayerConnection, "CONNECTION"},
	}

	for _, tt := range tests {
		if got := tt.layer.String(); got != tt.want {
			t.Errorf("Layer(%d).String() = %q, want %q", tt.layer, got, tt.want)
		}
		parsed, ok := ParseLayer(tt.want)
		if !ok || parsed != tt.layer {
			t.Errorf("ParseLayer(%q) = %v, %v", tt.want, parsed, ok)
		}
	}

	if Layer(99).String() != "UNKNOWN" {
		t.Error("unknown layer should print UNKNOWN")
	}
	if _, ok := ParseLayer("SERVICE"); ok {
		t.Error("ParseLayer accepted an unknown name")
	}
}

func TestCategoryStringAndParse(t *testing.T) {
	tests := []struct {
		cat  Category
		want string
	}{
		{CategoryMessage, "MESSAGE"},
		{CategoryControl, "CONTROL"},
		{CategoryState, "STATE"},
		{CategoryError, "ERROR"},
	}

	for _, tt := range tests {
		if got := tt.cat.String(); got != tt.want {
			t.Errorf("Category(%d).String() = %q, want %q", tt.cat, got, tt.want)
		}
		parsed, ok := ParseCategory(tt.want)
		if !ok || parsed != tt.cat {
			t.Errorf("ParseCategory(%q) = %v, %v", tt.want, parsed, ok)
		}
	}

	if Category(99).String() != "UNKNOWN" {
		t.Error("unknown category should print UNKNOWN")
	}
}

func TestControlMsgTypeString(t *testing.T) {
	tests := []struct {
		cmt  ControlMsgType
		want string
	}{
		{ControlMsgPing, "PING"},
		{ControlMsgPong, "PONG"},
		{ControlMsgClose, "CLOSE"},
		{ControlMsgType(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.cmt.String(); got != tt.want {
			t.Errorf("ControlMsgType(%d).String() = %q, want %q", tt.cmt, got, tt.want)
		}
	}
}

func TestEnumValuesAreStable(t *testing.T) {
	// Values are persisted in log files.
	if DirectionIn != 0 || DirectionOut != 1 {
		t.Error("Direction values changed")
	}
	if LayerTransport != 0 || LayerWire != 1 || LayerConnection != 2 {
		t.Error("Layer values changed")
	}
	if CategoryMessage != 0 || CategoryControl != 1 || CategoryState != 2 || CategoryError != 3 {
		t.Error("Category values changed")
	}
	if ControlMsgPing != 0 || ControlMsgPong != 1 || ControlMsgClose != 2 {
		t.Error("ControlMsgType values changed")
	}
}

func TestNewFrameEvent(t *testing.T) {
	small := []byte(`{"type":"greeting"}`)
	fe := NewFrameEvent(small, false)
	if fe.Size != len(small) || fe.Truncated || fe.Binary {
		t.Errorf("unexpected frame event %+v", fe)
	}
	if !bytes.Equal(fe.Data, small) {
		t.Errorf("Data = %q, want %q", fe.Data, small)
	}

	// Data is copied.
	small[0] = 'X'
	if fe.Data[0] != '{' {
		t.Error("frame event aliases the caller's buffer")
	}

	large := bytes.Repeat([]byte{0xa1}, MaxFrameCapture+10)
	fe = NewFrameEvent(large, true)
	if fe.Size != len(large) {
		t.Errorf("Size = %d, want %d", fe.Size, len(large))
	}
	if !fe.Truncated || len(fe.Data) != MaxFrameCapture || !fe.Binary {
		t.Errorf("large frame not truncated: truncated=%v len=%d", fe.Truncated, len(fe.Data))
	}
}
