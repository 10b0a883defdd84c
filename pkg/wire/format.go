package wire

import (
	"fmt"
	"strings"
)

// Format identifies the wire encoding of a message.
type Format uint8

const (
	// FormatUnsupported marks a payload that matched no known encoding.
	FormatUnsupported Format = iota

	// FormatJSON is UTF-8 JSON carried in text frames.
	FormatJSON

	// FormatCBOR is CBOR carried in binary frames.
	FormatCBOR
)

// String returns the format name as it appears in "format" fields.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "JSON"
	case FormatCBOR:
		return "CBOR"
	default:
		return "UNSUPPORTED"
	}
}

// IsValid returns true for formats that can be encoded.
func (f Format) IsValid() bool {
	return f == FormatJSON || f == FormatCBOR
}

// IsBinary returns true if the format travels in binary frames.
func (f Format) IsBinary() bool {
	return f == FormatCBOR
}

// ParseFormat parses a format name (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "cbor":
		return FormatCBOR, nil
	default:
		return FormatUnsupported, fmt.Errorf("unknown format %q (use: json, cbor)", s)
	}
}
