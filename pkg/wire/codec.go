package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for envelopes.
// Configured for deterministic encoding.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for envelopes.
var decMode cbor.DecMode

func init() {
	var err error

	// Configure encoder for deterministic output
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical, // Deterministic key ordering
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient decoder; integers and nested maps are normalized so that both
	// formats produce the same Go types.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet, // Last wins
		IndefLength:       cbor.IndefLengthAllowed,
		IntDec:            cbor.IntDecConvertNone,
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Encode serializes msg in the requested format.
func Encode(msg Message, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.Marshal(msg.envelope())
		if err != nil {
			return nil, fmt.Errorf("failed to encode JSON message: %w", err)
		}
		return data, nil
	case FormatCBOR:
		data, err := encMode.Marshal(msg.envelope())
		if err != nil {
			return nil, fmt.Errorf("failed to encode CBOR message: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("encode as %s: %w", format, ErrUnsupportedFormat)
	}
}

// EncodeAs serializes msg in its own Format.
func EncodeAs(msg Message) ([]byte, error) {
	return Encode(msg, msg.Format)
}

// Decode parses a payload of unknown format.
//
// JSON is attempted first, then CBOR. If both fail a *DecodeError holding the
// raw bytes is returned; it wraps ErrInvalidEnvelope when one of the grammars
// matched and ErrUnsupportedFormat otherwise.
func Decode(data []byte) (Message, error) {
	msg, jsonErr := decodeJSON(data)
	if jsonErr == nil {
		return msg, nil
	}
	msg, cborErr := decodeCBOR(data)
	if cborErr == nil {
		return msg, nil
	}

	derr := &DecodeError{Raw: data, Detected: Sniff(data)}
	switch derr.Detected {
	case FormatJSON:
		derr.Err = fmt.Errorf("%w: %v", ErrInvalidEnvelope, jsonErr)
	case FormatCBOR:
		derr.Err = fmt.Errorf("%w: %v", ErrInvalidEnvelope, cborErr)
	default:
		derr.Err = ErrUnsupportedFormat
	}
	return Message{Format: FormatUnsupported}, derr
}

// Sniff reports which grammar data is well-formed under, JSON first.
func Sniff(data []byte) Format {
	if json.Valid(data) {
		return FormatJSON
	}
	if decMode.Wellformed(data) == nil {
		return FormatCBOR
	}
	return FormatUnsupported
}

func decodeJSON(data []byte) (Message, error) {
	if !json.Valid(data) {
		return Message{}, fmt.Errorf("not valid JSON")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Message{}, err
	}
	for k, v := range raw {
		raw[k] = normalizeJSON(v)
	}
	return fromEnvelope(raw, FormatJSON)
}

func decodeCBOR(data []byte) (Message, error) {
	var raw map[string]any
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return Message{}, err
	}
	for k, v := range raw {
		raw[k] = normalizeCBOR(v)
	}
	return fromEnvelope(raw, FormatCBOR)
}

func fromEnvelope(raw map[string]any, format Format) (Message, error) {
	if raw == nil {
		return Message{}, fmt.Errorf("envelope is not a map")
	}
	msgType, ok := raw[KeyType].(string)
	if !ok {
		return Message{}, fmt.Errorf("missing string %q field", KeyType)
	}
	delete(raw, KeyType)
	if len(raw) == 0 {
		raw = nil
	}
	return Message{Type: msgType, Fields: raw, Format: format}, nil
}

// normalizeJSON converts json.Number values to int64, uint64 above the
// int64 range, or float64.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(t.String(), 10, 64); err == nil {
			return u
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = normalizeJSON(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeJSON(t[k])
		}
		return t
	default:
		return v
	}
}

// normalizeCBOR applies the JSON integer rule to CBOR values: unsigned
// integers that fit become int64, larger ones stay uint64.
func normalizeCBOR(v any) any {
	switch t := v.(type) {
	case uint64:
		if t <= math.MaxInt64 {
			return int64(t)
		}
		return t
	case []any:
		for i := range t {
			t[i] = normalizeCBOR(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeCBOR(t[k])
		}
		return t
	default:
		return v
	}
}
