package ir

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"
)

// IRValue is a sealed interface representing constrained value types.
// Only IRNull, IRString, IRInt, IRFloat, IRBool, IRBytes, IRArray and
// IRObject implement it.
type IRValue interface {
	irValue()
}

// IRNull represents an absent value. Setting a property to IRNull deletes it.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRFloat represents a finite floating-point value. NaN and infinities
// cannot be encoded.
type IRFloat float64

func (IRFloat) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRBytes represents an opaque byte array. It encodes as standard base64.
type IRBytes []byte

func (IRBytes) irValue() {}

// IRArray represents an array of IRValue elements.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to IRValue elements.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// PropertyKind names the value kinds an assembly property may hold.
type PropertyKind string

const (
	KindString PropertyKind = "string"
	KindInt    PropertyKind = "int"
	KindFloat  PropertyKind = "float"
	KindBool   PropertyKind = "bool"
	KindBytes  PropertyKind = "bytes"
)

// KindOf reports the property kind of v. The second result is false for
// values that cannot be stored as an assembly property (null, arrays,
// objects, non-finite floats).
func KindOf(v IRValue) (PropertyKind, bool) {
	switch val := v.(type) {
	case IRString:
		return KindString, true
	case IRInt:
		return KindInt, true
	case IRFloat:
		if !isFinite(float64(val)) {
			return "", false
		}
		return KindFloat, true
	case IRBool:
		return KindBool, true
	case IRBytes:
		return KindBytes, true
	default:
		return "", false
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 orders strings by UTF-16 code units as RFC 8785 requires.
// Go's native string comparison is by UTF-8 bytes, which differs for
// characters outside the BMP.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// MarshalJSON implements json.Marshaler for IRObject with sorted keys.
// This is not canonical (HTML escaping applies); use MarshalCanonical for
// anything that is persisted or compared.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalIRValue marshals an IRValue to JSON bytes.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRFloat:
		s, err := formatFloat(float64(val))
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	case IRBool:
		return json.Marshal(bool(val))
	case IRBytes:
		return json.Marshal(base64.StdEncoding.EncodeToString(val))
	case IRArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := MarshalIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// ParseProperty decodes a textual property value of the given kind.
// Bytes are expected as standard base64. Used by the CLI and scenarios,
// where values arrive as strings.
func ParseProperty(kind PropertyKind, raw string) (IRValue, error) {
	switch kind {
	case KindString:
		return IRString(raw), nil
	case KindInt:
		var n json.Number = json.Number(raw)
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("parse int property %q: %w", raw, err)
		}
		return IRInt(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || !isFinite(f) {
			return nil, fmt.Errorf("parse float property %q: want a finite number", raw)
		}
		return IRFloat(f), nil
	case KindBool:
		switch raw {
		case "true":
			return IRBool(true), nil
		case "false":
			return IRBool(false), nil
		}
		return nil, fmt.Errorf("parse bool property %q: want true or false", raw)
	case KindBytes:
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse bytes property: %w", err)
		}
		return IRBytes(b), nil
	default:
		return nil, fmt.Errorf("unknown property kind %q", kind)
	}
}
