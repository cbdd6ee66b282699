package portal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ID is the canonical identifier of a notification.
//
// The web client writes notification ids as JSON numbers, while form and URL
// code paths hand them around as strings. ID absorbs both at decode time so
// every lookup compares a single type. Integer strings are canonicalized, so
// "007" matches a stored 7. Canonical integers are encoded back as JSON
// numbers to keep the document shape the web client expects.
type ID string

// ParseID normalizes an id value of any supported type. It returns false when
// the value cannot be used as an id.
func ParseID(v any) (ID, bool) {
	switch val := v.(type) {
	case ID:
		return fromString(string(val))
	case string:
		return fromString(val)
	case int:
		return ID(strconv.FormatInt(int64(val), 10)), true
	case int64:
		return ID(strconv.FormatInt(val, 10)), true
	case float64:
		return fromFloat(val)
	case json.Number:
		return fromNumber(val.String())
	default:
		return "", false
	}
}

// NewTimeID returns the id assigned to entities created at t (epoch millis).
func NewTimeID(t time.Time) ID {
	return ID(strconv.FormatInt(t.UnixMilli(), 10))
}

// Int returns the id as an integer when it is a canonical one.
func (id ID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil || strconv.FormatInt(n, 10) != string(id) {
		return 0, false
	}
	return n, true
}

// IsZero reports whether the id is empty.
func (id ID) IsZero() bool {
	return id == ""
}

func (id ID) String() string {
	return string(id)
}

// MarshalJSON encodes canonical integers as numbers and everything else as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, ok := id.Int(); ok {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts JSON numbers, strings and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	raw, isString, err := decodeScalar(data)
	if err != nil {
		return err
	}
	if isString {
		*id, _ = fromString(raw)
		return nil
	}
	*id, _ = fromNumber(raw)
	return nil
}

// StringID identifies students and admins. It decodes numbers and strings
// alike but always encodes as a string, since those ids are strings in the
// document.
type StringID string

func (id StringID) String() string {
	return string(id)
}

// UnmarshalJSON accepts JSON numbers, strings and null.
func (id *StringID) UnmarshalJSON(data []byte) error {
	raw, isString, err := decodeScalar(data)
	if err != nil {
		return err
	}
	if isString {
		*id = StringID(strings.TrimSpace(raw))
		return nil
	}
	parsed, _ := fromNumber(raw)
	*id = StringID(parsed)
	return nil
}

// decodeScalar returns the raw text of a JSON string or number.
func decodeScalar(data []byte) (string, bool, error) {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		return "", true, nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", false, err
		}
		return s, true, nil
	case data[0] == '-' || (data[0] >= '0' && data[0] <= '9'):
		return string(data), false, nil
	default:
		return "", false, fmt.Errorf("invalid id %s", data)
	}
}

// fromString trims s and writes integer strings in canonical form, so "007"
// and 7 name the same id.
func fromString(s string) (ID, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if isDigits(s) {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return ID(strconv.FormatInt(n, 10)), true
		}
	}
	return ID(s), true
}

func isDigits(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func fromNumber(s string) (ID, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ID(strconv.FormatInt(n, 10)), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", false
	}
	return fromFloat(f)
}

func fromFloat(f float64) (ID, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return ID(strconv.FormatInt(int64(f), 10)), true
	}
	return ID(strconv.FormatFloat(f, 'f', -1, 64)), true
}
