package portal

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// coerceNumbers rewrites the named members of a JSON object so values the web
// forms store as text, such as "85", decode into numeric fields. Blank strings
// become null. With integer set, integral values such as 3.0 are written as 3.
// Anything else is left for the decoder to judge.
func coerceNumbers(data []byte, integer bool, keys ...string) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	changed := false
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		if v, ok := coerceNumber(raw, integer); ok {
			obj[k] = v
			changed = true
		}
	}
	if !changed {
		return data, nil
	}
	return json.Marshal(obj)
}

func coerceNumber(raw json.RawMessage, integer bool) (json.RawMessage, bool) {
	text, quoted, err := decodeScalar(raw)
	if err != nil {
		return nil, false
	}
	if quoted {
		text = strings.TrimSpace(text)
		if text == "" {
			return json.RawMessage("null"), true
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	if integer {
		if f != math.Trunc(f) {
			return nil, false
		}
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return json.RawMessage(strconv.FormatInt(n, 10)), quoted
		}
		return json.RawMessage(strconv.FormatInt(int64(f), 10)), true
	}
	if !quoted {
		return nil, false
	}
	return json.RawMessage(strconv.FormatFloat(f, 'f', -1, 64)), true
}
