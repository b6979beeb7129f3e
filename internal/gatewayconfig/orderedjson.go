package gatewayconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// orderedObject decodes a JSON object preserving source key order, which
// the shadowing diagnostics (SHADOWED_HOST, SHADOWED_PATH) depend on.
// encoding/json's map decoding does not guarantee order, so we tokenize
// the object ourselves instead of unmarshaling into a map directly.
func orderedObject(raw json.RawMessage) (keys []string, values map[string]json.RawMessage, err error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected a JSON object")
	}

	values = make(map[string]json.RawMessage)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected object key, got %v", keyTok)
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values[key] = val
	}
	if _, err := dec.Token(); err != nil { // consume closing '}'
		return nil, nil, err
	}
	return keys, values, nil
}

// looksLikeObject reports whether raw is a JSON object (as opposed to a
// string, number, array, etc.), without fully decoding it.
func looksLikeObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// asString attempts to decode raw as a bare JSON string.
func asString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
