// Package jsonx converts between Go values and the loosely typed JSON shapes
// provider SDKs expect.
package jsonx

import "github.com/goccy/go-json"

// ToMap round-trips val through JSON into a map, for APIs that take JSON
// objects as map[string]any.
func ToMap(val any) (map[string]any, error) {
	if val == nil {
		return nil, nil
	}
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(b, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Stringify returns strings unchanged and encodes everything else as JSON.
func Stringify(val any) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", nil
	}
	b, err := json.Marshal(val)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
