package inventory

import (
	"encoding/json"
	"fmt"
)

// EncodeDrives serialises drives as a JSON array, preserving order.
// A nil or empty list encodes as "[]".
func EncodeDrives(drives []Drive) (string, error) {
	if len(drives) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(drives)
	if err != nil {
		return "", fmt.Errorf("marshalling drives: %w", err)
	}
	return string(data), nil
}

// DecodeDrives parses a stored drive list. The result is never nil.
func DecodeDrives(s string) ([]Drive, error) {
	drives := []Drive{}
	if s == "" {
		return drives, nil
	}
	if err := json.Unmarshal([]byte(s), &drives); err != nil {
		return []Drive{}, fmt.Errorf("unmarshalling drives: %w", err)
	}
	if drives == nil {
		drives = []Drive{}
	}
	return drives, nil
}
