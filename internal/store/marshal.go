package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/tickloop/internal/ir"
)

// marshalTarget converts a callback target to JSON TEXT for storage.
// HTML escaping is disabled so stored source text stays readable and
// byte-stable across saves.
func marshalTarget(t *ir.Target) (string, error) {
	if t == nil {
		return "", fmt.Errorf("marshal callback: nil target")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(t); err != nil {
		return "", fmt.Errorf("marshal callback: %w", err)
	}
	// Encoder adds a trailing newline.
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalTarget parses a stored callback.
func unmarshalTarget(data string) (*ir.Target, error) {
	var t ir.Target
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("unmarshal callback: %w", err)
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
