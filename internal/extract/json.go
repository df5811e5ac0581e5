package extract

import (
	"encoding/json"
	"fmt"
)

// extractJSON validates the payload and re-renders it indented, one value
// per line, so nested keys and values become searchable text.
func extractJSON(data []byte) (string, error) {
	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse json failed: %w", err)
	}
	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render json failed: %w", err)
	}
	return string(pretty), nil
}
