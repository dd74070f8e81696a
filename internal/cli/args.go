package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mcoot/gamesync/internal/model"
)

// parseObject decodes a JSON object argument. An empty string yields nil.
func parseObject(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("expected a JSON object: %w", err)
	}
	return obj, nil
}

// parseValue decodes a JSON value, treating anything that is not valid JSON
// as a plain string so moves like e4 need no quoting
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// roomCode normalises a code typed by a user
func roomCode(raw string) model.RoomCode {
	return model.RoomCode(strings.ToUpper(strings.TrimSpace(raw)))
}
