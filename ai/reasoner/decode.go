package reasoner

import (
	"encoding/json"
	"strings"

	"github.com/halcyondata/askdb/errors"
)

// DecodeJSON unmarshals a model response into v. Models sometimes wrap JSON
// in markdown code fences even when asked not to, so fences are stripped
// before decoding.
func DecodeJSON(content string, v any) error {
	trimmed := strings.TrimSpace(content)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	if err := json.Unmarshal([]byte(trimmed), v); err != nil {
		return errors.Wrapf(err, "failed to decode model response as JSON")
	}
	return nil
}
