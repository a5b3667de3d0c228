package i18n

import (
	"encoding/json"
	"errors"
)

// parseJSON decodes a catalog with the same shape as the YAML one.
func parseJSON(content []byte) (map[string]map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, errors.Join(ErrFailedToParseJSON, err)
	}
	return languages(data)
}
