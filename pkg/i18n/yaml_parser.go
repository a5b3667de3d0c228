package i18n

import (
	"errors"

	"gopkg.in/yaml.v3"
)

// parseYAML decodes a catalog of the form
//
//	en:
//	  updates:
//	    grade:
//	      title: New Grade Posted
func parseYAML(content []byte) (map[string]map[string]any, error) {
	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, errors.Join(ErrFailedToParseYAML, err)
	}
	return languages(data)
}
