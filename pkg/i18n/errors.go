package i18n

import "errors"

var (
	ErrFailedToParseJSON = errors.New("failed to parse JSON catalog")
	ErrFailedToParseYAML = errors.New("failed to parse YAML catalog")
	ErrFailedToReadFile  = errors.New("failed to read catalog file")
	ErrUnsupportedFormat = errors.New("unsupported catalog format")
	ErrEmptyCatalog      = errors.New("catalog has no languages")
	ErrInvalidCatalog    = errors.New("invalid catalog structure")
)
