package i18n

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed locales/default.yaml
var defaultLocales embed.FS

// Catalog holds notification texts keyed by language and dot-separated key.
type Catalog struct {
	texts map[string]map[string]any
}

// Default returns the built-in catalog.
func Default() *Catalog {
	content, err := defaultLocales.ReadFile("locales/default.yaml")
	if err != nil {
		panic(err)
	}
	c, err := Parse(content, "yaml")
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a catalog file. The format follows the file extension
// (.yaml, .yml or .json).
func Load(path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToReadFile, err)
	}
	return Parse(content, filepath.Ext(path))
}

// Parse decodes catalog content in the given format.
func Parse(content []byte, format string) (*Catalog, error) {
	var (
		texts map[string]map[string]any
		err   error
	)
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		texts, err = parseYAML(content)
	case "json":
		texts, err = parseJSON(content)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	return &Catalog{texts: texts}, nil
}

// Merge returns a catalog where keys from other override keys in c.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	out := &Catalog{texts: make(map[string]map[string]any, len(c.texts))}
	for lang, m := range c.texts {
		out.texts[lang] = deepMerge(nil, m)
	}
	if other == nil {
		return out
	}
	for lang, m := range other.texts {
		out.texts[lang] = deepMerge(out.texts[lang], m)
	}
	return out
}

// Languages lists the catalog languages in sorted order.
func (c *Catalog) Languages() []string {
	langs := make([]string, 0, len(c.texts))
	for lang := range c.texts {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Lookup returns the text for key in lang.
func (c *Catalog) Lookup(lang, key string) (string, bool) {
	m, ok := c.texts[lang]
	if !ok {
		return "", false
	}
	v, ok := lookup(m, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// For returns a view of the catalog bound to the best language for pref,
// which accepts the Accept-Language syntax.
func (c *Catalog) For(pref string) Texts {
	return Texts{catalog: c, lang: MatchLanguage(pref, c.Languages(), DefaultLanguage)}
}

// Texts resolves keys for one language and falls back to DefaultLanguage.
type Texts struct {
	catalog *Catalog
	lang    string
}

// Lang is the resolved language.
func (t Texts) Lang() string { return t.lang }

// Text returns the text for key.
func (t Texts) Text(key string) (string, bool) {
	if t.catalog == nil {
		return "", false
	}
	if s, ok := t.catalog.Lookup(t.lang, key); ok {
		return s, true
	}
	if t.lang != DefaultLanguage {
		return t.catalog.Lookup(DefaultLanguage, key)
	}
	return "", false
}

func languages(data map[string]any) (map[string]map[string]any, error) {
	if len(data) == 0 {
		return nil, ErrEmptyCatalog
	}
	result := make(map[string]map[string]any, len(data))
	for lang, val := range data {
		m, ok := asMap(val)
		if !ok || lang == "" {
			return nil, fmt.Errorf("%w: language %q must map to keys, got %T", ErrInvalidCatalog, lang, val)
		}
		result[strings.ToLower(lang)] = m
	}
	return result, nil
}

func lookup(m map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	current := m
	for i, part := range parts {
		val, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return val, true
		}
		if current, ok = asMap(val); !ok {
			return nil, false
		}
	}
	return nil, false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			if ks, ok := k.(string); ok {
				out[ks] = v
			}
		}
		return out, true
	}
	return nil, false
}

func deepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if sm, ok := asMap(v); ok {
			dm, _ := asMap(out[k])
			out[k] = deepMerge(dm, sm)
			continue
		}
		out[k] = v
	}
	return out
}
