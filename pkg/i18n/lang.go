package i18n

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
)

// DefaultLanguage is used when no preference matches the catalog.
const DefaultLanguage = "en"

// maxPreferenceLength bounds the parsed preference string.
const maxPreferenceLength = 4096

type langWithQ struct {
	lang string
	q    float64
}

// parsePreferences parses an Accept-Language style list ("fr-CA,fr;q=0.8")
// ordered by descending quality.
func parsePreferences(pref string) []langWithQ {
	if pref == "" {
		return nil
	}
	if len(pref) > maxPreferenceLength {
		pref = pref[:maxPreferenceLength]
	}

	var languages []langWithQ
	for part := range strings.SplitSeq(pref, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		langAndQ := strings.Split(part, ";")
		lang := strings.ToLower(strings.TrimSpace(langAndQ[0]))
		lang = strings.ReplaceAll(lang, "_", "-")
		q := 1.0
		if len(langAndQ) > 1 {
			qPart := strings.TrimSpace(langAndQ[1])
			if v, ok := strings.CutPrefix(qPart, "q="); ok {
				if qVal, err := strconv.ParseFloat(v, 64); err == nil && qVal >= 0 && qVal <= 1 {
					q = qVal
				}
			}
		}
		if lang != "" {
			languages = append(languages, langWithQ{lang: lang, q: q})
		}
	}

	slices.SortStableFunc(languages, func(a, b langWithQ) int {
		return cmp.Compare(b.q, a.q)
	})
	return languages
}

// MatchLanguage picks the best supported language for pref. Exact matches
// win over base-language matches (fr-CA -> fr); defaultLang is returned
// when nothing matches.
func MatchLanguage(pref string, supported []string, defaultLang string) string {
	if pref == "" || len(supported) == 0 {
		return defaultLang
	}

	normalized := make([]string, len(supported))
	for i, lang := range supported {
		normalized[i] = strings.ToLower(lang)
	}

	languages := parsePreferences(pref)
	for _, lq := range languages {
		if slices.Contains(normalized, lq.lang) {
			return lq.lang
		}
	}
	for _, lq := range languages {
		if base, _, found := strings.Cut(lq.lang, "-"); found && slices.Contains(normalized, base) {
			return base
		}
	}
	return defaultLang
}
