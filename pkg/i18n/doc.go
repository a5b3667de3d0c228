// Package i18n provides localized texts for notifications the engine
// synthesizes from real-time updates.
//
// Catalogs are YAML or JSON documents keyed by language, then by nested
// keys addressed with dots:
//
//	en:
//	  updates:
//	    grade:
//	      title: New Grade Posted
//
// Default returns the built-in catalog (en, fr, sw). Load reads an
// override file which can be layered on top with Merge. Catalog.For binds
// a catalog to a language preference such as "fr-CA,fr;q=0.8"; lookups
// fall back to English.
package i18n
