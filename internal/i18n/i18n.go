// Package i18n provides language negotiation and localized string lookup.
package i18n

import (
	"embed"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Language is one of the supported conversation languages.
type Language string

const (
	English Language = "en"
	Swahili Language = "sw"
)

// Supported lists the supported languages. English is the fallback and must
// stay first.
var Supported = []Language{English, Swahili}

var (
	matcher     = language.NewMatcher([]language.Tag{language.English, language.Swahili})
	placeholder = regexp.MustCompile(`\{(\w+)\}`)
)

// Parse resolves a BCP 47 tag such as "sw-KE" to a supported language.
func Parse(tag string) (Language, bool) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", false
	}
	t, err := language.Parse(tag)
	if err != nil {
		return "", false
	}
	_, idx, conf := matcher.Match(t)
	if conf == language.No {
		return "", false
	}
	return Supported[idx], true
}

// Match negotiates an Accept-Language header value, returning fallback when
// nothing acceptable is offered.
func Match(acceptLanguage string, fallback Language) Language {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return fallback
	}
	return Supported[idx]
}

// Resolve picks the language for a request: an explicit tag wins, then the
// Accept-Language header, then fallback.
func Resolve(tag, acceptLanguage string, fallback Language) Language {
	if lang, ok := Parse(tag); ok {
		return lang
	}
	return Match(acceptLanguage, fallback)
}

// Interpolate replaces {key} placeholders with values. Placeholders without a
// non-empty value are left untouched.
func Interpolate(template string, values map[string]string) string {
	if len(values) == 0 {
		return template
	}
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		if v := values[m[1:len(m)-1]]; v != "" {
			return v
		}
		return m
	})
}

// Catalog holds the localized string tables. It is read-only after Load.
type Catalog struct {
	tables map[Language]map[string]string
}

// Load reads the embedded locale tables.
func Load() (*Catalog, error) {
	c := &Catalog{tables: make(map[Language]map[string]string, len(Supported))}
	for _, lang := range Supported {
		data, err := localeFS.ReadFile("locales/" + string(lang) + ".yaml")
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", lang, err)
		}
		table := make(map[string]string)
		if err := yaml.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", lang, err)
		}
		c.tables[lang] = table
	}
	return c, nil
}

// MustLoad is like Load but panics on error.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// T looks up key for lang, falling back to English and then to the key itself,
// and interpolates values.
func (c *Catalog) T(lang Language, key string, values map[string]string) string {
	if s, ok := c.tables[lang][key]; ok {
		return Interpolate(s, values)
	}
	if s, ok := c.tables[English][key]; ok {
		return Interpolate(s, values)
	}
	return key
}

// Has reports whether lang defines key without falling back.
func (c *Catalog) Has(lang Language, key string) bool {
	_, ok := c.tables[lang][key]
	return ok
}
