// Package intent maps free-text user input to canned response keys.
package intent

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Wainainajnr/ngongtownbot/internal/catalog"
)

// shortTrigger is the rune length at or below which a single-word trigger
// only matches a whole token, so "hi" does not fire inside "this".
const shortTrigger = 3

// Mode selects what happens when no trigger group matches.
type Mode string

const (
	// ModeStrict reports no match so the caller can escalate.
	ModeStrict Mode = "strict"
	// ModeLenient answers unmatched input with the greeting menu.
	ModeLenient Mode = "lenient"
)

// ParseMode validates a configured routing mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStrict:
		return ModeStrict, nil
	case ModeLenient:
		return ModeLenient, nil
	}
	return "", fmt.Errorf("unknown routing mode %q", s)
}

// Match is the routing result.
type Match struct {
	// Key is the selected response, or "" for no match.
	Key catalog.Key
	// Matched is true when a trigger fired, false for a lenient default.
	Matched bool
	// FormRequested is set when the form trigger group fired.
	FormRequested bool
}

// None reports an explicit no-match.
func (m Match) None() bool {
	return m.Key == ""
}

type group struct {
	key     catalog.Key
	tokens  map[string]struct{}
	phrases []string
}

func compile(g catalog.Group) group {
	cg := group{key: g.Key, tokens: make(map[string]struct{})}
	for _, raw := range g.Triggers {
		trig := strings.ToLower(strings.TrimSpace(raw))
		if trig == "" {
			continue
		}
		if isWord(trig) && (g.TokenMatch || utf8.RuneCountInString(trig) <= shortTrigger) {
			cg.tokens[trig] = struct{}{}
			continue
		}
		cg.phrases = append(cg.phrases, trig)
	}
	return cg
}

func (g group) matches(text string, tokens []string) bool {
	for _, tok := range tokens {
		if _, ok := g.tokens[tok]; ok {
			return true
		}
	}
	for _, p := range g.phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// Router is a deterministic trigger matcher. It is read-only after
// construction and safe for concurrent use.
type Router struct {
	groups []group
	form   group
	mode   Mode
}

// NewRouter compiles the catalog's trigger groups.
func NewRouter(c *catalog.Catalog, mode Mode) *Router {
	r := &Router{form: compile(c.Form), mode: mode}
	for _, g := range c.Groups {
		r.groups = append(r.groups, compile(g))
	}
	return r
}

// Mode returns the configured routing mode.
func (r *Router) Mode() Mode {
	return r.mode
}

// Route selects the response key for text. Informational groups are tried in
// order and the first hit wins; the form group is checked independently.
func (r *Router) Route(text string) Match {
	norm := strings.ToLower(strings.TrimSpace(text))
	tokens := tokenize(norm)

	var m Match
	for _, g := range r.groups {
		if g.matches(norm, tokens) {
			m.Key = g.key
			m.Matched = true
			break
		}
	}
	if r.form.matches(norm, tokens) {
		m.FormRequested = true
		m.Matched = true
		// "start registration" also hits a greeting word; the form reply is
		// the more specific answer.
		if m.Key == "" || m.Key == catalog.KeyGreeting {
			m.Key = r.form.key
		}
	}
	if m.Key == "" && r.mode == ModeLenient {
		m.Key = catalog.KeyGreeting
	}
	return m
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isWord(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
