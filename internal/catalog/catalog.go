// Package catalog holds the static response table: trigger groups, localized
// reply templates, the completion preamble and the business facts they share.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Wainainajnr/ngongtownbot/internal/i18n"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Key identifies a canned response.
type Key string

const (
	KeyGreeting             Key = "greeting"
	KeyCourseInfo           Key = "course_info"
	KeyRegistration         Key = "registration"
	KeyPaymentNTSA          Key = "payment_ntsa"
	KeyLicensePrerequisites Key = "license_prerequisites"
	KeyStartRegistration    Key = "start_registration"
)

// Group is an ordered set of triggers selecting one response key.
type Group struct {
	Key        Key      `yaml:"key"`
	TokenMatch bool     `yaml:"token_match"`
	Triggers   []string `yaml:"triggers"`
}

// Entry is a canned response.
type Entry struct {
	Text        map[i18n.Language]string `yaml:"text"`
	DisplayHint string                   `yaml:"display_hint"`
	OpensForm   bool                     `yaml:"opens_form"`
}

// Business carries the facts interpolated into replies.
type Business struct {
	Name       string `yaml:"name"`
	Phone      string `yaml:"phone"`
	WhatsApp   string `yaml:"whatsapp"`
	Email      string `yaml:"email"`
	CallCenter string `yaml:"call_center"`
	Location   string `yaml:"location"`
	Portal     string `yaml:"portal"`
}

// Catalog is the immutable response table. It is safe for concurrent use
// because nothing mutates it after Load.
type Catalog struct {
	Business  Business                 `yaml:"business"`
	Courses   []string                 `yaml:"courses"`
	Groups    []Group                  `yaml:"groups"`
	Form      Group                    `yaml:"form"`
	Menu      map[i18n.Language]string `yaml:"menu"`
	Responses map[Key]Entry            `yaml:"responses"`
	Preamble  map[i18n.Language]string `yaml:"preamble"`
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// MustLoad is like Load but panics on error.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes and checks a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Groups) == 0 {
		return fmt.Errorf("no trigger groups")
	}
	if c.Groups[0].Key != KeyGreeting {
		return fmt.Errorf("first group must be %q, got %q", KeyGreeting, c.Groups[0].Key)
	}
	groups := append([]Group{c.Form}, c.Groups...)
	for _, g := range groups {
		if len(g.Triggers) == 0 {
			return fmt.Errorf("group %q has no triggers", g.Key)
		}
		entry, ok := c.Responses[g.Key]
		if !ok {
			return fmt.Errorf("group %q has no response", g.Key)
		}
		if entry.Text[i18n.English] == "" {
			return fmt.Errorf("response %q has no English text", g.Key)
		}
	}
	if c.Business.WhatsApp == "" {
		return fmt.Errorf("business whatsapp number is empty")
	}
	return nil
}

// Entry returns the response for key.
func (c *Catalog) Entry(key Key) (Entry, bool) {
	e, ok := c.Responses[key]
	return e, ok
}

// Text renders the response for key in lang, falling back to English.
func (c *Catalog) Text(key Key, lang i18n.Language) (string, bool) {
	e, ok := c.Responses[key]
	if !ok {
		return "", false
	}
	return i18n.Interpolate(pick(e.Text, lang), c.Values(lang)), true
}

// SystemPreamble renders the completion preamble for lang.
func (c *Catalog) SystemPreamble(lang i18n.Language) string {
	return i18n.Interpolate(pick(c.Preamble, lang), c.Values(lang))
}

// Values returns the placeholder values shared by every template.
func (c *Catalog) Values(lang i18n.Language) map[string]string {
	return map[string]string{
		"businessName":  c.Business.Name,
		"businessPhone": c.Business.Phone,
		"businessEmail": c.Business.Email,
		"callCenter":    c.Business.CallCenter,
		"location":      c.Business.Location,
		"portal":        c.Business.Portal,
		"menu":          pick(c.Menu, lang),
	}
}

func pick(texts map[i18n.Language]string, lang i18n.Language) string {
	if s, ok := texts[lang]; ok && s != "" {
		return s
	}
	return texts[i18n.English]
}
