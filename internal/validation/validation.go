// Package validation implements the registration lead field rules.
package validation

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/Wainainajnr/ngongtownbot/internal/domain"
	"github.com/Wainainajnr/ngongtownbot/internal/i18n"
)

const (
	nameMinLen = 2
	nameMaxLen = 100
	dateLayout = "2006-01-02"
)

var (
	phonePattern = regexp.MustCompile(`^(\+?254|0)?[17]\d{8}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	whitespace   = regexp.MustCompile(`\s+`)
)

var validate = validator.New()

// idNumberRule accepts 5 to 20 ASCII letters or digits.
const idNumberRule = "alphanum,min=5,max=20"

var required = map[domain.LeadField]bool{
	domain.FieldFullName:              true,
	domain.FieldDateOfBirth:           true,
	domain.FieldIDNumber:              true,
	domain.FieldPhoneNumber:           true,
	domain.FieldEmergencyContactName:  true,
	domain.FieldEmergencyContactPhone: true,
	domain.FieldPreferredCourse:       true,
	domain.FieldPreferredIntake:       true,
}

// IsRequired reports whether the field must be non-blank.
func IsRequired(f domain.LeadField) bool {
	return required[f]
}

// FieldError is a localized validation failure for one field.
type FieldError struct {
	Field   domain.LeadField `json:"field"`
	Message string           `json:"message"`
}

// Errors is an aggregate validation result in declared field order.
type Errors []FieldError

// First returns the first invalid field in declared order.
func (e Errors) First() (domain.LeadField, bool) {
	if len(e) == 0 {
		return "", false
	}
	return e[0].Field, true
}

// Map returns the errors keyed by field.
func (e Errors) Map() map[domain.LeadField]string {
	m := make(map[domain.LeadField]string, len(e))
	for _, fe := range e {
		m[fe.Field] = fe.Message
	}
	return m
}

// Get returns the message for a field, or "".
func (e Errors) Get(f domain.LeadField) string {
	for _, fe := range e {
		if fe.Field == f {
			return fe.Message
		}
	}
	return ""
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock sets the time source used for the intake date rule.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithLocation sets the zone in which "today" is computed.
func WithLocation(loc *time.Location) Option {
	return func(v *Validator) { v.loc = loc }
}

// Validator checks lead fields and produces messages in one language.
// Apart from reading the clock it holds no state, so the same (field, value)
// pair always yields the same message on a given day.
type Validator struct {
	msgs *i18n.Catalog
	lang i18n.Language
	now  func() time.Time
	loc  *time.Location
}

// New creates an English validator.
func New(msgs *i18n.Catalog, opts ...Option) *Validator {
	v := &Validator{
		msgs: msgs,
		lang: i18n.English,
		now:  time.Now,
		loc:  domain.BusinessLocation,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ForLanguage returns a copy of v producing messages in lang.
func (v *Validator) ForLanguage(lang i18n.Language) *Validator {
	c := *v
	c.lang = lang
	return &c
}

// Language returns the message language.
func (v *Validator) Language() i18n.Language {
	return v.lang
}

// Validate checks a single field and returns its error message, or "" when
// the value is acceptable.
func (v *Validator) Validate(field domain.LeadField, raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		if required[field] {
			return v.msg("validation.required", field)
		}
		return ""
	}

	switch field {
	case domain.FieldFullName:
		n := utf8.RuneCountInString(value)
		if n < nameMinLen {
			return v.msg("validation.tooShort", field)
		}
		if n > nameMaxLen {
			return v.msg("validation.tooLong", field)
		}
	case domain.FieldPhoneNumber:
		if !IsKenyanPhone(value) {
			return v.msg("validation.phone", field)
		}
	case domain.FieldEmergencyContactPhone:
		if !IsKenyanPhone(value) {
			return v.msg("validation.emergencyPhone", field)
		}
	case domain.FieldEmail:
		// The shape check runs on the raw value; surrounding blanks fail it.
		if !emailPattern.MatchString(raw) {
			return v.msg("validation.email", field)
		}
	case domain.FieldIDNumber:
		if validate.Var(value, idNumberRule) != nil {
			return v.msg("validation.idNumber", field)
		}
	case domain.FieldPreferredIntake:
		intake, err := ParseDate(value, v.loc)
		if err != nil {
			return v.msg("validation.date", field)
		}
		if intake.Before(v.today()) {
			return v.msg("validation.intakePast", field)
		}
	}
	return ""
}

// ValidateLead runs every field through its rule and aggregates all failures.
func (v *Validator) ValidateLead(l domain.RegistrationLead) Errors {
	var errs Errors
	for _, f := range domain.LeadFields {
		if msg := v.Validate(f, l.Value(f)); msg != "" {
			errs = append(errs, FieldError{Field: f, Message: msg})
		}
	}
	return errs
}

func (v *Validator) msg(key string, field domain.LeadField) string {
	label := v.msgs.T(v.lang, "label."+string(field), nil)
	return v.msgs.T(v.lang, key, map[string]string{"label": label})
}

func (v *Validator) today() time.Time {
	now := v.now().In(v.loc)
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, v.loc)
}

// IsKenyanPhone reports whether s is a Kenyan mobile number once internal
// whitespace is removed.
func IsKenyanPhone(s string) bool {
	return phonePattern.MatchString(whitespace.ReplaceAllString(s, ""))
}

// ParseDate parses a calendar date (YYYY-MM-DD, optionally followed by a time
// part) at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(dateLayout) && (s[len(dateLayout)] == 'T' || s[len(dateLayout)] == ' ') {
		s = s[:len(dateLayout)]
	}
	return time.ParseInLocation(dateLayout, s, loc)
}
