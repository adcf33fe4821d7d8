package validation

import "github.com/Wainainajnr/ngongtownbot/internal/domain"

// Form tracks a lead being filled in together with its live field errors.
// A field is re-checked when it is blurred, or when it is edited while it
// already carries an error. Form is not safe for concurrent use.
type Form struct {
	lead   domain.RegistrationLead
	errors map[domain.LeadField]string
}

// NewForm creates an empty form.
func NewForm() *Form {
	return &Form{errors: make(map[domain.LeadField]string)}
}

// Edit records a keystroke-level change and returns the field's current error.
func (f *Form) Edit(v *Validator, field domain.LeadField, value string) string {
	f.lead.Set(field, value)
	if _, hasErr := f.errors[field]; hasErr {
		f.check(v, field)
	}
	return f.errors[field]
}

// Blur records the final value of a field and validates it.
func (f *Form) Blur(v *Validator, field domain.LeadField, value string) string {
	f.lead.Set(field, value)
	f.check(v, field)
	return f.errors[field]
}

// Replace swaps the whole record, keeping errors only for fields whose value
// is unchanged.
func (f *Form) Replace(l domain.RegistrationLead) {
	for field := range f.errors {
		if f.lead.Value(field) != l.Value(field) {
			delete(f.errors, field)
		}
	}
	f.lead = l
}

// SetErrors replaces the live errors with the result of a full validation.
func (f *Form) SetErrors(errs Errors) {
	f.errors = errs.Map()
}

// Errors returns the current errors in declared field order.
func (f *Form) Errors() Errors {
	var out Errors
	for _, field := range domain.LeadFields {
		if msg, ok := f.errors[field]; ok {
			out = append(out, FieldError{Field: field, Message: msg})
		}
	}
	return out
}

// Lead returns a copy of the current record.
func (f *Form) Lead() domain.RegistrationLead {
	return f.lead
}

// Reset empties the record and its errors.
func (f *Form) Reset() {
	f.lead = domain.RegistrationLead{}
	f.errors = make(map[domain.LeadField]string)
}

func (f *Form) check(v *Validator, field domain.LeadField) {
	if msg := v.Validate(field, f.lead.Value(field)); msg != "" {
		f.errors[field] = msg
	} else {
		delete(f.errors, field)
	}
}
