package domain

import "time"

// LeadField names one field of a RegistrationLead.
type LeadField string

const (
	FieldFullName              LeadField = "fullName"
	FieldDateOfBirth           LeadField = "dateOfBirth"
	FieldIDNumber              LeadField = "idNumber"
	FieldPhoneNumber           LeadField = "phoneNumber"
	FieldEmail                 LeadField = "email"
	FieldEmergencyContactName  LeadField = "emergencyContactName"
	FieldEmergencyContactPhone LeadField = "emergencyContactPhone"
	FieldPreferredCourse       LeadField = "preferredCourse"
	FieldPreferredIntake       LeadField = "preferredIntake"
	FieldAdditionalNotes       LeadField = "additionalNotes"
)

// LeadFields lists every lead field in declared order. Focus after a failed
// submit goes to the first field in this order that carries an error.
var LeadFields = []LeadField{
	FieldFullName,
	FieldDateOfBirth,
	FieldIDNumber,
	FieldPhoneNumber,
	FieldEmail,
	FieldEmergencyContactName,
	FieldEmergencyContactPhone,
	FieldPreferredCourse,
	FieldPreferredIntake,
	FieldAdditionalNotes,
}

// ParseLeadField returns the field with the given wire name.
func ParseLeadField(name string) (LeadField, bool) {
	for _, f := range LeadFields {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}

// RegistrationLead is the structured registration form record.
type RegistrationLead struct {
	FullName              string `json:"fullName"`
	DateOfBirth           string `json:"dateOfBirth"`
	IDNumber              string `json:"idNumber"`
	PhoneNumber           string `json:"phoneNumber"`
	Email                 string `json:"email"`
	EmergencyContactName  string `json:"emergencyContactName"`
	EmergencyContactPhone string `json:"emergencyContactPhone"`
	PreferredCourse       string `json:"preferredCourse"`
	PreferredIntake       string `json:"preferredIntake"`
	AdditionalNotes       string `json:"additionalNotes"`
}

// Value returns the raw value of a field.
func (l *RegistrationLead) Value(f LeadField) string {
	switch f {
	case FieldFullName:
		return l.FullName
	case FieldDateOfBirth:
		return l.DateOfBirth
	case FieldIDNumber:
		return l.IDNumber
	case FieldPhoneNumber:
		return l.PhoneNumber
	case FieldEmail:
		return l.Email
	case FieldEmergencyContactName:
		return l.EmergencyContactName
	case FieldEmergencyContactPhone:
		return l.EmergencyContactPhone
	case FieldPreferredCourse:
		return l.PreferredCourse
	case FieldPreferredIntake:
		return l.PreferredIntake
	case FieldAdditionalNotes:
		return l.AdditionalNotes
	}
	return ""
}

// Set assigns the raw value of a field. Unknown fields are ignored.
func (l *RegistrationLead) Set(f LeadField, v string) {
	switch f {
	case FieldFullName:
		l.FullName = v
	case FieldDateOfBirth:
		l.DateOfBirth = v
	case FieldIDNumber:
		l.IDNumber = v
	case FieldPhoneNumber:
		l.PhoneNumber = v
	case FieldEmail:
		l.Email = v
	case FieldEmergencyContactName:
		l.EmergencyContactName = v
	case FieldEmergencyContactPhone:
		l.EmergencyContactPhone = v
	case FieldPreferredCourse:
		l.PreferredCourse = v
	case FieldPreferredIntake:
		l.PreferredIntake = v
	case FieldAdditionalNotes:
		l.AdditionalNotes = v
	}
}

// IsZero reports whether every field is empty.
func (l *RegistrationLead) IsZero() bool {
	return *l == RegistrationLead{}
}

// StoredLead is a validated lead as written to the lead store.
type StoredLead struct {
	ID   string           `json:"id"`
	Lead RegistrationLead `json:"lead"`
	// CatalogCourse is the course list entry the submitted course resolved
	// to, or "" when it matched none.
	CatalogCourse string    `json:"catalogCourse,omitempty"`
	Language      string    `json:"language"`
	EscalationURL string    `json:"escalationUrl"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// BusinessLocation is the time zone the school operates in (East Africa Time).
var BusinessLocation = time.FixedZone("EAT", 3*60*60)
