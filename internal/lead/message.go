package lead

import (
	"net/url"
	"strings"
	"time"

	"github.com/Wainainajnr/ngongtownbot/internal/domain"
)

const (
	whatsAppBase    = "https://wa.me/"
	timestampLayout = "02/01/2006, 15:04:05"
)

// FormatMessage renders the operator-facing escalation message. Missing
// optional fields are spelled out rather than omitted. catalogCourse is
// appended to the course line when it differs from what was submitted.
func FormatMessage(l domain.RegistrationLead, catalogCourse string, submittedAt time.Time) string {
	course := l.PreferredCourse
	if catalogCourse != "" && catalogCourse != strings.TrimSpace(course) {
		course += " (" + catalogCourse + ")"
	}

	var b strings.Builder
	b.WriteString("🚗 NEW DRIVING SCHOOL REGISTRATION\n\n")

	b.WriteString("👤 PERSONAL DETAILS:\n")
	b.WriteString("Name: " + l.FullName + "\n")
	b.WriteString("Date of Birth: " + l.DateOfBirth + "\n")
	b.WriteString("ID/Passport: " + l.IDNumber + "\n")
	b.WriteString("Phone: " + l.PhoneNumber + "\n")
	b.WriteString("Email: " + orPlaceholder(l.Email, "Not provided") + "\n\n")

	b.WriteString("🆘 EMERGENCY CONTACT:\n")
	b.WriteString("Name: " + l.EmergencyContactName + "\n")
	b.WriteString("Phone: " + l.EmergencyContactPhone + "\n\n")

	b.WriteString("🎓 COURSE INFORMATION:\n")
	b.WriteString("Course: " + course + "\n")
	b.WriteString("Intake: " + l.PreferredIntake + "\n")
	b.WriteString("Notes: " + orPlaceholder(l.AdditionalNotes, "None") + "\n\n")

	b.WriteString("📅 Submitted: " + submittedAt.In(domain.BusinessLocation).Format(timestampLayout) + "\n\n")
	b.WriteString("Please contact within 24 hours!")
	return b.String()
}

// EscalationURL builds a WhatsApp deep link to number pre-filled with message.
// Spaces are encoded as %20 so the link survives clients that do not treat
// '+' as a space.
func EscalationURL(number, message string) string {
	return whatsAppBase + number + "?text=" + strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
}

func orPlaceholder(s, placeholder string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}
