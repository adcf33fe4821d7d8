package lead

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// CourseMatcher resolves free-text course names to the course list.
type CourseMatcher struct {
	courses []string
}

// NewCourseMatcher creates a matcher over courses.
func NewCourseMatcher(courses []string) *CourseMatcher {
	return &CourseMatcher{courses: append([]string(nil), courses...)}
}

// Match returns the course list entry for s: an exact case-insensitive match
// first, otherwise the best fuzzy match.
func (m *CourseMatcher) Match(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, c := range m.courses {
		if strings.EqualFold(c, s) {
			return c, true
		}
	}
	matches := fuzzy.Find(s, m.courses)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0].Str, true
}
