package filter

import "regexp"

var (
	// criticalPatterns match a 6th semester exam form announcement directly.
	criticalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(vi|6th|6|sixth)\s*(-\s*)?sem(ester)?\b.*\bexam(ination)?s?\s*forms?\b`),
		regexp.MustCompile(`(?i)\bexam(ination)?s?\s*forms?\b.*\b(vi|6th|6|sixth)\s*(-\s*)?sem(ester)?\b`),
	}

	// examFormPattern is the generic fallback.
	examFormPattern = regexp.MustCompile(`(?i)\bexam(ination)?s?\s*forms?\b`)

	// excludedSemesterPattern names semesters other than the 6th.
	excludedSemesterPattern = regexp.MustCompile(`(?i)\b(i|ii|iii|iv|v|vii|viii|1st|2nd|3rd|4th|5th|7th|8th|first|second|third|fourth|fifth|seventh|eighth|[1-578])\s*(-\s*)?sem(ester)?\b`)
)

// IsCritical reports whether a notice title is a 6th semester exam form announcement.
// Explicit matches win regardless of other semesters named in the title. Otherwise a
// generic exam form title counts unless it names another semester.
func IsCritical(title string) bool {
	for _, p := range criticalPatterns {
		if p.MatchString(title) {
			return true
		}
	}
	return examFormPattern.MatchString(title) && !excludedSemesterPattern.MatchString(title)
}
