package letter

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ContentRules are compliance checks applied to rendered letter bodies.
// A zero value checks nothing.
type ContentRules struct {
	// MinLength fails letters shorter than this many characters. Zero disables.
	MinLength int
	// MaxLength warns on letters longer than this many characters. Zero disables.
	MaxLength int
	// References are phrase groups a letter should cite; any phrase in a group
	// satisfies it. Matching ignores case.
	References [][]string
	// Soften lists wording that reads as a threat to a bureau.
	Soften []string
}

// DefaultContentRules cite the FCRA, the 30-day window and the request to
// investigate, and flag adversarial wording.
func DefaultContentRules() ContentRules {
	return ContentRules{
		MinLength: 200,
		MaxLength: 2000,
		References: [][]string{
			{"Fair Credit Reporting Act", "FCRA"},
			{"30 days"},
			{"investigate", "investigation"},
		},
		Soften: []string{"demand", "require", "must", "will sue", "lawsuit", "attorney", "legal action"},
	}
}

// ContentReport is the outcome of Check. Problem is set when the letter
// cannot be sent.
type ContentReport struct {
	Warnings []string
	Problem  string
}

// Check evaluates body against the rules.
func (r ContentRules) Check(body string) ContentReport {
	var report ContentReport
	lower := strings.ToLower(body)

	for _, group := range r.References {
		if len(group) == 0 || containsAny(lower, group) {
			continue
		}
		report.Warnings = append(report.Warnings, "missing reference to "+strings.Join(group, " / "))
	}
	for _, word := range r.Soften {
		if strings.Contains(lower, strings.ToLower(word)) {
			report.Warnings = append(report.Warnings, fmt.Sprintf("consider softening %q", word))
		}
	}

	length := utf8.RuneCountInString(strings.TrimSpace(body))
	if r.MinLength > 0 && length < r.MinLength {
		report.Problem = fmt.Sprintf("letter is too short (%d characters, minimum %d)", length, r.MinLength)
	}
	if r.MaxLength > 0 && length > r.MaxLength {
		report.Warnings = append(report.Warnings, fmt.Sprintf("letter is long (%d characters), consider condensing", length))
	}
	return report
}

func containsAny(lower string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
