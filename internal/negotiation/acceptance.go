package negotiation

import (
	"regexp"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/extractor"
)

// DefaultAcceptKeywords signal affirmative intent.
var DefaultAcceptKeywords = []string{
	"deal",
	"accept",
	"agree",
	"sounds good",
	"let's do it",
	"i'll take it",
	"happy to take it",
	"ok",
}

// AcceptanceMatcher detects affirmative intent by whole-word keyword match.
type AcceptanceMatcher struct {
	re *regexp.Regexp
}

func NewAcceptanceMatcher(keywords []string) *AcceptanceMatcher {
	return &AcceptanceMatcher{re: extractor.PhraseMatcher(keywords)}
}

func (m *AcceptanceMatcher) Matches(text string) bool {
	if m == nil || m.re == nil {
		return false
	}
	return m.re.MatchString(text)
}
