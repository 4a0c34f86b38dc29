package answer

import (
	"fmt"
	"strings"
)

// Policy selects how strictly generated text is matched against refusal phrases.
type Policy string

const (
	// PolicyPrefix treats text as a refusal when it starts with a phrase.
	PolicyPrefix Policy = "prefix"
	// PolicyContains treats text as a refusal when a phrase appears anywhere.
	PolicyContains Policy = "contains"
)

// DefaultRefusalPhrases are matched lowercased, with curly apostrophes folded.
var DefaultRefusalPhrases = []string{
	"i don't know",
	"i do not know",
}

// ParsePolicy maps a config value to a Policy. Empty means prefix.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyPrefix:
		return PolicyPrefix, nil
	case PolicyContains:
		return PolicyContains, nil
	}
	return "", fmt.Errorf("unknown refusal policy %q", s)
}

// RefusalDetector decides whether generated text declines to answer.
type RefusalDetector struct {
	Phrases []string
	Policy  Policy
}

// NewRefusalDetector normalizes phrases once. Nil phrases use DefaultRefusalPhrases.
func NewRefusalDetector(phrases []string, policy Policy) RefusalDetector {
	if phrases == nil {
		phrases = DefaultRefusalPhrases
	}
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = fold(p); p != "" {
			out = append(out, p)
		}
	}
	return RefusalDetector{Phrases: out, Policy: policy}
}

// IsRefusal reports whether text matches a refusal phrase under the detector's policy.
func (d RefusalDetector) IsRefusal(text string) bool {
	t := fold(text)
	for _, p := range d.Phrases {
		if d.Policy == PolicyContains {
			if strings.Contains(t, p) {
				return true
			}
		} else if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'")

func fold(s string) string {
	return apostrophes.Replace(strings.ToLower(strings.TrimSpace(s)))
}
