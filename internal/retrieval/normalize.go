package retrieval

import (
	"sort"
	"strings"
)

// SummaryInstruction is the canonical query for vague requests about a whole document.
const SummaryInstruction = "Summarize the main topics, purpose and key facts of the document."

// Rule rewrites any question containing Phrase (case-insensitive) to Canonical.
type Rule struct {
	Phrase    string
	Canonical string
}

// DefaultRules covers the common ways of asking for a summary without naming a topic.
func DefaultRules() []Rule {
	phrases := []string{
		"summarize this",
		"summarise this",
		"summarize the document",
		"summarise the document",
		"summary of this",
		"give me a summary",
		"explain this document",
		"explain the document",
		"what is this document about",
		"what's this document about",
		"what is this about",
		"tell me about this document",
		"give me an overview",
	}
	rules := make([]Rule, len(phrases))
	for i, p := range phrases {
		rules[i] = Rule{Phrase: p, Canonical: SummaryInstruction}
	}
	return rules
}

// Normalizer maps vague questions to canonical queries. Rules are tried in
// order and the first match wins; questions matching nothing pass through.
type Normalizer struct {
	rules []Rule
}

// NewNormalizer builds a normalizer from DefaultRules followed by extra
// phrase → canonical pairs, which are applied in phrase order.
func NewNormalizer(extra map[string]string) *Normalizer {
	rules := DefaultRules()
	phrases := make([]string, 0, len(extra))
	for p := range extra {
		phrases = append(phrases, p)
	}
	sort.Strings(phrases)
	for _, p := range phrases {
		rules = append(rules, Rule{Phrase: p, Canonical: extra[p]})
	}
	return NewNormalizerWithRules(rules)
}

// NewNormalizerWithRules builds a normalizer from exactly rules.
func NewNormalizerWithRules(rules []Rule) *Normalizer {
	n := &Normalizer{rules: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		phrase := strings.ToLower(strings.TrimSpace(r.Phrase))
		if phrase == "" || r.Canonical == "" {
			continue
		}
		n.rules = append(n.rules, Rule{Phrase: phrase, Canonical: r.Canonical})
	}
	return n
}

// Normalize returns the canonical query for question, or question unchanged.
func (n *Normalizer) Normalize(question string) string {
	lower := strings.ToLower(question)
	for _, r := range n.rules {
		if strings.Contains(lower, r.Phrase) {
			return r.Canonical
		}
	}
	return question
}
