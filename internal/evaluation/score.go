package evaluation

import (
	"math"
	"sort"
	"strings"

	"docrag/internal/domain"
)

const (
	keywordPassScore  = 0.5
	faithfulThreshold = 0.3
	overlapSampleSize = 10
)

// RetrievalScore grades whether retrieval surfaced the expected material.
type RetrievalScore struct {
	Passed       bool    `json:"passed"`
	Reason       string  `json:"reason,omitempty"`
	KeywordScore float64 `json:"keyword_score"`
	SourceMatch  bool    `json:"source_match"`
	NumChunks    int     `json:"num_chunks"`
}

// FaithfulnessScore grades how much of an answer is backed by the context.
type FaithfulnessScore struct {
	Faithful           bool     `json:"faithful"`
	Reason             string   `json:"reason,omitempty"`
	OverlapScore       float64  `json:"overlap_score"`
	OverlapWordsSample []string `json:"overlap_words_sample,omitempty"`
}

// KeywordCoverage is the share of keywords found in text, case-insensitively.
// An empty keyword list scores 0.
func KeywordCoverage(text string, keywords []string) float64 {
	lower := strings.ToLower(text)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched++
		}
	}
	return float64(matched) / float64(max(len(keywords), 1))
}

// ScoreRetrieval passes when at least half the keywords appear in the
// retrieved text and some chunk comes from the expected source.
func ScoreRetrieval(chunks []domain.Chunk, keywords []string, expectedSource string) RetrievalScore {
	if len(chunks) == 0 {
		return RetrievalScore{Reason: "no_chunks_retrieved"}
	}
	coverage := KeywordCoverage(joinText(chunks), keywords)
	want := strings.ToLower(expectedSource)
	match := false
	for _, c := range chunks {
		if strings.Contains(strings.ToLower(c.Metadata.SourceName), want) {
			match = true
			break
		}
	}
	return RetrievalScore{
		Passed:       coverage >= keywordPassScore && match,
		KeywordScore: round2(coverage),
		SourceMatch:  match,
		NumChunks:    len(chunks),
	}
}

// ScoreFaithfulness measures the share of distinct answer words that also occur
// in the context. Words are split on whitespace and lowercased.
func ScoreFaithfulness(answer, context string) FaithfulnessScore {
	if strings.TrimSpace(context) == "" {
		return FaithfulnessScore{Reason: "empty_context"}
	}
	answerWords := wordSet(answer)
	if len(answerWords) == 0 {
		return FaithfulnessScore{Reason: "empty_answer"}
	}
	contextWords := wordSet(context)
	var overlap []string
	for w := range answerWords {
		if _, ok := contextWords[w]; ok {
			overlap = append(overlap, w)
		}
	}
	sort.Strings(overlap)
	score := float64(len(overlap)) / float64(len(answerWords))
	return FaithfulnessScore{
		Faithful:           score >= faithfulThreshold,
		OverlapScore:       round2(score),
		OverlapWordsSample: overlap[:min(len(overlap), overlapSampleSize)],
	}
}

// HasRequiredSource reports whether any chunk's source contains one of required.
// An empty requirement always holds.
func HasRequiredSource(chunks []domain.Chunk, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		r = strings.ToLower(r)
		for _, c := range chunks {
			if strings.Contains(strings.ToLower(c.Metadata.SourceName), r) {
				return true
			}
		}
	}
	return false
}

func joinText(chunks []domain.Chunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, " ")
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
