package extractive

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"docrag/internal/domain"
	"docrag/internal/textutil"
)

// Generator answers by extracting the context sentences that best cover the
// question. Sentences are ranked by word frequency across the context (stopwords
// filtered) plus a boost for every question term they contain.
type Generator struct {
	maxSentences    int
	tokenPattern    *regexp.Regexp
	sentencePattern *regexp.Regexp
	stopwords       map[string]struct{}
}

// New creates an extractive generator returning at most maxSentences sentences.
func New(maxSentences int) *Generator {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Generator{
		maxSentences:    maxSentences,
		tokenPattern:    regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`),
		sentencePattern: regexp.MustCompile(`(?m)(?U)([^.!?\n]+[.!?])`),
		stopwords:       defaultStopwords(),
	}
}

// Name returns the identifier of this generator implementation.
func (g *Generator) Name() string { return "extractive" }

// Generate returns the highest ranked context sentences in their original order.
// With no usable context it returns the canonical refusal.
func (g *Generator) Generate(ctx context.Context, question string, contexts []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sentences := g.sentences(contexts)
	if len(sentences) == 0 {
		return domain.RefusalText, nil
	}

	// Compute word frequencies
	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range g.tokens(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	asked := map[string]struct{}{}
	for _, tok := range g.tokens(question) {
		asked[tok] = struct{}{}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := g.tokens(sent)
		sscore := 0.0
		for _, tok := range toks {
			sscore += freq[tok]
			if _, ok := asked[tok]; ok {
				sscore += 2
			}
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(toks)); l > 0 {
			sscore /= math.Sqrt(l)
		}
		scores[i] = pair{i, sscore}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	n := min(g.maxSentences, len(scores))

	// Keep original order among selected
	selected := make([]int, n)
	for i := range n {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, n)
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " "), nil
}

// sentences splits every context into sentences. Text without terminal
// punctuation, including a trailing fragment, is kept as a sentence.
func (g *Generator) sentences(contexts []string) []string {
	var out []string
	for _, c := range contexts {
		out = append(out, textutil.SplitSentences(g.sentencePattern, c)...)
	}
	return out
}

func (g *Generator) tokens(text string) []string {
	raw := g.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := g.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "when", "where", "why", "how", "do", "does", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
