package openai

import (
	"strings"

	"docrag/internal/domain"
)

const systemPrompt = `Use ONLY the information provided in the context.
Do not mention yourself, the model, or the context.

If the answer is not present, reply exactly:
"` + domain.RefusalText + `"

If the user asks for a summary, write 2-3 concise professional sentences.
If multiple documents mention different answers, list all distinct answers clearly instead of choosing only one.`

// BuildPrompt renders the user turn: numbered context passages followed by the question.
func BuildPrompt(question string, contexts []string) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, c := range contexts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimSpace(c))
	}
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nAnswer:")
	return b.String()
}
