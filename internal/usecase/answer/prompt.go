package answer

import (
	"strings"

	"github.com/kailas-cloud/ragdesk/internal/domain"
)

// contextSeparator joins retrieved chunk texts in rank order.
const contextSeparator = "\n\n"

// PromptTemplate is the configurable part of the system prompt.
// Empty fields are left out of the rendered prompt.
type PromptTemplate struct {
	Role              string
	StyleOrTone       []string
	Instruction       string
	OutputConstraints []string
	OutputFormat      []string
}

// System renders the system prompt followed by the retrieved context.
func (t PromptTemplate) System(context string) string {
	var b strings.Builder

	if t.Role != "" {
		b.WriteString("Role: ")
		b.WriteString(t.Role)
		b.WriteString("\n\n")
	}
	writeList(&b, "Style or Tone", t.StyleOrTone)
	if t.Instruction != "" {
		b.WriteString("Instruction:\n")
		b.WriteString(t.Instruction)
		b.WriteString("\n\n")
	}
	writeList(&b, "Output Constraints", t.OutputConstraints)
	writeList(&b, "Output Format", t.OutputFormat)

	b.WriteString("Now, using the following context, answer the user's query.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(context)
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(title)
	b.WriteString(":\n")
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// BuildContext joins chunk texts with a blank line, best chunk first.
func BuildContext(chunks []domain.RetrievedChunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return strings.Join(texts, contextSeparator)
}
