package prompt

import (
	"fmt"
	"strings"

	"docchat-be/pkg/chat"
	"docchat-be/pkg/llm"
)

// DocumentBuilder assembles the message list sent to the model for one chat turn.
type DocumentBuilder struct {
	context []chat.ContextItem
	history []chat.Turn
	query   string
}

func NewDocumentBuilder(context []chat.ContextItem, history []chat.Turn, query string) *DocumentBuilder {
	return &DocumentBuilder{
		context: context,
		history: history,
		query:   query,
	}
}

// Messages returns the system prompt, then the prior turns in order, then the user's question.
func (b *DocumentBuilder) Messages() []llm.Message {
	messages := make([]llm.Message, 0, len(b.history)+2)
	messages = append(messages, llm.Message{Role: string(chat.RoleSystem), Content: b.System()})
	for _, turn := range b.history {
		messages = append(messages, llm.Message{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: string(chat.RoleUser), Content: b.query})
	return messages
}

// System builds the system prompt. Snippets keep the retrieval order so the most
// relevant material comes first.
func (b *DocumentBuilder) System() string {
	var prompt strings.Builder

	if len(b.context) == 0 {
		b.writeNoDocumentsTask(&prompt)
		return prompt.String()
	}

	b.writeReferenceMaterial(&prompt)
	b.writeTask(&prompt)
	b.writeGuidelines(&prompt)
	return prompt.String()
}

func (b *DocumentBuilder) writeReferenceMaterial(prompt *strings.Builder) {
	prompt.WriteString("<reference_material>\n")
	for i, item := range b.context {
		if i > 0 {
			prompt.WriteString("\n")
		}
		fmt.Fprintf(prompt, "<document filename=%q chunk=\"%d\">\n", item.Filename, item.ChunkIndex)
		prompt.WriteString(item.ChunkText)
		prompt.WriteString("\n</document>\n")
	}
	prompt.WriteString("</reference_material>\n\n")
}

func (b *DocumentBuilder) writeTask(prompt *strings.Builder) {
	prompt.WriteString("<task>\n")
	prompt.WriteString("You are a helpful assistant with access to excerpts from the user's uploaded documents.\n")
	prompt.WriteString("Answer the user's question using the reference material when it is relevant.\n")
	prompt.WriteString("</task>\n\n")
}

func (b *DocumentBuilder) writeGuidelines(prompt *strings.Builder) {
	prompt.WriteString("<guidelines>\n")
	prompt.WriteString("1. Prefer the reference material over general knowledge\n")
	prompt.WriteString("2. Name the document a fact came from when you use it\n")
	prompt.WriteString("3. If the material does not cover the question, say so and then help from general knowledge\n")
	prompt.WriteString("4. Be concise but complete\n")
	prompt.WriteString("</guidelines>")
}

func (b *DocumentBuilder) writeNoDocumentsTask(prompt *strings.Builder) {
	prompt.WriteString("<task>\n")
	prompt.WriteString("You are a helpful assistant. No relevant excerpts from the user's documents are available for this question, ")
	prompt.WriteString("so answer from general knowledge and make clear that the answer is not based on their documents. ")
	prompt.WriteString("If they have not uploaded anything yet, mention that uploading documents enables grounded answers.\n")
	prompt.WriteString("</task>")
}
