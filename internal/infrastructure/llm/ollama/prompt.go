package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const maxPromptHistory = 6

func buildAnswerPrompt(question string, passages []domain.ScoredChunk, history []domain.ConversationMessage) string {
	var contextBuilder strings.Builder
	for idx, passage := range passages {
		label := passage.DocumentID
		if passage.SectionTitle != "" {
			label += " / " + passage.SectionTitle
		}
		contextBuilder.WriteString(fmt.Sprintf("[%d] %s\n%s\n\n", idx+1, label, passage.Text))
	}

	return fmt.Sprintf(`Answer the user question only from the numbered passages below.
Cite passages inline by their number, for example [1] or [2][3].
If the passages are insufficient, say it directly.
%s
Question:
%s

Passages:
%s`, formatHistory(history), question, contextBuilder.String())
}

func buildTermSuggestionPrompt(question string, terms []string, history []domain.ConversationMessage) string {
	return fmt.Sprintf(`A document search for the question below found nothing.
Suggest up to %d alternative search terms: synonyms, related words and likely spellings that could appear in the documents.
Return strict JSON object {"terms": [string]}. Single lowercase words only. No markdown, no extra keys.
%s
Question:
%s

Terms already tried:
%s
`, maxSuggestedTerms, formatHistory(history), question, strings.Join(terms, ", "))
}

func formatHistory(history []domain.ConversationMessage) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > maxPromptHistory {
		history = history[len(history)-maxPromptHistory:]
	}
	var b strings.Builder
	b.WriteString("\nConversation so far:\n")
	for _, msg := range history {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(msg.Content))
		b.WriteString("\n")
	}
	return b.String()
}
