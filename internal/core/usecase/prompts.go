package usecase

import (
	"fmt"
	"strings"

	"github.com/ayulabs/ayurag/internal/core/domain"
)

// OffTopicRefusal is the stable answer for queries outside the Ayurveda
// domain. Callers display it as a normal outcome, not an error.
const OffTopicRefusal = "I can only answer questions about Ayurveda: herbs, remedies, doshas, diet, and Ayurvedic lifestyle. Please ask me something within that domain."

var modePersonas = map[domain.Mode]string{
	domain.ModeGyaan:   "You are AyuSetu in Gyaan mode: a patient Ayurvedic scholar who explains classical concepts, their Sanskrit terms, and their textual roots in clear modern language.",
	domain.ModeVaidya:  "You are AyuSetu in Vaidya mode: an experienced Ayurvedic practitioner who responds in a warm consultation style, asking the reader to observe their own constitution and habits.",
	domain.ModeDrishti: "You are AyuSetu in Drishti mode: an Ayurvedic lens on symptoms and imbalances, mapping what the user describes to dosha patterns before suggesting direction.",
	domain.ModeLegacy:  "You are AyuSetu, a knowledgeable and careful guide to Ayurveda.",
}

func personaFor(mode domain.Mode) string {
	if persona, ok := modePersonas[mode]; ok {
		return persona
	}
	return modePersonas[domain.ModeLegacy]
}

func buildDomainCheckPrompt(query string) string {
	return fmt.Sprintf(`You are a domain classifier for an Ayurveda assistant.
Is the following question about Ayurveda, Ayurvedic herbs, remedies, doshas, constitution, diet, yoga, or Ayurvedic lifestyle?
Answer with exactly one word: yes or no.

Question:
%s`, query)
}

func buildRewritePrompt(query string) string {
	return fmt.Sprintf(`Rewrite the following user question as a focused search query for an Ayurvedic knowledge base.
Keep it one sentence, expand vague wording into Ayurvedic terminology where it is clearly implied, and do not answer the question.
Return only the rewritten query.

Question:
%s`, query)
}

func buildEntityPrompt(query string) string {
	return fmt.Sprintf(`Extract Ayurvedic entities from the query below.
Return strict JSON with exactly these keys, each mapped to an array of strings:
"herbs", "conditions", "constitution_types", "symptoms".
Use empty arrays for categories with no matches. No markdown, no extra keys.

Query:
%s`, query)
}

func buildAnswerPrompt(mode domain.Mode, query, context string, history []domain.ChatMessage) string {
	var b strings.Builder
	b.WriteString(personaFor(mode))
	b.WriteString("\n\nRules:\n")
	b.WriteString("1. When reference context is provided below and covers the question, base the answer on it.\n")
	b.WriteString("2. When context is missing or insufficient, answer from your own knowledge of Ayurveda. Never reply that no information was found or that context was not provided.\n")
	b.WriteString("3. If the question is not about Ayurveda, reply with exactly: " + OffTopicRefusal + "\n")
	b.WriteString("4. Structure every answer as: a clear explanation, the Ayurvedic framing (doshas, rasa, virya where relevant), practical guidance, a safety caveat, and a closing note that this is educational information and not professional medical advice.\n")

	if strings.TrimSpace(context) != "" {
		b.WriteString("\nReference context:\n")
		b.WriteString(context)
		b.WriteString("\n")
	}

	if len(history) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, msg := range history {
			content := strings.TrimSpace(msg.Content)
			if content == "" {
				continue
			}
			b.WriteString(msg.Role)
			b.WriteString(": ")
			b.WriteString(content)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nCurrent question:\n")
	b.WriteString(query)
	return b.String()
}

func buildVerifyPrompt(answer, context string) string {
	return fmt.Sprintf(`You are verifying an Ayurveda assistant's answer against its reference context.
Is every factual claim in the answer either supported by the context or standard, uncontroversial Ayurvedic knowledge?
Answer with exactly one word: yes or no.

Context:
%s

Answer:
%s`, context, answer)
}

// historySuffix bounds arbitrarily long caller history to the most recent
// turns before it is rendered into a prompt.
func historySuffix(history []domain.ChatMessage, turns int) []domain.ChatMessage {
	if turns <= 0 || len(history) <= turns {
		return history
	}
	return history[len(history)-turns:]
}
