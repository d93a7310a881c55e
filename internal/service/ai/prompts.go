package ai

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/docchat/internal/model/chat"
)

const condenseSystemPrompt = "Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question. Reply with the standalone question only."

const condenseUserPrompt = "Chat History:\n{chat_history}\nFollow Up Input: {question}\nStandalone question:"

const answerSystemPrompt = "You are an assistant answering questions about a document the user provided. Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\nContext:\n{context}"

const answerUserPrompt = "{question}"

func formatHistory(history []chat.Turn) string {
	var builder strings.Builder
	for i, turn := range history {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString("Human: ")
		builder.WriteString(turn.Question)
		builder.WriteString("\nAssistant: ")
		builder.WriteString(turn.Answer)
	}
	return builder.String()
}

func formatContext(docs []*schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		parts = append(parts, doc.Content)
	}
	return strings.Join(parts, "\n\n")
}
