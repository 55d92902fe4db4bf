package conversations

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

// TokenCounter estimates the input-token cost of a message.
type TokenCounter interface {
	CountMessage(m *schema.Message) int
}

// HeuristicCounter approximates tokens as runes/4 plus a fixed per-message
// overhead. Tool call names and arguments count like content.
type HeuristicCounter struct{}

const (
	messageOverhead = 4
	runesPerToken   = 4
)

func (HeuristicCounter) CountMessage(m *schema.Message) int {
	if m == nil {
		return 0
	}
	runes := utf8.RuneCountInString(m.Content)
	for _, tc := range m.ToolCalls {
		runes += utf8.RuneCountInString(tc.Function.Name) + utf8.RuneCountInString(tc.Function.Arguments)
	}
	return (runes+runesPerToken-1)/runesPerToken + messageOverhead
}
