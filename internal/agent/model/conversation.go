package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// ThreadRepository checkpoints the active message list of a thread between turns.
type ThreadRepository interface {
	// SaveMessages replaces the stored history of a thread
	SaveMessages(ctx context.Context, threadID string, messages []*schema.Message) error

	// LoadHistory retrieves the thread history
	LoadHistory(ctx context.Context, threadID string) (*ConversationHistory, error)

	// ClearHistory removes all history for a thread
	ClearHistory(ctx context.Context, threadID string) error

	// GetMessageCount returns the number of messages in the thread
	GetMessageCount(ctx context.Context, threadID string) (int, error)
}

// ConversationHistory represents loaded thread data with metadata.
type ConversationHistory struct {
	ThreadID string
	Messages []*schema.Message
}
