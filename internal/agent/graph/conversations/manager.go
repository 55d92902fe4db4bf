package conversations

import (
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"github.com/memgraph-agent/server/internal/agent/model"
	logx "github.com/memgraph-agent/server/pkg/logger"
)

const (
	DefaultTokenBudget         = 6000
	DefaultRecallQueryMessages = 5
	DefaultSummaryThreshold    = 10
	DefaultSummaryKeep         = 2

	// maxRecallQueryRunes bounds the text sent to the embedder.
	maxRecallQueryRunes = 2048
)

// MessagesManager shapes the thread history for each step of a turn.
type MessagesManager struct {
	tokenBudget         int
	recallQueryMessages int
	summaryThreshold    int
	summaryKeep         int
	counter             TokenCounter
}

func NewMessagesManager(config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		tokenBudget:         orDefault(config.TokenBudget, DefaultTokenBudget),
		recallQueryMessages: orDefault(config.RecallQueryMessages, DefaultRecallQueryMessages),
		summaryThreshold:    orDefault(config.Summary.Threshold, DefaultSummaryThreshold),
		summaryKeep:         orDefault(config.Summary.Keep, DefaultSummaryKeep),
		counter:             HeuristicCounter{},
	}
}

// Window returns the newest whole groups of messages that fit the token budget.
// A group is a message plus the tool results that answer it, so a tool call is
// never separated from its results. The newest group is always kept.
func (cm *MessagesManager) Window(messages []*schema.Message) []*schema.Message {
	groups := groupMessages(messages)
	if len(groups) == 0 {
		return []*schema.Message{}
	}

	total := 0
	start := len(groups)
	for gi := len(groups) - 1; gi >= 0; gi-- {
		cost := 0
		for _, m := range groups[gi] {
			cost += cm.counter.CountMessage(m)
		}
		if start < len(groups) && total+cost > cm.tokenBudget {
			break
		}
		total += cost
		start = gi
	}

	if start == len(groups)-1 && total > cm.tokenBudget {
		logx.Warn().Int("budget", cm.tokenBudget).Int("cost", total).Msg("Newest message alone exceeds token budget")
	}

	out := make([]*schema.Message, 0, len(messages))
	for _, g := range groups[start:] {
		out = append(out, g...)
	}
	return out
}

// RecallQuery joins the human-authored content of the most recent messages.
func (cm *MessagesManager) RecallQuery(messages []*schema.Message) string {
	var parts []string
	for _, m := range trimTail(messages, cm.recallQueryMessages) {
		if m == nil || m.Role != schema.User || strings.TrimSpace(m.Content) == "" {
			continue
		}
		parts = append(parts, m.Content)
	}
	query := strings.Join(parts, "\n")
	if utf8.RuneCountInString(query) > maxRecallQueryRunes {
		// keep the newest text
		r := []rune(query)
		query = string(r[len(r)-maxRecallQueryRunes:])
	}
	return query
}

// ShouldSummarize reports whether the active message count reached the threshold.
func (cm *MessagesManager) ShouldSummarize(count int) bool {
	return count >= cm.summaryThreshold
}

// SplitForSummary separates the messages to summarize from the retained tail.
// The tail never starts with a tool result, so such a message moves into the batch.
func (cm *MessagesManager) SplitForSummary(messages []*schema.Message) (batch, keep []*schema.Message) {
	split := max(len(messages)-cm.summaryKeep, 0)
	for split < len(messages) && messages[split] != nil && messages[split].Role == schema.Tool {
		split++
	}
	batch = append([]*schema.Message(nil), messages[:split]...)
	keep = append([]*schema.Message(nil), messages[split:]...)
	return batch, keep
}

// BufferString renders messages as "Human: ..." / "AI: ..." lines.
func BufferString(messages []*schema.Message) string {
	var b strings.Builder
	for _, m := range messages {
		if m == nil {
			continue
		}
		var prefix string
		switch m.Role {
		case schema.User:
			prefix = "Human"
		case schema.Assistant:
			prefix = "AI"
		case schema.Tool:
			prefix = "Tool"
		case schema.System:
			prefix = "System"
		default:
			prefix = string(m.Role)
		}
		content := m.Content
		if content == "" && len(m.ToolCalls) > 0 {
			names := make([]string, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				names = append(names, tc.Function.Name+"("+tc.Function.Arguments+")")
			}
			content = "[called " + strings.Join(names, ", ") + "]"
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(prefix)
		b.WriteString(": ")
		b.WriteString(content)
	}
	return b.String()
}

// ====================== Helper function ======================
// groupMessages attaches tool results to the message before them.
// Leading orphan tool results are dropped.
func groupMessages(messages []*schema.Message) [][]*schema.Message {
	var groups [][]*schema.Message
	for _, m := range messages {
		if m == nil {
			continue
		}
		if m.Role == schema.Tool {
			if len(groups) == 0 {
				continue
			}
			groups[len(groups)-1] = append(groups[len(groups)-1], m)
			continue
		}
		groups = append(groups, []*schema.Message{m})
	}
	return groups
}

func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
