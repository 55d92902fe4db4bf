package model

import (
	"github.com/cloudwego/eino/schema"
)

// CoreMemories maps dot-path keys (e.g. "preference.food") to values.
type CoreMemories map[string]string

// Clone returns an independent copy.
func (c CoreMemories) Clone() CoreMemories {
	out := make(CoreMemories, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// ConversationState stores per-turn state for the Eino Graph.
// Concurrency model:
//   - Registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen inside Eino state handlers or compose.ProcessState,
//     which serialize access, so no mutex is needed.
//   - Cross-turn continuity is the thread repository's job; the state itself is
//     discarded when the turn ends.
type ConversationState struct {
	UserID   string
	ThreadID string

	Messages            []*schema.Message // append-only within a turn except summarization pruning
	CoreMemories        CoreMemories
	RecallMemories      []string // recomputed every turn
	FinalResponse       *string  // nil until the response step completes
	PendingSummaryBatch []*schema.Message
	Summary             string

	ToolCallCount int // executed tool calls this turn
	ToolCallIDSeq int // local sequence to synthesize tool_call_id when provider omits

	// Accumulated total LLM cost (USD) across model invocations for this turn
	TotalCostUSD float64
}

// TurnInput is the graph input for one turn.
type TurnInput struct {
	UserID   string            `json:"user_id"`
	ThreadID string            `json:"thread_id"`
	History  []*schema.Message `json:"history,omitempty"`
	Message  string            `json:"message"`
}

// TurnResult is the graph output for one turn.
type TurnResult struct {
	Messages            []*schema.Message
	CoreMemories        CoreMemories
	RecallMemories      []string
	FinalResponse       string
	PendingSummaryBatch []*schema.Message
	// Summary is the text persisted as a recall memory when summarization ran.
	Summary      string
	ToolCalls    int
	TotalCostUSD float64
}

// ResultFromState snapshots the state at the end of a turn.
func ResultFromState(st *ConversationState) *TurnResult {
	res := &TurnResult{
		Messages:            append([]*schema.Message(nil), st.Messages...),
		CoreMemories:        st.CoreMemories.Clone(),
		RecallMemories:      append([]string(nil), st.RecallMemories...),
		PendingSummaryBatch: append([]*schema.Message(nil), st.PendingSummaryBatch...),
		Summary:             st.Summary,
		ToolCalls:           st.ToolCallCount,
		TotalCostUSD:        st.TotalCostUSD,
	}
	if st.FinalResponse != nil {
		res.FinalResponse = *st.FinalResponse
	}
	return res
}
