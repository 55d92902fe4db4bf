package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/memgraph-agent/server/internal/agent/model"
)

var (
	//go:embed template/agent_prompt.txt
	agentSystemPrompt string
	//go:embed template/response_prompt.txt
	responseSystemPrompt string
	//go:embed template/summary_prompt.txt
	summarySystemPrompt string
)

// ResponseMaxWords caps the length of the final reply.
const ResponseMaxWords = 10

// MemoryContext is what every memory-grounded prompt interpolates.
type MemoryContext struct {
	CoreMemories   model.CoreMemories
	RecallMemories []string
	Now            time.Time
}

func (m MemoryContext) vars() map[string]any {
	now := m.Now
	if now.IsZero() {
		now = time.Now()
	}
	return map[string]any{
		"CoreMemories":   FormatCoreMemories(m.CoreMemories),
		"RecallMemories": FormatRecallMemories(m.RecallMemories),
		"CurrentTime":    now.UTC().Format(time.RFC3339),
	}
}

// RenderAgentMessages renders the tool-using agent prompt followed by the history.
func RenderAgentMessages(ctx context.Context, mem MemoryContext, history []*schema.Message) ([]*schema.Message, error) {
	vars := mem.vars()
	vars["SaveCoreTool"] = model.ToolNameSaveCore
	vars["SaveRecallTool"] = model.ToolNameSaveRecall
	vars["SearchRecallTool"] = model.ToolNameSearchRecall
	vars["KnowledgeTool"] = model.ToolNameAskKnowledgeBase
	vars["WebSearchTool"] = model.ToolNameWebSearch
	return render(ctx, "agent", agentSystemPrompt, vars, history)
}

// RenderResponseMessages renders the tools-free response prompt followed by the history.
func RenderResponseMessages(ctx context.Context, mem MemoryContext, history []*schema.Message) ([]*schema.Message, error) {
	vars := mem.vars()
	vars["MaxWords"] = ResponseMaxWords
	return render(ctx, "response", responseSystemPrompt, vars, history)
}

// RenderSummaryMessages asks for a summary of an already rendered conversation.
func RenderSummaryMessages(ctx context.Context, conversation string) ([]*schema.Message, error) {
	return render(ctx, "summary", summarySystemPrompt, map[string]any{}, []*schema.Message{
		schema.UserMessage(conversation),
	})
}

// render goes through the Eino prompt component so prompt callbacks fire.
func render(ctx context.Context, name, system string, vars map[string]any, history []*schema.Message) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(system),
		schema.MessagesPlaceholder("messages", false),
	)
	vars["messages"] = history
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return nil, fmt.Errorf("%s prompt render: empty result", name)
	}
	return msgs, nil
}

// FormatCoreMemories renders "key: value" lines sorted by key.
func FormatCoreMemories(core model.CoreMemories) string {
	keys := make([]string, 0, len(core))
	for k := range core {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("<core_memory>\n")
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(core[k])
		b.WriteByte('\n')
	}
	b.WriteString("</core_memory>")
	return b.String()
}

func FormatRecallMemories(recall []string) string {
	var b strings.Builder
	b.WriteString("<recall_memory>\n")
	for _, r := range recall {
		b.WriteString(r)
		b.WriteByte('\n')
	}
	b.WriteString("</recall_memory>")
	return b.String()
}
