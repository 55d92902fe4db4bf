package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/memgraph-agent/server/internal/agent/model"
	errx "github.com/memgraph-agent/server/internal/core/error"
)

const (
	DefaultSearchTopK = 5
	MaxSearchTopK     = 20
)

// Call is a decoded tool call. The concrete types below are the only implementations.
type Call interface {
	Kind() model.ToolKind
}

type SaveCore struct{ Args model.SaveCoreArgs }
type SaveRecall struct{ Args model.SaveRecallArgs }
type SearchRecall struct{ Args model.SearchRecallArgs }
type AskKnowledgeBase struct{ Args model.AskKnowledgeBaseArgs }
type WebSearch struct{ Args model.WebSearchArgs }

func (SaveCore) Kind() model.ToolKind         { return model.ToolSaveCore }
func (SaveRecall) Kind() model.ToolKind       { return model.ToolSaveRecall }
func (SearchRecall) Kind() model.ToolKind     { return model.ToolSearchRecall }
func (AskKnowledgeBase) Kind() model.ToolKind { return model.ToolAskKnowledgeBase }
func (WebSearch) Kind() model.ToolKind        { return model.ToolWebSearch }

// Decode parses a model tool call into its typed form and validates the arguments.
func Decode(tc schema.ToolCall) (Call, error) {
	name := tc.Function.Name
	raw := strings.TrimSpace(tc.Function.Arguments)
	if raw == "" {
		raw = "{}"
	}

	switch model.ParseToolKind(name) {
	case model.ToolSaveCore:
		var c SaveCore
		if err := unmarshalArgs(name, raw, &c.Args); err != nil {
			return nil, err
		}
		c.Args.Key = strings.TrimSpace(c.Args.Key)
		c.Args.Value = strings.TrimSpace(c.Args.Value)
		if c.Args.Key == "" || c.Args.Value == "" {
			return nil, fmt.Errorf("%w: key and value are required", errx.ErrInvalidToolArgs)
		}
		return c, nil

	case model.ToolSaveRecall:
		var c SaveRecall
		if err := unmarshalArgs(name, raw, &c.Args); err != nil {
			return nil, err
		}
		c.Args.Memory = strings.TrimSpace(c.Args.Memory)
		if c.Args.Memory == "" {
			return nil, fmt.Errorf("%w: memory is required", errx.ErrInvalidToolArgs)
		}
		return c, nil

	case model.ToolSearchRecall:
		var c SearchRecall
		if err := unmarshalArgs(name, raw, &c.Args); err != nil {
			return nil, err
		}
		c.Args.Query = strings.TrimSpace(c.Args.Query)
		if c.Args.Query == "" {
			return nil, fmt.Errorf("%w: query is required", errx.ErrInvalidToolArgs)
		}
		switch {
		case c.Args.TopK <= 0:
			c.Args.TopK = DefaultSearchTopK
		case c.Args.TopK > MaxSearchTopK:
			c.Args.TopK = MaxSearchTopK
		}
		return c, nil

	case model.ToolAskKnowledgeBase:
		var c AskKnowledgeBase
		if err := unmarshalArgs(name, raw, &c.Args); err != nil {
			return nil, err
		}
		c.Args.Query = strings.TrimSpace(c.Args.Query)
		if c.Args.Query == "" {
			return nil, fmt.Errorf("%w: query is required", errx.ErrInvalidToolArgs)
		}
		return c, nil

	case model.ToolWebSearch:
		var c WebSearch
		if err := unmarshalArgs(name, raw, &c.Args); err != nil {
			return nil, err
		}
		c.Args.Query = strings.TrimSpace(c.Args.Query)
		if c.Args.Query == "" {
			return nil, fmt.Errorf("%w: query is required", errx.ErrInvalidToolArgs)
		}
		return c, nil

	default:
		return nil, fmt.Errorf("%w: %q", errx.ErrUnknownTool, name)
	}
}

func unmarshalArgs(name, raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %s arguments: %v", errx.ErrInvalidToolArgs, name, err)
	}
	return nil
}
