package model

// ToolKind is the closed set of tools exposed to the agent model.
type ToolKind int

const (
	ToolUnknown ToolKind = iota
	ToolSaveCore
	ToolSaveRecall
	ToolSearchRecall
	ToolAskKnowledgeBase
	ToolWebSearch
)

// Tool names as seen by the model.
const (
	ToolNameSaveCore         = "save_core_memory"
	ToolNameSaveRecall       = "save_recall_memory"
	ToolNameSearchRecall     = "search_recall_memory"
	ToolNameAskKnowledgeBase = "ask_knowledge_base"
	ToolNameWebSearch        = "web_search"
)

func (k ToolKind) String() string {
	switch k {
	case ToolSaveCore:
		return ToolNameSaveCore
	case ToolSaveRecall:
		return ToolNameSaveRecall
	case ToolSearchRecall:
		return ToolNameSearchRecall
	case ToolAskKnowledgeBase:
		return ToolNameAskKnowledgeBase
	case ToolWebSearch:
		return ToolNameWebSearch
	default:
		return "unknown"
	}
}

// ParseToolKind maps a model-provided name to a kind.
func ParseToolKind(name string) ToolKind {
	switch name {
	case ToolNameSaveCore:
		return ToolSaveCore
	case ToolNameSaveRecall:
		return ToolSaveRecall
	case ToolNameSearchRecall:
		return ToolSearchRecall
	case ToolNameAskKnowledgeBase:
		return ToolAskKnowledgeBase
	case ToolNameWebSearch:
		return ToolWebSearch
	default:
		return ToolUnknown
	}
}

type SaveCoreArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SaveRecallArgs struct {
	Memory string `json:"memory"`
}

type SearchRecallArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type AskKnowledgeBaseArgs struct {
	Query string `json:"query"`
}

type WebSearchArgs struct {
	Query string `json:"query"`
}
