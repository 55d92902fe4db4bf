package nodes

// Graph node keys.
const (
	NodeLoadMemories = "load_memories"
	NodeAgent        = "agent"
	NodeTools        = "tools"
	NodeResponse     = "response"
	NodeSummarize    = "summarize"
)
