package tools

import (
	"github.com/cloudwego/eino/schema"

	"github.com/memgraph-agent/server/internal/agent/model"
)

// Infos describes every tool the agent model may call.
func Infos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: model.ToolNameSaveCore,
			Desc: "Save a durable fact about the user (name, family, pets, preferences) as a key/value pair. Saving an existing key replaces its value.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"key": {
					Type:     schema.String,
					Desc:     "Dot-path namespaced key, e.g. preference.food or pet.dog.name",
					Required: true,
				},
				"value": {
					Type:     schema.String,
					Desc:     "Value to remember for the key",
					Required: true,
				},
			}),
		},
		{
			Name: model.ToolNameSaveRecall,
			Desc: "Save an episodic memory about the user (an event, experience or feeling) as free text for later semantic retrieval.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"memory": {
					Type:     schema.String,
					Desc:     "The memory to save, written as a self-contained sentence",
					Required: true,
				},
			}),
		},
		{
			Name: model.ToolNameSearchRecall,
			Desc: "Search the user's episodic memories for ones relevant to the query.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "What to look for",
					Required: true,
				},
				"top_k": {
					Type: schema.Integer,
					Desc: "Number of memories to return (default: 5, max: 20)",
				},
			}),
		},
		{
			Name: model.ToolNameAskKnowledgeBase,
			Desc: "Look up passages from the shared knowledge base of curated wisdom relevant to the query.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "Question or topic",
					Required: true,
				},
			}),
		},
		{
			Name: model.ToolNameWebSearch,
			Desc: "Search the web for current events or facts that are not in memory.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "Search query",
					Required: true,
				},
			}),
		},
	}
}
