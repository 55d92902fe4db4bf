package model

import (
	"fmt"
	"time"
)

// ================ Config ================
type ConversationConfig struct {
	TTL                 string `envconfig:"CONVERSATION_TTL" default:"24h"`
	TokenBudget         int    `envconfig:"CONVERSATION_TOKEN_BUDGET" default:"6000"`
	RecallQueryMessages int    `envconfig:"CONVERSATION_RECALL_QUERY_MESSAGES" default:"5"`
	Summary             struct {
		Threshold int `envconfig:"CONVERSATION_SUMMARY_THRESHOLD" default:"10"`
		Keep      int `envconfig:"CONVERSATION_SUMMARY_KEEP" default:"2"`
	}
	Tools struct {
		MaxCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"10"`
	}
}

// TTLDuration parses TTL. Zero disables expiry.
func (c ConversationConfig) TTLDuration() (time.Duration, error) {
	if c.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid CONVERSATION_TTL %q: %w", c.TTL, err)
	}
	return d, nil
}

type AgentModelConfig struct {
	Model       string  `envconfig:"AGENT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"AGENT_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"AGENT_TEMPERATURE" default:"0.2"`
}

type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.4"`
}

type SummaryModelConfig struct {
	Model       string  `envconfig:"SUMMARY_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"SUMMARY_MAX_TOKENS" default:"1000"`
	Temperature float32 `envconfig:"SUMMARY_TEMPERATURE" default:"0.1"`
}

// Embedding providers.
const (
	EmbeddingProviderGemini = "gemini"
	EmbeddingProviderHash   = "hash"
)

type EmbeddingConfig struct {
	Provider   string `envconfig:"EMBEDDING_PROVIDER" default:"gemini"`
	Model      string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	Dimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	CacheSize  int64  `envconfig:"EMBEDDING_CACHE_SIZE" default:"10000"`
}

// Recall store backends.
const (
	BackendChromem  = "chromem"
	BackendQdrant   = "qdrant"
	BackendPgvector = "pgvector"
)

type MemoryConfig struct {
	RecallBackend       string `envconfig:"MEMORY_RECALL_BACKEND" default:"chromem"`
	RecallCollection    string `envconfig:"MEMORY_RECALL_COLLECTION" default:"recall_memories"`
	KnowledgeCollection string `envconfig:"MEMORY_KNOWLEDGE_COLLECTION" default:"wisdom"`
	RecallTopK          int    `envconfig:"MEMORY_RECALL_TOP_K" default:"5"`
	KnowledgeTopK       int    `envconfig:"MEMORY_KNOWLEDGE_TOP_K" default:"5"`
	CoreKeyPrefix       string `envconfig:"MEMORY_CORE_KEY_PREFIX" default:"memgraph:"`
	// ChromemPath persists the in-process store to disk when set.
	ChromemPath string `envconfig:"MEMORY_CHROMEM_PATH"`
}

// Validate rejects unknown backends.
func (c MemoryConfig) Validate() error {
	switch c.RecallBackend {
	case BackendChromem, BackendQdrant, BackendPgvector:
		return nil
	default:
		return fmt.Errorf("unknown MEMORY_RECALL_BACKEND %q", c.RecallBackend)
	}
}

type WebSearchConfig struct {
	APIKey     string `envconfig:"TAVILY_API_KEY"`
	BaseURL    string `envconfig:"TAVILY_BASE_URL" default:"https://api.tavily.com"`
	MaxResults int    `envconfig:"TAVILY_MAX_RESULTS" default:"5"`
}
