package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	chromem "github.com/philippgille/chromem-go"
	"google.golang.org/genai"

	"github.com/memgraph-agent/server/internal/agent/embedder"
	"github.com/memgraph-agent/server/internal/agent/graph"
	"github.com/memgraph-agent/server/internal/agent/graph/conversations"
	"github.com/memgraph-agent/server/internal/agent/graph/nodes"
	"github.com/memgraph-agent/server/internal/agent/graph/tools"
	"github.com/memgraph-agent/server/internal/agent/memory"
	"github.com/memgraph-agent/server/internal/agent/model"
	"github.com/memgraph-agent/server/internal/agent/repo"
	"github.com/memgraph-agent/server/internal/agent/session"
	"github.com/memgraph-agent/server/internal/agent/store"
	"github.com/memgraph-agent/server/internal/core"
	logx "github.com/memgraph-agent/server/pkg/logger"
	pkgpostgres "github.com/memgraph-agent/server/pkg/postgres"
	pkgqdrant "github.com/memgraph-agent/server/pkg/qdrant"
	pkgredis "github.com/memgraph-agent/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the agent,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis    pkgredis.Config
	Qdrant   pkgqdrant.Config
	Postgres pkgpostgres.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Agent        model.AgentModelConfig
	Response     model.ResponseModelConfig
	Summary      model.SummaryModelConfig
	Embedding    model.EmbeddingConfig
	Memory       model.MemoryConfig
	WebSearch    model.WebSearchConfig
	Conversation model.ConversationConfig
}

var knowledgeSeed = []string{
	"Small, consistent habits compound: practicing ten minutes a day beats a three hour session once a month.",
	"When grieving a pet, many people find comfort in writing down favourite memories and sharing them with friends.",
	"A good night's sleep is one of the most reliable ways to improve mood and memory.",
	"Curiosity about other people's stories is the quickest route to a meaningful conversation.",
}

func main() {
	var (
		stream   = flag.Bool("stream", false, "stream response tokens")
		userID   = flag.String("user", "demo-user", "user id")
		threadID = flag.String("thread", "demo-thread", "thread id")
		reset    = flag.Bool("reset", false, "clear the thread before running")
	)
	flag.Parse()

	ctx := context.Background()

	// Load .env file
	envErr := godotenv.Load(".env")

	// Load structured config from env
	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to process environment config: %v\n", err)
		os.Exit(1)
	}

	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(envCfg.Environment),
		Level:       envCfg.LogLevel,
	})
	if envErr != nil {
		logx.Warn().Err(envErr).Msg("Could not load .env file")
	}
	if err := envCfg.Memory.Validate(); err != nil {
		logx.Fatal().Err(err).Msg("Invalid memory config")
	}

	rdb, err := envCfg.Redis.New(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise Redis client")
	}
	defer rdb.Close()
	logx.Info().Msg("Connected to Redis successfully")

	client, err := nodes.NewGeminiClient(ctx, envCfg.APIKey, envCfg.BaseURL)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	emb, err := newEmbedder(client, envCfg.Embedding)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create embedder")
	}
	defer emb.Close()

	stores := &storeFactory{cfg: envCfg, dims: emb.Dimensions()}
	defer stores.Close()

	recall, err := stores.semanticStore(ctx, envCfg.Memory.RecallCollection)
	if err != nil {
		logx.Fatal().Err(err).Str("backend", envCfg.Memory.RecallBackend).Msg("Failed to open recall store")
	}
	knowledgeStore, err := stores.semanticStore(ctx, envCfg.Memory.KnowledgeCollection)
	if err != nil {
		logx.Fatal().Err(err).Str("backend", envCfg.Memory.RecallBackend).Msg("Failed to open knowledge store")
	}

	mem := memory.NewService(
		store.NewRedisKeyValueStore(rdb, envCfg.Memory.CoreKeyPrefix),
		recall,
		emb,
		memory.WithRecallTopK(envCfg.Memory.RecallTopK),
	)

	kb := memory.NewKnowledgeBase(knowledgeStore, emb, envCfg.Memory.KnowledgeTopK)
	// document ids derive from content, so reseeding on every start is idempotent
	if err := kb.AddDocuments(ctx, knowledgeSeed); err != nil {
		logx.Warn().Err(err).Msg("Failed to seed knowledge base")
	}

	var web tools.WebSearcher
	if envCfg.WebSearch.APIKey != "" {
		web = tools.NewTavilyClient(envCfg.WebSearch)
	} else {
		logx.Warn().Msg("TAVILY_API_KEY not set, web search disabled")
	}

	// ====================================================
	// Build graph config entirely from env
	ttl, err := envCfg.Conversation.TTLDuration()
	if err != nil {
		logx.Fatal().Err(err).Msg("Invalid conversation config")
	}

	chatModels, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		Client:        client,
		AgentConfig:   &envCfg.Agent,
		RespConfig:    &envCfg.Response,
		SummaryConfig: &envCfg.Summary,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create chat models")
	}

	runner, err := graph.NewRunner(ctx, &graph.GraphConfig{
		ChatModels:      chatModels,
		MessagesManager: conversations.NewMessagesManager(envCfg.Conversation),
		Memory:          mem,
		Knowledge:       kb,
		WebSearch:       web,
		RecallTopK:      envCfg.Memory.RecallTopK,
		ToolMaxCalls:    envCfg.Conversation.Tools.MaxCalls,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build graph")
	}

	sess := session.New(runner, repo.NewRedisThreadRepository(rdb, ttl), mem)
	if *reset {
		n, err := sess.ResetThread(ctx, *threadID)
		if err != nil {
			logx.Fatal().Err(err).Msg("Failed to reset thread")
		}
		fmt.Printf("Cleared %d messages from %s\n", n, *threadID)
	}

	testQueries := []struct {
		description string
		query       string
	}{
		{
			description: "Sharing a childhood memory",
			query:       "When I was young, I had a dog named Spot",
		},
		{
			description: "Sharing an episode",
			query:       "Last summer I went to the beach with my sister and we built a huge sandcastle",
		},
		{
			description: "Asking about stored memories",
			query:       "Do you remember the name of my dog?",
		},
	}

	for i, test := range testQueries {
		fmt.Printf("\nTest %d: %s\n", i+1, test.description)
		fmt.Printf("Query: %q\n", test.query)

		if *stream {
			err = streamTurn(ctx, sess, *userID, *threadID, test.query)
		} else {
			var response string
			response, err = sess.Submit(ctx, *userID, *threadID, test.query)
			if err == nil {
				fmt.Printf("Response %d: %s\n", i+1, response)
			}
		}
		if err != nil {
			logx.Fatal().Err(err).Int("test", i+1).Msg("Turn failed")
		}
		fmt.Println("---------------------------------------------")

		// add slight delay between tests for readability
		time.Sleep(500 * time.Millisecond)
	}

	core, err := sess.CoreMemories(ctx, *userID)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to read core memories")
	}
	fmt.Println("Core memories:")
	for k, v := range core {
		fmt.Printf("  %s: %s\n", k, v)
	}
}

func streamTurn(ctx context.Context, sess *session.Session, userID, threadID, text string) error {
	sr, err := sess.Stream(ctx, userID, threadID, text)
	if err != nil {
		return err
	}
	defer sr.Close()

	fmt.Print("Response: ")
	for {
		fragment, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return nil
		}
		if err != nil {
			fmt.Println()
			return err
		}
		fmt.Print(fragment)
	}
}

func newEmbedder(client *genai.Client, cfg model.EmbeddingConfig) (*embedder.CachedEmbedder, error) {
	var base embedder.Embedder
	switch cfg.Provider {
	case model.EmbeddingProviderGemini:
		base = embedder.NewGeminiEmbedder(client, cfg.Model, cfg.Dimensions)
	case model.EmbeddingProviderHash:
		base = embedder.NewHashEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown EMBEDDING_PROVIDER %q", cfg.Provider)
	}
	return embedder.NewCachedEmbedder(base, cfg.CacheSize)
}

// storeFactory opens semantic stores on the configured backend. Remote stores
// own their client; chromem collections share one in-process DB.
type storeFactory struct {
	cfg     AppConfig
	dims    int
	chromem *chromem.DB
	opened  []store.SemanticStore
}

func (f *storeFactory) semanticStore(ctx context.Context, collection string) (store.SemanticStore, error) {
	var (
		s   store.SemanticStore
		err error
	)
	switch f.cfg.Memory.RecallBackend {
	case model.BackendChromem:
		if f.chromem == nil {
			if f.chromem, err = store.NewChromemDB(f.cfg.Memory.ChromemPath); err != nil {
				return nil, err
			}
		}
		s, err = store.NewChromemSemanticStore(f.chromem, collection)
	case model.BackendQdrant:
		client, cerr := f.cfg.Qdrant.New(ctx)
		if cerr != nil {
			return nil, cerr
		}
		s, err = store.NewQdrantSemanticStore(ctx, client, collection, f.dims)
	case model.BackendPgvector:
		pool, perr := f.cfg.Postgres.New(ctx)
		if perr != nil {
			return nil, perr
		}
		s, err = store.NewPgvectorSemanticStore(ctx, pool, collection, f.dims)
	default:
		return nil, fmt.Errorf("unknown backend %q", f.cfg.Memory.RecallBackend)
	}
	if err != nil {
		return nil, err
	}
	f.opened = append(f.opened, s)
	return s, nil
}

func (f *storeFactory) Close() {
	for _, s := range f.opened {
		if err := s.Close(); err != nil {
			logx.Warn().Err(err).Msg("Failed to close semantic store")
		}
	}
}
