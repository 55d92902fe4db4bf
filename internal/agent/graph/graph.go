package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/memgraph-agent/server/internal/agent/graph/conversations"
	"github.com/memgraph-agent/server/internal/agent/graph/nodes"
	"github.com/memgraph-agent/server/internal/agent/graph/observers"
	"github.com/memgraph-agent/server/internal/agent/graph/tools"
	"github.com/memgraph-agent/server/internal/agent/model"
	logx "github.com/memgraph-agent/server/pkg/logger"
)

// Runner executes one conversation turn.
type Runner interface {
	Invoke(ctx context.Context, in model.TurnInput) (*model.TurnResult, error)
}

// MemoryService is everything the graph needs from the memory layer.
type MemoryService interface {
	nodes.MemoryLoader
	nodes.RecallSaver
	tools.MemoryService
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	ChatModels      *nodes.ChatModels
	MessagesManager *conversations.MessagesManager
	Memory          MemoryService
	Knowledge       tools.KnowledgeBase
	WebSearch       tools.WebSearcher
	RecallTopK      int
	ToolMaxCalls    int
}

// GraphBuilder handles the construction of the turn graph
type GraphBuilder struct {
	config   *GraphConfig
	executor *tools.Executor
	graph    *compose.Graph[model.TurnInput, *model.TurnResult]
}

type graphRunner struct {
	runnable compose.Runnable[model.TurnInput, *model.TurnResult]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.TurnInput) (*model.TurnResult, error) {
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return nil, err
	}
	if out == nil || out.FinalResponse == "" && len(out.Messages) == 0 {
		return nil, fmt.Errorf("turn produced no result")
	}
	logx.Debug().
		Str("thread_id", in.ThreadID).
		Int("tool_calls", out.ToolCalls).
		Float64("total_cost_usd", out.TotalCostUSD).
		Msg("Turn completed")
	return out, nil
}

// NewRunner builds the graph and wraps it in a Runner.
func NewRunner(ctx context.Context, config *GraphConfig) (Runner, error) {
	runnable, err := BuildGraph(ctx, config)
	if err != nil {
		return nil, err
	}
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled turn graph:
//
//	START -> load_memories -> agent -> (tools -> response | response) -> (summarize -> END | END)
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.TurnInput, *model.TurnResult], error) {
	// Basic config validation
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	cms := config.ChatModels
	if cms == nil || cms.Agent == nil || cms.Response == nil || cms.Summary == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.Memory == nil {
		return nil, fmt.Errorf("memory service is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.TurnInput, *model.TurnResult](
			compose.WithGenLocalState(func(ctx context.Context) *model.ConversationState {
				return &model.ConversationState{}
			}),
		),
	}

	if err := builder.setupTools(); err != nil {
		return nil, err
	}
	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// setupTools binds the tool schemas to the agent model and prepares the executor
func (b *GraphBuilder) setupTools() error {
	if err := b.config.ChatModels.BindToolsToAgentModel(tools.Infos()); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to agent model")
		return fmt.Errorf("failed to bind tools to agent model: %w", err)
	}
	b.executor = tools.NewExecutor(b.config.Memory, b.config.Knowledge, b.config.WebSearch, b.config.ToolMaxCalls)
	return nil
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	cfg := b.config
	cms := cfg.ChatModels
	mm := cfg.MessagesManager

	steps := []struct {
		key string
		add func() error
	}{
		{nodes.NodeLoadMemories, func() error {
			return b.graph.AddLambdaNode(nodes.NodeLoadMemories,
				nodes.NewLoadMemoriesNode(mm, cfg.Memory, cfg.RecallTopK),
				compose.WithStatePreHandler(nodes.NewLoadMemoriesPreHandler()),
			)
		}},
		{nodes.NodeAgent, func() error {
			return b.graph.AddChatModelNode(nodes.NodeAgent,
				nodes.NewAgentChatModelNode(cms.Agent),
				compose.WithStatePostHandler(nodes.NewAgentPostHandler(cms.AgentModelName)),
			)
		}},
		{nodes.NodeTools, func() error {
			return b.graph.AddLambdaNode(nodes.NodeTools, nodes.NewToolsNode(b.executor))
		}},
		{nodes.NodeResponse, func() error {
			return b.graph.AddLambdaNode(nodes.NodeResponse,
				nodes.NewResponseNode(mm, cms.Response, cms.ResponseModelName),
			)
		}},
		{nodes.NodeSummarize, func() error {
			return b.graph.AddLambdaNode(nodes.NodeSummarize,
				nodes.NewSummarizeNode(mm, cms.Summary, cms.SummaryModelName, cfg.Memory),
			)
		}},
	}

	for _, step := range steps {
		if err := step.add(); err != nil {
			logx.Error().Err(err).Str("node", step.key).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", step.key, err)
		}
	}
	return nil
}

// addEdges creates the fixed flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeLoadMemories},
		{nodes.NodeLoadMemories, nodes.NodeAgent},
		{nodes.NodeTools, nodes.NodeResponse},
		{nodes.NodeSummarize, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	toolBranch := compose.NewGraphBranch(
		nodes.NewAgentCondition(),
		map[string]bool{
			nodes.NodeTools:    true,
			nodes.NodeResponse: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeAgent, toolBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding tool branch")
		return fmt.Errorf("error adding tool branch: %w", err)
	}

	summaryBranch := compose.NewGraphBranch(
		nodes.NewSummarizeCondition(b.config.MessagesManager),
		map[string]bool{
			nodes.NodeSummarize: true,
			compose.END:         true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeResponse, summaryBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding summary branch")
		return fmt.Errorf("error adding summary branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *model.TurnResult], error) {
	// The graph is acyclic; five nodes plus START/END bound a run.
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("memory_turn"),
		compose.WithMaxRunSteps(10),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
