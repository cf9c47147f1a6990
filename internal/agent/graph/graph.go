package graph

import (
	"context"
	"errors"
	"fmt"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	"github.com/sdg-insight/server/internal/agent/graph/nodes"
	"github.com/sdg-insight/server/internal/agent/graph/observers"
	"github.com/sdg-insight/server/internal/agent/graph/prompts"
	"github.com/sdg-insight/server/internal/agent/graph/tools"
	"github.com/sdg-insight/server/internal/agent/history"
	"github.com/sdg-insight/server/internal/agent/intent"
	"github.com/sdg-insight/server/internal/agent/model"
	errx "github.com/sdg-insight/server/internal/core/error"
	logx "github.com/sdg-insight/server/pkg/logger"
)

// StorePinger checks that the analytics store is reachable.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// Config holds everything needed to compose the full response graph end-to-end.
// This is a convenience layer over GraphConfig that also constructs the chat
// model, the history manager and the dispatcher.
type Config struct {
	LLM          model.LLMConfig
	Retry        model.RetryConfig
	History      model.HistoryConfig
	Conversation model.ConversationConfig

	Counter      history.TokenCounter
	Collaborator tools.Collaborator
	Cache        tools.ResultCache
	Districts    intent.DistrictLookup
	Pinger       StorePinger
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	ChatModels   *nodes.ChatModels
	Manager      *history.Manager
	Analyzer     *intent.Analyzer
	Dispatcher   *tools.Dispatcher
	Conversation model.ConversationConfig
}

// GraphBuilder handles the construction of the conversation graph
type GraphBuilder struct {
	config    *GraphConfig
	toolModel einomodel.ToolCallingChatModel
	graph     *compose.Graph[model.QueryInput, *model.ChatResponse]
}

type turnStateKey struct{}

// BuildRunner composes the chat model, the history manager, the session store
// and the dispatcher, builds the graph, and returns a Runner.
func BuildRunner(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.Collaborator == nil {
		return nil, errors.New("collaborator is nil")
	}
	if cfg.Pinger == nil {
		return nil, errors.New("store pinger is nil")
	}
	if cfg.Counter == nil {
		return nil, errors.New("token counter is nil")
	}

	promptCtx := einocb.InitCallbacks(ctx, &einocb.RunInfo{
		Name:      "SystemPrompt",
		Component: components.ComponentOfPrompt,
	}, observers.NewPromptCallbacks())
	systemPrompt, err := prompts.RenderSystemPrompt(promptCtx)
	if err != nil {
		return nil, err
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{LLM: cfg.LLM, Retry: cfg.Retry})
	if err != nil {
		return nil, err
	}

	catalog, err := tools.DefaultCatalog()
	if err != nil {
		return nil, fmt.Errorf("build tool catalog: %w", err)
	}
	opts := []tools.Option{tools.WithConcurrency(cfg.Conversation.Tools.Concurrency)}
	if cfg.Cache != nil {
		opts = append(opts, tools.WithCache(cfg.Cache))
	}

	manager := history.NewManager(cfg.Counter, cfg.History.TokenModel, cfg.History.SafeTokenLimit(), systemPrompt)
	store := history.NewStore(manager, cfg.Conversation.SessionIdleTTL)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModels:   cms,
		Manager:      manager,
		Analyzer:     intent.NewAnalyzer(cfg.Districts),
		Dispatcher:   tools.NewDispatcher(catalog, cfg.Collaborator, opts...),
		Conversation: cfg.Conversation,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().
		Int("safe_token_limit", manager.Limit()).
		Int("functions", len(catalog.Names())).
		Msg("Response graph built successfully")
	return NewRunner(runnable, store, cfg.Pinger), nil
}

// BuildGraph constructs and returns the compiled conversation graph.
//
//	START → InputConverter → ToolChatModel ─┬─ tool calls ─→ ToolDispatcher → SynthesisChatModel ─┐
//	                                        └─ direct answer ───────────────────────────────────┴→ Finalizer → END
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *model.ChatResponse], error) {
	// Basic config validation
	if config == nil {
		return nil, errors.New("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Base == nil {
		return nil, errors.New("chat models are not properly initialized")
	}
	if config.Manager == nil || config.Analyzer == nil || config.Dispatcher == nil {
		return nil, errors.New("history manager, analyzer and dispatcher are required")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *model.ChatResponse](
			compose.WithGenLocalState(func(ctx context.Context) *model.TurnState {
				// The runner owns the state so it can read the outcome of a failed run.
				if st, ok := ctx.Value(turnStateKey{}).(*model.TurnState); ok && st != nil {
					return st
				}
				return &model.TurnState{}
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

// setupTools binds the function catalog to the tool-calling model. The
// synthesis model stays unbound so its answer is always text.
func (b *GraphBuilder) setupTools() error {
	infos := b.config.Dispatcher.Catalog().ToolInfos()
	bound, err := b.config.ChatModels.Base.WithTools(infos)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to chat model")
		return fmt.Errorf("failed to bind tools to chat model: %w", err)
	}
	b.toolModel = bound

	logx.Debug().Int("tool_count", len(infos)).Msg("Successfully bound tools to chat model")
	return nil
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	modelName := b.config.ChatModels.ModelName

	steps := []func() error{
		func() error {
			return b.graph.AddLambdaNode(nodes.NodeInputConverter,
				nodes.NewInputConverterNode(b.config.Manager, b.config.Analyzer),
				compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
			)
		},
		func() error {
			return b.graph.AddChatModelNode(nodes.NodeToolChatModel, b.toolModel,
				compose.WithStatePostHandler(nodes.NewToolChatModelPostHandler(modelName)),
			)
		},
		func() error {
			return b.graph.AddLambdaNode(nodes.NodeToolDispatcher,
				nodes.NewToolDispatcherNode(b.config.Dispatcher, b.config.Conversation.Tools.MaxCalls),
			)
		},
		func() error {
			return b.graph.AddChatModelNode(nodes.NodeSynthesisChatModel, b.config.ChatModels.Base,
				compose.WithStatePostHandler(nodes.NewSynthesisChatModelPostHandler(modelName)),
			)
		},
		func() error {
			return b.graph.AddLambdaNode(nodes.NodeFinalizer,
				nodes.NewFinalizerNode(b.config.Conversation),
			)
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			logx.Error().Err(err).Msg("Error adding graph node")
			return fmt.Errorf("error adding graph node: %w", err)
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeToolChatModel},
		{nodes.NodeToolDispatcher, nodes.NodeSynthesisChatModel},
		{nodes.NodeSynthesisChatModel, nodes.NodeFinalizer},
		{nodes.NodeFinalizer, compose.END},
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
		nodes.NewToolDispatchCondition(),
		map[string]bool{
			nodes.NodeToolDispatcher: true,
			nodes.NodeFinalizer:      true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeToolChatModel, toolBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding tool branch")
		return fmt.Errorf("error adding tool branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *model.ChatResponse], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(10))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

func withTurnState(ctx context.Context, st *model.TurnState) context.Context {
	return context.WithValue(ctx, turnStateKey{}, st)
}

// classify maps a failed run onto the error taxonomy. Typed errors raised by
// nodes survive the graph's wrapping; anything else is internal.
func classify(err error) error {
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return errx.Internal(err)
}
