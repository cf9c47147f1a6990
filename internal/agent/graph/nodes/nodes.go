package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/sdg-insight/server/internal/agent/graph/sanitizer"
	"github.com/sdg-insight/server/internal/agent/graph/tools"
	"github.com/sdg-insight/server/internal/agent/history"
	"github.com/sdg-insight/server/internal/agent/intent"
	"github.com/sdg-insight/server/internal/agent/model"
	errx "github.com/sdg-insight/server/internal/core/error"
	logx "github.com/sdg-insight/server/pkg/logger"
)

// NewInputConverterPreHandler creates the pre-handler for InputConverter node
func NewInputConverterPreHandler() func(context.Context, model.QueryInput, *model.TurnState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.TurnState) (model.QueryInput, error) {
		if s.SessionID == "" {
			s.SessionID = in.SessionID
		}
		s.Query = in.Query
		// Reset per-turn bookkeeping
		s.ToolRequest = nil
		s.Calls = nil
		s.Boundaries = nil
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		s.Response = nil
		return in, nil
	}
}

// NewInputConverterNode analyzes the query and builds the first model request:
// the committed history with the user message appended and trimmed to budget.
// Nothing is committed here.
func NewInputConverterNode(hm *history.Manager, analyzer *intent.Analyzer) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		qi := analyzer.Analyze(ctx, input.Query)

		var working []*schema.Message
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			if s.Turn == nil {
				return errors.New("no session held for this turn")
			}
			s.Intent = qi
			s.Working = hm.AppendAndTrim(s.Turn.History(), schema.UserMessage(input.Query))
			working = slices.Clone(s.Working)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("prepare conversation context: %w", err)
		}

		logx.Debug().
			Str("session_id", input.SessionID).
			Int("messages", len(working)).
			Int("tokens", hm.Count(working)).
			Msg("Conversation context ready")
		return working, nil
	})
}

// NewToolChatModelPostHandler accounts cost, fills missing tool call ids and
// remembers the tool request for the later nodes.
func NewToolChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.TurnState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.TurnState) (*schema.Message, error) {
		if out == nil {
			return nil, errx.ModelAPI(errors.New("chat model returned no message"), false)
		}
		recordUsage(NodeToolChatModel, modelName, out, state)

		if len(out.ToolCalls) == 0 {
			logx.Debug().Str("session_id", state.SessionID).Msg("AI response ready")
			return out, nil
		}

		// Some providers omit tool call ids; every tool message must link to one.
		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
			if out.ToolCalls[i].Type == "" {
				out.ToolCalls[i].Type = "function"
			}
		}
		state.ToolRequest = out

		logx.Debug().
			Str("session_id", state.SessionID).
			Int("tool_count", len(out.ToolCalls)).
			Msg("Calling tools")
		return out, nil
	}
}

// NewSynthesisChatModelPostHandler accounts cost of the synthesis call.
func NewSynthesisChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.TurnState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.TurnState) (*schema.Message, error) {
		if out == nil {
			return nil, errx.ModelAPI(errors.New("chat model returned no message"), false)
		}
		recordUsage(NodeSynthesisChatModel, modelName, out, state)
		return out, nil
	}
}

func recordUsage(node, modelName string, out *schema.Message, state *model.TurnState) {
	if out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["usage_cost"] = map[string]any{
		"currency":          "USD",
		"model":             modelName,
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"total_tokens":      usage.TotalTokens,
		"input_cost":        inC,
		"output_cost":       outC,
		"total_cost":        totalC,
	}
	logx.Debug().
		Str("session_id", state.SessionID).
		Str("node", node).
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")

	// Accumulate only total cost into state
	state.TotalCostUSD += totalC
	out.Extra["usage_cost_total_usd"] = state.TotalCostUSD
}

// NewToolDispatchCondition routes tool requests to the dispatcher and direct
// answers straight to the finalizer.
func NewToolDispatchCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		if len(input.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolDispatcher")
			return NodeToolDispatcher, nil
		}
		logx.Debug().Msg("No tool calls - routing to Finalizer")
		return NodeFinalizer, nil
	}
}

// NewToolDispatcherNode executes the requested calls and builds the synthesis
// request: the working history, the assistant tool request and one tool
// message per call, in the order the model asked for them.
//
// Arguments that are not a JSON object abort the turn. Calls beyond
// maxToolCalls are not executed but still answered with an error result.
func NewToolDispatcherNode(d *tools.Dispatcher, maxToolCalls int) *compose.Lambda {
	maxToolCalls = normalizeMaxToolCalls(maxToolCalls)

	return compose.InvokableLambda(func(ctx context.Context, request *schema.Message) ([]*schema.Message, error) {
		calls := make([]tools.Call, 0, len(request.ToolCalls))
		for _, tc := range request.ToolCalls {
			args, err := parseArguments(tc.Function.Arguments)
			if err != nil {
				logx.Warn().
					Err(err).
					Str("tool_call_id", tc.ID).
					Str("function", tc.Function.Name).
					Str("arguments", tc.Function.Arguments).
					Msg("Malformed tool call arguments")
				return nil, errx.MalformedRequest(fmt.Errorf("arguments of %s: %w", tc.Function.Name, err))
			}
			calls = append(calls, tools.Call{Name: tc.Function.Name, Args: args})
		}

		var (
			qi      model.QueryIntent
			working []*schema.Message
		)
		_ = compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			qi = s.Intent
			working = slices.Clone(s.Working)
			return nil
		})

		run := calls
		if len(run) > maxToolCalls {
			logx.Warn().
				Int("requested", len(calls)).
				Int("max_tool_calls", maxToolCalls).
				Msg("Tool call limit exceeded - skipping the rest")
			run = calls[:maxToolCalls]
		}

		cbCtxs := make([]context.Context, len(run))
		for i, tc := range request.ToolCalls[:len(run)] {
			cbCtx := callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
				Name:      tc.Function.Name,
				Type:      "AnalysisFunction",
				Component: components.ComponentOfTool,
			})
			cbCtxs[i] = callbacks.OnStart(cbCtx, &tool.CallbackInput{ArgumentsInJSON: tc.Function.Arguments})
		}

		results := d.ExecuteAll(ctx, run, qi)
		for _, c := range calls[len(run):] {
			results = append(results, model.Failure(model.ErrToolLimitReached,
				"Tool call limit reached (%d per turn); %s was not executed", maxToolCalls, c.Name))
		}

		msgs := append(working, request)
		executed := make([]model.FunctionCall, 0, len(calls))
		var boundaries []model.BoundaryPayload
		for i, res := range results {
			_, text := sanitizer.Clean(res)
			if i < len(cbCtxs) {
				callbacks.OnEnd(cbCtxs[i], &tool.CallbackOutput{Response: text})
			}
			msgs = append(msgs, schema.ToolMessage(text, request.ToolCalls[i].ID))
			executed = append(executed, model.FunctionCall{
				Function:  calls[i].Name,
				Arguments: calls[i].Args,
				Result:    res,
			})
			boundaries = append(boundaries, res.Boundary...)
		}

		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			s.Calls = executed
			s.Boundaries = boundaries
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("record tool results: %w", err)
		}

		logx.Debug().
			Int("tool_count", len(executed)).
			Int("boundaries", len(boundaries)).
			Msg("Tool results collected")
		return msgs, nil
	})
}

// parseArguments decodes tool call arguments. Empty or null arguments mean none.
func parseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// NewFinalizerNode commits the turn to the session and builds the response.
// It is the only place session history changes, so a turn that fails earlier
// leaves the session as it was.
func NewFinalizerNode(conv model.ConversationConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, answer *schema.Message) (*model.ChatResponse, error) {
		var resp *model.ChatResponse
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			if s.Turn == nil {
				return errors.New("no session held for this turn")
			}
			usedTools := s.ToolRequest != nil

			stored := answer.Content
			if usedTools {
				stored = storedResponse(answer.Content, conv.StoredResponseLimit, conv.StoredResponseKeep)
			}
			s.Turn.AppendAndTrim(schema.UserMessage(s.Query))
			s.Turn.AppendAndTrim(schema.AssistantMessage(stored, nil))

			resp = &model.ChatResponse{
				SessionID: s.SessionID,
				Response:  answer.Content,
				CostUSD:   s.TotalCostUSD,
			}
			if usedTools {
				resp.MapType = responseMapType(s.Calls, conv.DefaultMapType)
				resp.Data = s.Calls
				resp.Boundary = s.Boundaries
				resp.FunctionCalls = make([]model.FunctionCallSummary, 0, len(s.Calls))
				for _, c := range s.Calls {
					resp.FunctionCalls = append(resp.FunctionCalls, model.FunctionCallSummary{
						Function:  c.Function,
						Arguments: c.Arguments,
					})
				}
			}
			s.Response = resp
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("commit turn: %w", err)
		}

		logx.Debug().
			Str("session_id", resp.SessionID).
			Bool("used_tools", resp.UsedTools()).
			Msg("Turn committed")
		return resp, nil
	})
}
