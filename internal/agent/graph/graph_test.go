package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdg-insight/server/internal/agent/graph/nodes"
	"github.com/sdg-insight/server/internal/agent/graph/tools"
	"github.com/sdg-insight/server/internal/agent/history"
	"github.com/sdg-insight/server/internal/agent/intent"
	"github.com/sdg-insight/server/internal/agent/model"
	errx "github.com/sdg-insight/server/internal/core/error"
)

// ===== fakes =====

type reply struct {
	msg *schema.Message
	err error
}

type seenCall struct {
	input []*schema.Message
	tools int
}

type modelScript struct {
	mu      sync.Mutex
	replies []reply
	seen    []seenCall
}

type fakeChatModel struct {
	script *modelScript
	tools  []*schema.ToolInfo
}

func newFakeChatModel(replies ...reply) *fakeChatModel {
	return &fakeChatModel{script: &modelScript{replies: replies}}
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	s := f.script
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen = append(s.seen, seenCall{input: append([]*schema.Message(nil), input...), tools: len(f.tools)})
	if len(s.replies) == 0 {
		return nil, errors.New("unexpected model call")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.msg, r.err
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeChatModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return &fakeChatModel{script: f.script, tools: tools}, nil
}

func (f *fakeChatModel) seen() []seenCall {
	f.script.mu.Lock()
	defer f.script.mu.Unlock()
	return append([]seenCall(nil), f.script.seen...)
}

type collaboratorCall struct {
	function string
	args     map[string]any
}

type fakeCollaborator struct {
	mu      sync.Mutex
	calls   []collaboratorCall
	respond func(function string, args map[string]any) (model.Result, error)
}

func (f *fakeCollaborator) Call(_ context.Context, function string, args map[string]any) (model.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, collaboratorCall{function, args})
	f.mu.Unlock()
	if f.respond == nil {
		return model.Result{QueryType: "top_performers"}, nil
	}
	return f.respond(function, args)
}

func (f *fakeCollaborator) recorded() []collaboratorCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]collaboratorCall(nil), f.calls...)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type charCounter struct{}

func (charCounter) MessageTokens(msg *schema.Message, _ string) int {
	return len(msg.Content) + 4
}

func (c charCounter) Count(msgs []*schema.Message, model string) int {
	n := 2
	for _, m := range msgs {
		n += c.MessageTokens(m, model)
	}
	return n
}

// ===== helpers =====

type harness struct {
	runner  *Runner
	model   *fakeChatModel
	backend *fakeCollaborator
	store   *history.Store
}

func conversationConfig(maxCalls int) model.ConversationConfig {
	conv := model.ConversationConfig{
		DefaultMapType:      "sdg_analysis",
		StoredResponseLimit: 2500,
		StoredResponseKeep:  2000,
	}
	conv.Tools.MaxCalls = maxCalls
	conv.Tools.Concurrency = 2
	return conv
}

func newHarness(t *testing.T, pinger StorePinger, backend *fakeCollaborator, maxCalls int, replies ...reply) *harness {
	t.Helper()

	catalog, err := tools.DefaultCatalog()
	require.NoError(t, err)

	fake := newFakeChatModel(replies...)
	manager := history.NewManager(charCounter{}, "gpt-4o", 100_000, "You are an SDG analyst.")
	store := history.NewStore(manager, time.Hour)

	runnable, err := BuildGraph(context.Background(), &GraphConfig{
		ChatModels:   &nodes.ChatModels{Base: fake, ModelName: "gpt-4o"},
		Manager:      manager,
		Analyzer:     intent.NewAnalyzer(nil),
		Dispatcher:   tools.NewDispatcher(catalog, backend),
		Conversation: conversationConfig(maxCalls),
	})
	require.NoError(t, err)

	return &harness{
		runner:  NewRunner(runnable, store, pinger),
		model:   fake,
		backend: backend,
		store:   store,
	}
}

func (h *harness) history(t *testing.T, sessionID string) []*schema.Message {
	t.Helper()
	turn, err := h.store.Begin(context.Background(), sessionID)
	require.NoError(t, err)
	defer turn.End()
	return turn.History()
}

func toolRequest(calls ...schema.ToolCall) reply {
	return reply{msg: schema.AssistantMessage("", calls)}
}

func answer(text string) reply {
	return reply{msg: schema.AssistantMessage(text, nil)}
}

func call(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Function: schema.FunctionCall{Name: name, Arguments: args}}
}

// ===== tests =====

func TestDirectAnswer(t *testing.T) {
	h := newHarness(t, fakePinger{}, &fakeCollaborator{}, 10, answer("Hello! Ask me about SDG indicators."))

	resp, err := h.runner.Invoke(context.Background(), model.QueryInput{Query: "hi"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "Hello! Ask me about SDG indicators.", resp.Response)
	assert.False(t, resp.UsedTools())
	assert.Empty(t, resp.MapType)

	seen := h.model.seen()
	require.Len(t, seen, 1)
	assert.Equal(t, 16, seen[0].tools)
	require.Len(t, seen[0].input, 2)
	assert.Equal(t, schema.System, seen[0].input[0].Role)
	assert.Equal(t, "hi", seen[0].input[1].Content)

	hist := h.history(t, resp.SessionID)
	require.Len(t, hist, 3)
	assert.Equal(t, schema.System, hist[0].Role)
	assert.Equal(t, "hi", hist[1].Content)
	assert.Equal(t, "Hello! Ask me about SDG indicators.", hist[2].Content)
	assert.Empty(t, h.backend.recorded())
}

func TestToolTurnFillsIntentAndCommits(t *testing.T) {
	longAnswer := strings.Repeat("a", 3000)
	backend := &fakeCollaborator{
		respond: func(function string, args map[string]any) (model.Result, error) {
			return model.Result{
				QueryType: "bottom_performers",
				MapType:   "district_ranking",
				Data:      model.Data{Rows: []model.Row{{"district": "Wayanad", "state": "Kerala"}}},
				Boundary:  []model.BoundaryPayload{model.BoundaryPayload(`{"type":"Polygon","district":"Wayanad"}`)},
			}, nil
		},
	}
	h := newHarness(t, fakePinger{}, backend, 10,
		toolRequest(call("", tools.FnSDGGoalData, `{"sdg_goal_number": 1}`)),
		answer(longAnswer),
	)

	resp, err := h.runner.Invoke(context.Background(), model.QueryInput{
		SessionID: "s-kerala",
		Query:     "Worst 3 districts in Kerala for SDG 1",
	})
	require.NoError(t, err)

	recorded := backend.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, tools.FnSDGGoalData, recorded[0].function)
	assert.Equal(t, "bottom_performers", recorded[0].args["query_type"])
	assert.Equal(t, 3, recorded[0].args["top_n"])
	assert.Equal(t, "Kerala", recorded[0].args["state_name"])
	assert.Equal(t, 1, recorded[0].args["sdg_goal_number"])

	assert.Equal(t, "s-kerala", resp.SessionID)
	assert.Equal(t, longAnswer, resp.Response)
	assert.Equal(t, "district_ranking", resp.MapType)
	require.Len(t, resp.FunctionCalls, 1)
	assert.Equal(t, map[string]any{"sdg_goal_number": float64(1)}, resp.FunctionCalls[0].Arguments)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "bottom_performers", resp.Data[0].Result.QueryType)
	require.Len(t, resp.Boundary, 1)

	seen := h.model.seen()
	require.Len(t, seen, 2)
	assert.Zero(t, seen[1].tools)
	synth := seen[1].input
	require.Len(t, synth, 4)
	assert.Equal(t, schema.Assistant, synth[2].Role)
	require.Len(t, synth[2].ToolCalls, 1)
	assert.Equal(t, "call_1", synth[2].ToolCalls[0].ID)
	assert.Equal(t, schema.Tool, synth[3].Role)
	assert.Equal(t, "call_1", synth[3].ToolCallID)
	assert.Contains(t, synth[3].Content, "Wayanad")
	assert.NotContains(t, synth[3].Content, "Polygon")

	hist := h.history(t, "s-kerala")
	require.Len(t, hist, 3)
	assert.Equal(t, "Worst 3 districts in Kerala for SDG 1", hist[1].Content)
	assert.True(t, strings.HasSuffix(hist[2].Content, "... [Response truncated for conversation history]"))
	assert.Equal(t, 2000, utf8.RuneCountInString(strings.TrimSuffix(hist[2].Content, "... [Response truncated for conversation history]")))
	assert.Empty(t, hist[2].ToolCalls)
}

func TestSecondTurnSeesCommittedHistory(t *testing.T) {
	h := newHarness(t, fakePinger{}, &fakeCollaborator{}, 10, answer("first"), answer("second"))

	first, err := h.runner.Invoke(context.Background(), model.QueryInput{Query: "hello"})
	require.NoError(t, err)
	_, err = h.runner.Invoke(context.Background(), model.QueryInput{SessionID: first.SessionID, Query: "and again"})
	require.NoError(t, err)

	seen := h.model.seen()
	require.Len(t, seen, 2)
	contents := make([]string, 0, len(seen[1].input))
	for _, m := range seen[1].input {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"You are an SDG analyst.", "hello", "first", "and again"}, contents)
}

func TestUnknownFunctionIsRecovered(t *testing.T) {
	h := newHarness(t, fakePinger{}, &fakeCollaborator{}, 10,
		toolRequest(call("c1", "nonexistent_function", `{}`)),
		answer("I could not run that analysis."),
	)

	resp, err := h.runner.Invoke(context.Background(), model.QueryInput{Query: "do something odd"})
	require.NoError(t, err)

	assert.Equal(t, "sdg_analysis", resp.MapType)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Unknown function: nonexistent_function", resp.Data[0].Result.Error)

	seen := h.model.seen()
	require.Len(t, seen, 2)
	last := seen[1].input[len(seen[1].input)-1]
	assert.JSONEq(t, `{"error":"Unknown function: nonexistent_function"}`, last.Content)
}

func TestToolCallCap(t *testing.T) {
	backend := &fakeCollaborator{}
	h := newHarness(t, fakePinger{}, backend, 2,
		toolRequest(
			call("c1", tools.FnIndicatorsByGoal, `{"sdg_goal_number": 1}`),
			call("c2", tools.FnIndicatorsByGoal, `{"sdg_goal_number": 2}`),
			call("c3", tools.FnIndicatorsByGoal, `{"sdg_goal_number": 3}`),
		),
		answer("Here is what I found."),
	)

	resp, err := h.runner.Invoke(context.Background(), model.QueryInput{Query: "indicators for goals 1, 2 and 3"})
	require.NoError(t, err)

	assert.Len(t, backend.recorded(), 2)
	require.Len(t, resp.Data, 3)
	assert.Equal(t, model.ErrToolLimitReached, resp.Data[2].Result.ErrKind)
	assert.Equal(t, "sdg_analysis", resp.MapType)

	synth := h.model.seen()[1].input
	toolMsgs := synth[len(synth)-3:]
	for i, id := range []string{"c1", "c2", "c3"} {
		assert.Equal(t, id, toolMsgs[i].ToolCallID)
	}
	assert.Contains(t, toolMsgs[2].Content, "Tool call limit reached")
}

func TestFailedTurnsLeaveHistoryUntouched(t *testing.T) {
	tests := []struct {
		name     string
		pinger   StorePinger
		replies  []reply
		wantKind errx.Kind
		wantLLM  int
	}{
		{
			name:     "store unreachable",
			pinger:   fakePinger{err: errors.New("dial tcp: connection refused")},
			replies:  []reply{answer("never")},
			wantKind: errx.KindConnectivity,
			wantLLM:  0,
		},
		{
			name:     "malformed tool arguments",
			pinger:   fakePinger{},
			replies:  []reply{toolRequest(call("c1", tools.FnSDGGoalData, `{"sdg_goal_number": `))},
			wantKind: errx.KindMalformedRequest,
			wantLLM:  1,
		},
		{
			name:     "tool arguments not an object",
			pinger:   fakePinger{},
			replies:  []reply{toolRequest(call("c1", tools.FnSDGGoalData, `[1, 2]`))},
			wantKind: errx.KindMalformedRequest,
			wantLLM:  1,
		},
		{
			name:     "model failure on first call",
			pinger:   fakePinger{},
			replies:  []reply{{err: errx.ModelAPI(errors.New("429 rate limited"), true)}},
			wantKind: errx.KindModelAPI,
			wantLLM:  1,
		},
		{
			name:   "model failure on synthesis",
			pinger: fakePinger{},
			replies: []reply{
				toolRequest(call("c1", tools.FnIndicatorsByGoal, `{"sdg_goal_number": 3}`)),
				{err: errx.ModelAPI(errors.New("upstream 503"), true)},
			},
			wantKind: errx.KindModelAPI,
			wantLLM:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.pinger, &fakeCollaborator{}, 10, tt.replies...)

			_, err := h.runner.Invoke(context.Background(), model.QueryInput{SessionID: "s1", Query: "top districts for SDG 3"})
			require.Error(t, err)

			var appErr *errx.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantKind, appErr.Kind)
			assert.Len(t, h.model.seen(), tt.wantLLM)
			assert.Empty(t, h.history(t, "s1"))
		})
	}
}

func TestEmptyQueryIsRejected(t *testing.T) {
	h := newHarness(t, fakePinger{}, &fakeCollaborator{}, 10)

	_, err := h.runner.Invoke(context.Background(), model.QueryInput{Query: "   "})

	assert.Equal(t, errx.KindMalformedRequest, errx.KindOf(err))
	assert.Empty(t, h.model.seen())
}
