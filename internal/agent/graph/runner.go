package graph

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"

	"github.com/sdg-insight/server/internal/agent/graph/observers"
	"github.com/sdg-insight/server/internal/agent/history"
	"github.com/sdg-insight/server/internal/agent/model"
	errx "github.com/sdg-insight/server/internal/core/error"
	logx "github.com/sdg-insight/server/pkg/logger"
)

// Runner executes one user turn at a time per session against the compiled graph.
type Runner struct {
	runnable compose.Runnable[model.QueryInput, *model.ChatResponse]
	sessions *history.Store
	pinger   StorePinger
	handler  callbacks.Handler
}

func NewRunner(runnable compose.Runnable[model.QueryInput, *model.ChatResponse], sessions *history.Store, pinger StorePinger) *Runner {
	return &Runner{
		runnable: runnable,
		sessions: sessions,
		pinger:   pinger,
		handler:  observers.NewAllCallbacks(),
	}
}

// Sessions exposes the session store, e.g. to run its idle sweeper.
func (r *Runner) Sessions() *history.Store {
	return r.sessions
}

// Health reports whether the analytics store is reachable.
func (r *Runner) Health(ctx context.Context) error {
	if err := r.pinger.Ping(ctx); err != nil {
		var appErr *errx.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return errx.Connectivity(err, errx.PostgresErrorMessage)
	}
	return nil
}

// Invoke runs one turn. An empty session id starts a new session; the issued
// id is returned in the response. Errors are *errx.AppError values, and a
// failed turn leaves the session history untouched.
func (r *Runner) Invoke(ctx context.Context, in model.QueryInput) (*model.ChatResponse, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, errx.MalformedRequest(errors.New("query is empty"))
	}

	// Fail before spending anything on the model when the store is down.
	if err := r.Health(ctx); err != nil {
		logx.Error().Err(err).Msg("Analytics store unreachable")
		return nil, err
	}

	if in.SessionID == "" {
		in.SessionID = history.NewSessionID()
	}
	turn, err := r.sessions.Begin(ctx, in.SessionID)
	if err != nil {
		return nil, errx.Internal(err)
	}
	defer turn.End()

	st := &model.TurnState{Turn: turn, SessionID: in.SessionID}
	out, err := r.runnable.Invoke(withTurnState(ctx, st), in, compose.WithCallbacks(r.handler))

	path := "direct"
	if st.ToolRequest != nil {
		path = "tools"
	}
	observers.ObserveTurn(path, err)

	if err != nil {
		appErr := classify(err)
		logx.Error().
			Err(err).
			Str("session_id", in.SessionID).
			Str("path", path).
			Msg("Turn failed")
		return nil, appErr
	}

	logx.Info().
		Str("session_id", in.SessionID).
		Str("path", path).
		Int("function_calls", len(out.FunctionCalls)).
		Float64("total_cost_usd", st.TotalCostUSD).
		Msg("Turn completed")
	return out, nil
}
