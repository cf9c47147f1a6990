package sdg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sdg-insight/server/internal/agent/model"
	errx "github.com/sdg-insight/server/internal/core/error"
	logx "github.com/sdg-insight/server/pkg/logger"
)

// DefaultSchema holds the analysis functions and the district table.
const DefaultSchema = "sdg_analytics"

// Querier is the part of *pgxpool.Pool the gateway uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Gateway runs analysis functions stored in Postgres. Each function takes its
// arguments as one jsonb object and returns the result envelope as jsonb.
type Gateway struct {
	db     Querier
	schema string
}

// NewGateway builds a gateway over db. An empty schema means DefaultSchema.
func NewGateway(db Querier, schema string) *Gateway {
	if schema == "" {
		schema = DefaultSchema
	}
	return &Gateway{db: db, schema: schema}
}

// Ping checks that the store is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	if err := g.db.Ping(ctx); err != nil {
		return errx.WrapPostgres(err)
	}
	return nil
}

// Call runs one analysis function. Store failures are returned as errors; a
// function that reports its own failure comes back as an error-shaped result.
func (g *Gateway) Call(ctx context.Context, function string, args map[string]any) (model.Result, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return model.Result{}, fmt.Errorf("encode %s arguments: %w", function, err)
	}

	var raw []byte
	if err := g.db.QueryRow(ctx, g.callSQL(function), string(payload)).Scan(&raw); err != nil {
		logx.Error().Err(err).Str("function", function).Msg("Analysis function query failed")
		return model.Result{}, errx.WrapPostgres(err)
	}
	if len(raw) == 0 {
		return model.Failure(model.ErrCollaborator, "No data returned by %s", function), nil
	}

	var res model.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return model.Result{}, fmt.Errorf("decode %s result: %w", function, err)
	}
	return res, nil
}

func (g *Gateway) callSQL(function string) string {
	return fmt.Sprintf("SELECT %s($1::jsonb)", pgx.Identifier{g.schema, function}.Sanitize())
}
