package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/sdg-insight/server/internal/agent/graph"
	"github.com/sdg-insight/server/internal/agent/graph/tools"
	"github.com/sdg-insight/server/internal/agent/model"
	"github.com/sdg-insight/server/internal/agent/repo"
	"github.com/sdg-insight/server/internal/agent/tokens"
	"github.com/sdg-insight/server/internal/core"
	errx "github.com/sdg-insight/server/internal/core/error"
	"github.com/sdg-insight/server/internal/sdg"
	logx "github.com/sdg-insight/server/pkg/logger"
	pkgpostgres "github.com/sdg-insight/server/pkg/postgres"
	pkgredis "github.com/sdg-insight/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the chatbot,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Postgres pkgpostgres.Config
	Redis    pkgredis.Config
	Schema   string `envconfig:"SDG_SCHEMA" default:"sdg_analytics"`

	// Agent configs
	LLM          model.LLMConfig
	Retry        model.RetryConfig
	History      model.HistoryConfig
	Conversation model.ConversationConfig
	Cache        model.CacheConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(envCfg.Environment),
		Level:       envCfg.LogLevel,
	})

	pool, err := envCfg.Postgres.New(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer pool.Close()
	logx.Info().Msg("Connected to Postgres successfully")

	gateway := sdg.NewGateway(pool, envCfg.Schema)

	var cache tools.ResultCache
	if envCfg.Cache.Enabled {
		rdb, err := envCfg.Redis.New(ctx)
		if err != nil {
			logx.Warn().Err(err).Msg("Redis unavailable; running without result cache")
		} else {
			defer rdb.Close()
			cache = repo.NewRedisResultCache(rdb, envCfg.Cache)
			logx.Info().Msg("Connected to Redis successfully")
		}
	}

	counter, err := tokens.NewTiktokenCounter()
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise token counter")
	}

	runner, err := graph.BuildRunner(ctx, graph.Config{
		LLM:          envCfg.LLM,
		Retry:        envCfg.Retry,
		History:      envCfg.History,
		Conversation: envCfg.Conversation,
		Counter:      counter,
		Collaborator: gateway,
		Cache:        cache,
		Districts:    sdg.NewDistrictMatcher(pool, envCfg.Schema),
		Pinger:       gateway,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build graph")
	}
	go runner.Sessions().Run(ctx, envCfg.Conversation.SessionSweepEvery)

	if err := runner.Health(ctx); err != nil {
		logx.Fatal().Err(err).Msg("Health check failed")
	}

	testQueries := []struct {
		description string
		query       string
	}{
		{
			description: "Greeting",
			query:       "Hi! What can you tell me about?",
		},
		{
			description: "Worst performers in a state",
			query:       "Which are the 3 worst performing districts in Kerala on SDG 1?",
		},
		{
			description: "Follow-up on the previous answer",
			query:       "How did those districts change since 2016?",
		},
		{
			description: "Single district profile",
			query:       "Show me the SDG 3 indicators for Ernakulam",
		},
	}

	sessionID := ""
	for i, test := range testQueries {
		fmt.Printf("\nTest %d: %s\n", i+1, test.description)
		fmt.Printf("Query: %q\n", test.query)

		response, err := runner.Invoke(ctx, model.QueryInput{
			SessionID: sessionID,
			Query:     test.query,
		})
		if err != nil {
			logx.Error().
				Err(err).
				Int("test", i+1).
				Str("kind", string(errx.KindOf(err))).
				Bool("retryable", errx.IsRetryable(err)).
				Msg("Failed to invoke graph")
			continue
		}
		sessionID = response.SessionID

		out, err := json.MarshalIndent(response, "", "  ")
		if err != nil {
			logx.Error().Err(err).Msg("Failed to encode response")
			continue
		}
		fmt.Printf("Response %d:\n%s\n", i+1, out)
		logx.Debug().Float64("cost_usd", response.CostUSD).Bool("used_tools", response.UsedTools()).Msg("Turn completed")
	}

	fmt.Println("\nAll queries processed.")
}
