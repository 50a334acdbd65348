package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civicdesk/server/internal/agent"
	"github.com/civicdesk/server/internal/agent/identify"
	"github.com/civicdesk/server/internal/agent/llm"
	"github.com/civicdesk/server/internal/agent/model"
	"github.com/civicdesk/server/internal/agent/repo"
	"github.com/civicdesk/server/internal/agent/validation"
	"github.com/civicdesk/server/internal/api"
	"github.com/civicdesk/server/internal/core"
	"github.com/civicdesk/server/internal/knowledge"
	"github.com/civicdesk/server/internal/requests"
	logx "github.com/civicdesk/server/pkg/logger"
	pkgredis "github.com/civicdesk/server/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	Server    api.Config
	Redis     pkgredis.Config
	SQLite    requests.Config
	Knowledge knowledge.Config

	LLM struct {
		APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
		BaseURL string `envconfig:"GEMINI_BASE_URL"`
	}
	Identify     model.IdentifyModelConfig
	Conversation model.ConversationConfig
	Retrieval    model.RetrievalConfig

	ValidationRules string `envconfig:"VALIDATION_RULES"`
}

func main() {
	_ = godotenv.Load()

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("failed to load configuration")
	}

	env := core.ParseEnvironment(cfg.Environment)
	logx.Init(logx.LoggerOpts{Environment: env})
	logx.Info().Str("environment", env.String()).Msg("starting civicdesk server")

	ctx := context.Background()

	rdb := cfg.Redis.MustNew()
	defer rdb.Close()

	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		logx.Fatal().Err(err).Str("ttl", cfg.Conversation.TTL).Msg("invalid conversation TTL")
	}
	history := repo.NewRedisConversationRepository(rdb, ttl)

	kstore, err := knowledge.OpenStore(cfg.Knowledge.Dir)
	if err != nil {
		logx.Fatal().Err(err).Str("dir", cfg.Knowledge.Dir).Msg("failed to open knowledge store")
	}
	defer kstore.Close()

	embedder, err := knowledge.NewOpenAIEmbedder(cfg.Knowledge)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build embedder")
	}
	ingestor := knowledge.NewIngestor(kstore, embedder, cfg.Knowledge)
	retriever := knowledge.NewRetriever(kstore, embedder, cfg.Retrieval)

	models, err := llm.NewModels(ctx, llm.Config{
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Identify: &cfg.Identify,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to initialize chat models")
	}
	identifier := identify.New(models.Identify, models.IdentifyModelName, retriever)

	validator, err := loadValidator(cfg.ValidationRules)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to load validation rules")
	}

	store, err := requests.NewSqliteStore(cfg.SQLite.Path)
	if err != nil {
		logx.Fatal().Err(err).Str("path", cfg.SQLite.Path).Msg("failed to open request database")
	}
	defer store.Close()

	ag := agent.New(identifier, validator, store, history)
	server := api.NewServer(cfg.Server, ag, store, ingestor, kstore, history)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logx.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("graceful shutdown failed")
	}
	logx.Info().Msg("server stopped")
}

func loadValidator(path string) (*validation.Validator, error) {
	if path == "" {
		return validation.Default()
	}
	return validation.Load(path)
}
