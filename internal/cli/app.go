package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"
	"github.com/yolodolo42/chatd/internal/agent"
	"github.com/yolodolo42/chatd/internal/auth"
	"github.com/yolodolo42/chatd/internal/config"
	"github.com/yolodolo42/chatd/internal/jseval"
	"github.com/yolodolo42/chatd/internal/llm"
	"github.com/yolodolo42/chatd/internal/logging"
	"github.com/yolodolo42/chatd/internal/novelai"
	"github.com/yolodolo42/chatd/internal/store"
	"github.com/yolodolo42/chatd/internal/tools"
)

// app holds the wired runtime shared by serve and chat
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	auth   *auth.Manager
	agent  *agent.Agent
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return store.Open(ctx, store.Config{
		Driver:         cfg.Database.Driver,
		DSN:            cfg.Database.DSN,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}, logger)
}

// buildRegistry enables the tools selected in cfg. Image generation is skipped
// with a warning when no NovelAI key is available.
func buildRegistry(cfg *config.Config, st *store.Store, manager *auth.Manager, logger *slog.Logger) *tools.Registry {
	opts := tools.Options{
		Alert:       cfg.Tools.Alert.Enabled,
		AllowWrites: cfg.Tools.Query.AllowWrites,
		Logger:      logger,
	}
	if cfg.Tools.JavaScript.Enabled {
		opts.Evaluator = jseval.New(cfg.Tools.JavaScript.Timeout)
	}
	if cfg.Tools.Query.Enabled && st != nil {
		opts.Queries = st
	}
	if cfg.Tools.Image.Enabled {
		key, err := manager.GetAPIKey(llm.ProviderNovelAI)
		if err != nil {
			logger.Warn("image generation disabled", "reason", err)
		} else {
			opts.Images = novelai.NewClient(key, novelai.Config{
				Endpoint: cfg.NovelAI.Endpoint,
				Model:    cfg.NovelAI.Model,
				Size:     cfg.NovelAI.Size,
				Timeout:  cfg.NovelAI.Timeout,
			}, novelai.WithLogger(logger))
		}
	}
	return tools.NewRegistry(opts)
}

func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	manager, err := auth.NewManager(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	apiKey, err := manager.GetAPIKey(llm.ProviderGemini)
	if err != nil {
		return nil, fmt.Errorf("%w\nRun 'chatd auth set gemini' or set %s", err, auth.GetEnvVarHint(llm.ProviderGemini))
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewGeminiProvider(ctx, apiKey, cfg.Gemini.Model)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	registry := buildRegistry(cfg, st, manager, logger)
	ag := agent.New(provider, registry, st, agent.Config{
		SystemPrompt:  cfg.Agent.SystemPrompt,
		ToolMode:      llm.ToolMode(cfg.Gemini.ToolMode),
		MaxToolRounds: cfg.Agent.MaxToolRounds,
		DataDir:       cfg.DataDir,
	}, logger)

	logger.Info("chatd ready",
		"model", provider.DefaultModel(),
		"tools", registry.ToolSet().Names(),
		"database", cfg.Database.Driver,
	)

	return &app{cfg: cfg, logger: logger, store: st, auth: manager, agent: ag}, nil
}

func (a *app) Close() error {
	a.agent.Close()
	return a.store.Close()
}

// ensureUser returns the user called name, creating it on first use
func ensureUser(ctx context.Context, st *store.Store, name string) (*store.User, error) {
	users, err := st.Users(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Name == name {
			return &users[i], nil
		}
	}
	u, err := st.CreateUser(ctx, name)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// openConversation loads id for user, or starts a new conversation when id is empty
func openConversation(ctx context.Context, st *store.Store, user *store.User, id, title string) (*store.Conversation, error) {
	if id == "" {
		c := &store.Conversation{Title: title, UserID: user.ID}
		if err := st.UpsertConversation(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	}
	c, err := st.Conversation(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && c.UserID != user.ID) {
		return nil, fmt.Errorf("conversation %s not found for user %s", id, user.Name)
	}
	return c, err
}
