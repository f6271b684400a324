// Package app assembles and runs the Kagami gateway.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bdobrica/Kagami/internal/kagami/agent"
	"github.com/bdobrica/Kagami/internal/kagami/api"
	"github.com/bdobrica/Kagami/internal/kagami/config"
	"github.com/bdobrica/Kagami/internal/kagami/energy"
	"github.com/bdobrica/Kagami/internal/kagami/llm"
	"github.com/bdobrica/Kagami/internal/kagami/matrix"
	"github.com/bdobrica/Kagami/internal/kagami/prompt"
	"github.com/bdobrica/Kagami/internal/kagami/store"
)

// promptReloadInterval is how often the system prompt file is checked for
// edits.
const promptReloadInterval = 10 * time.Second

// App owns every long-lived component of the gateway.
type App struct {
	cfg      *config.Config
	store    *store.Store
	prompt   *prompt.Template
	registry *agent.Registry
	matrix   *matrix.Client
	api      *api.Server
}

// New wires the application from a validated configuration.
func New(cfg *config.Config) (*App, error) {
	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tmpl, err := prompt.Load(cfg.Prompt.Path)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load system prompt: %w", err)
	}

	router, err := buildRouter(cfg, st)
	if err != nil {
		st.Close()
		return nil, err
	}

	matrixClient, err := matrix.New(&matrix.Config{
		Homeserver:  cfg.Matrix.HomeserverURL,
		UserID:      cfg.Matrix.UserID,
		AccessToken: cfg.Matrix.AccessToken,
		Rooms:       cfg.Matrix.Rooms,
		DB:          st.DB(),
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create Matrix client: %w", err)
	}

	policy, err := agent.PolicyFor(cfg.Agent.ReplyPolicy, cfg.Matrix.UserID)
	if err != nil {
		st.Close()
		return nil, err
	}

	registry, err := agent.NewRegistry(cfg.Matrix.Rooms, func(roomID string) (*agent.RoomAgent, error) {
		return agent.New(agent.Options{
			RoomID:           roomID,
			BotID:            cfg.Matrix.UserID,
			OperatorID:       cfg.Operator.UserID,
			OperatorNickname: cfg.Operator.Nickname,
			HistoryTurns:     cfg.Agent.HistoryTurns,
			Energy:           energyConfig(cfg.Agent.Energy),
			Policy:           policy,
			Generator:        router,
			Prompt:           tmpl,
			Transport:        matrixClient,
		})
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		store:    st,
		prompt:   tmpl,
		registry: registry,
		matrix:   matrixClient,
	}
	if cfg.HTTP.Addr != "" {
		a.api = api.New(cfg.HTTP.Addr, st, cfg.HTTP.CORSOrigins)
	}
	return a, nil
}

// buildRouter constructs one provider per config entry and the ordered
// fallback chain over them.
func buildRouter(cfg *config.Config, logs llm.CallLogger) (*llm.Router, error) {
	providers := make(map[string]llm.Provider, len(cfg.LLM.Providers))
	for name, p := range cfg.LLM.Providers {
		keys, err := llm.NewKeyPool(p.APIKeys)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		switch p.Interface {
		case config.InterfaceOpenAI:
			providers[name] = llm.NewOpenAI(llm.OpenAIConfig{
				Keys:    keys,
				BaseURL: p.BaseURL,
				Timeout: time.Duration(p.TimeoutSeconds) * time.Second,
			})
		case config.InterfaceGenAI:
			providers[name] = llm.NewGenAI(llm.GenAIConfig{Keys: keys})
		default:
			return nil, fmt.Errorf("provider %s: unknown interface %q", name, p.Interface)
		}
	}

	clients := make([]llm.ModelClient, 0, len(cfg.LLM.Models))
	for _, m := range cfg.LLM.Models {
		clients = append(clients, llm.ModelClient{
			Model:    m.Name,
			Provider: providers[m.Provider],
		})
	}
	return llm.NewRouter(clients, logs)
}

func energyConfig(e config.Energy) energy.Config {
	return energy.Config{
		Max:              e.Max,
		CostPerReply:     e.CostPerReply,
		RecoveryRate:     e.RecoveryRate,
		RecoveryInterval: e.RecoveryInterval(),
	}
}

// Run starts every component and blocks until an interrupt signal arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.api != nil {
		if err := a.api.Start(ctx); err != nil {
			slog.Warn("api server failed to start; continuing without it", "err", err)
		}
	}

	slog.Info("starting Matrix sync", "rooms", len(a.cfg.Matrix.Rooms))
	if err := a.matrix.Start(ctx, a.registry.Dispatch); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}

	go a.watchPrompt(ctx)

	slog.Info("Kagami is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// watchPrompt polls the prompt file's mtime and reloads it when edited, so
// persona changes apply without a restart.
func (a *App) watchPrompt(ctx context.Context) {
	var lastMod time.Time
	if info, err := os.Stat(a.prompt.Path()); err == nil {
		lastMod = info.ModTime()
	}

	ticker := time.NewTicker(promptReloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(a.prompt.Path())
			if err != nil {
				continue
			}
			if info.ModTime().Equal(lastMod) {
				continue
			}
			lastMod = info.ModTime()
			if err := a.prompt.Reload(); err != nil {
				slog.Error("prompt reload failed, keeping previous template", "err", err)
				continue
			}
			slog.Info("system prompt reloaded", "path", a.prompt.Path())
		}
	}
}

// Stop tears the application down in dependency order.
func (a *App) Stop() {
	slog.Info("stopping Matrix client")
	a.matrix.Stop()

	slog.Info("stopping room agents")
	a.registry.Stop()

	if a.api != nil {
		slog.Info("stopping api server")
		a.api.Stop()
	}

	slog.Info("closing database")
	a.store.Close()
}
