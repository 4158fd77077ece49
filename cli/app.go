// Application wiring for the chat bot.
//
// Information Hiding:
// - Component construction order hidden
// - Usage ledger and MCP lifecycle hidden
// - Hot reload of the routing table hidden

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/richinex/parley/agent"
	"github.com/richinex/parley/command"
	"github.com/richinex/parley/config"
	"github.com/richinex/parley/internal/markdown"
	"github.com/richinex/parley/llm"
	"github.com/richinex/parley/mcp"
	"github.com/richinex/parley/storage"
	"github.com/richinex/parley/tools"
	"github.com/richinex/parley/transport"
)

// App holds the running bot's components.
type App struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger

	Gateway  *llm.Gateway
	Registry *tools.Registry
	Engine   *agent.Engine
	Router   *command.Router
	Matrix   *transport.Matrix

	ledger *storage.UsageLedger
	mcp    *mcp.Manager
}

// NewApp validates cfg and builds every component. configPath, when set,
// is watched for routing changes while the bot runs.
func NewApp(ctx context.Context, cfg *config.Config, configPath string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	routes, err := cfg.Routes()
	if err != nil {
		return nil, err
	}

	app := &App{cfg: cfg, configPath: configPath, logger: logger}

	gatewayOpts := []llm.GatewayOption{
		llm.WithTimeout(cfg.Timeout()),
		llm.WithNoOptionModels(cfg.LLM.NoOptionModels),
		llm.WithLogger(logger.With("component", "gateway")),
	}
	if cfg.UsageDB != "" {
		ledger, err := storage.OpenUsageLedger(cfg.UsageDB, logger)
		if err != nil {
			logger.Warn("usage tracking disabled", "path", cfg.UsageDB, "error", err)
		} else {
			app.ledger = ledger
			gatewayOpts = append(gatewayOpts, llm.WithUsageRecorder(ledger))
		}
	}
	app.Gateway = llm.NewGateway(routes, gatewayOpts...)

	app.Matrix, err = transport.NewMatrix(transport.MatrixConfig{
		Server:      cfg.Matrix.Server,
		Username:    cfg.Matrix.Username,
		Password:    cfg.Matrix.Password,
		AccessToken: cfg.Matrix.AccessToken,
		DeviceID:    cfg.Matrix.DeviceID,
		Rooms:       cfg.Matrix.Channels,
	}, logger.With("component", "matrix"))
	if err != nil {
		app.Close()
		return nil, err
	}

	if err := app.buildTools(ctx, routes); err != nil {
		app.Close()
		return nil, err
	}

	prefix, suffix, extra := cfg.PromptParts()
	prompts := storage.NewPromptBuilder(prefix, suffix, extra, cfg.LLM.Personality)
	history := storage.NewHistory(prompts, cfg.LLM.HistorySize)

	var executor tools.Executor
	if app.Registry != nil {
		executor = app.Registry
	}
	loop := agent.NewLoop(app.Gateway, executor,
		agent.WithMaxToolRounds(cfg.LLM.MaxToolRounds),
		agent.WithRetention(history.MaxItems()),
		agent.WithArtifactSink(app.Matrix),
		agent.WithLoopLogger(logger.With("component", "loop")),
	)

	app.Engine, err = agent.NewBuilder(app.Gateway, history).
		DefaultModel(cfg.LLM.DefaultModel).
		Options(cfg.LLM.Options).
		Prompts(prompts).
		Loop(loop).
		ToolsEnabled(app.Registry != nil).
		Logger(logger.With("component", "engine")).
		Build()
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Router = command.NewDefaultRouter(cfg.Commands.Prefix)
	return app, nil
}

// buildTools registers built-in and MCP tools. Tools stay nil when
// disabled in the configuration.
func (a *App) buildTools(ctx context.Context, routes llm.RoutingTable) error {
	if a.cfg.Tools.Disabled {
		return nil
	}
	policy := tools.DefaultRetryPolicy()
	policy.Timeout = a.cfg.Timeout()

	openaiCfg := tools.OpenAIToolConfig{APIKey: a.cfg.OpenAIKey()}
	if p, ok := routes.Providers["openai"]; ok {
		openaiCfg.BaseURL = p.BaseURL
	}

	registry, err := tools.WithDefaults(tools.Options{
		Enabled:       a.cfg.Tools.Enabled,
		ImageDir:      a.cfg.Tools.ImageDir,
		FetchMaxBytes: a.cfg.Tools.FetchMaxBytes,
		FetchDomains:  a.cfg.Tools.FetchDomains,
		OpenAI:        openaiCfg,
		HTTPClient:    &http.Client{Timeout: a.cfg.Timeout()},
		Policy:        &policy,
		Logger:        a.logger.With("component", "tools"),
	})
	if err != nil {
		return err
	}

	servers, err := a.cfg.MCPServers()
	if err != nil {
		return fmt.Errorf("failed to load MCP servers: %w", err)
	}
	if len(servers) > 0 {
		a.mcp = mcp.Connect(ctx, servers, a.logger.With("component", "mcp"))
		a.mcp.RegisterAll(registry)
	}
	a.Registry = registry
	return nil
}

// Env builds the command environment bound to the Matrix transport.
func (a *App) Env() (*command.Env, error) {
	help, err := command.LoadHelp(a.cfg.Commands.HelpFile)
	if err != nil {
		return nil, err
	}
	env := &command.Env{
		Engine: a.Engine,
		Sender: a.Matrix,
		Help:   help,
		Router: a.Router,
		Admins: a.cfg.Matrix.Admins,
		Logger: a.logger.With("component", "commands"),
	}
	if a.ledger != nil {
		env.Usage = a.ledger
	}
	if a.cfg.MarkdownEnabled() {
		env.Render = markdown.ToHTML
	}
	return env, nil
}

// Run connects to the homeserver and serves events until ctx is
// cancelled or the sync loop fails.
func (a *App) Run(ctx context.Context) error {
	env, err := a.Env()
	if err != nil {
		return err
	}
	if err := a.Matrix.Connect(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.configPath != "" {
		go func() {
			if err := config.Watch(ctx, a.configPath, config.DefaultWatchDebounce, a.reload, a.logger); err != nil {
				a.logger.Warn("config watch stopped", "error", err)
			}
		}()
	}

	bot := NewBot(a.Matrix, env, time.Now(), a.logger.With("component", "bot"))
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Serve(ctx)
	}()

	a.logger.Info("bot started", "user", a.Matrix.UserID(), "model", a.Engine.Model())
	err = a.Matrix.Run(ctx)
	cancel()
	<-done
	return err
}

// reload swaps the routing table after a valid config change.
func (a *App) reload(cfg *config.Config) {
	routes, err := cfg.Routes()
	if err != nil {
		a.logger.Error("routing reload rejected", "error", err)
		return
	}
	a.Gateway.SetRoutes(routes)
	reset, dropped := a.Engine.PruneModels()
	a.logger.Info("routing table reloaded", "providers", routes.ProviderNames(),
		"model", a.Engine.Model(), "model_reset", reset, "overrides_dropped", dropped)
}

// Close releases MCP servers and the usage ledger.
func (a *App) Close() error {
	var errs []error
	if a.mcp != nil {
		errs = append(errs, a.mcp.Close())
	}
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	return errors.Join(errs...)
}
