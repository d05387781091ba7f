package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/samsaffron/toolchat/internal/config"
	"github.com/samsaffron/toolchat/internal/llm"
	"github.com/samsaffron/toolchat/internal/logging"
	"github.com/samsaffron/toolchat/internal/mcp"
	"github.com/samsaffron/toolchat/internal/session"
	"github.com/samsaffron/toolchat/internal/signal"
	"github.com/samsaffron/toolchat/internal/tools"
	"github.com/samsaffron/toolchat/internal/ui"
	"github.com/samsaffron/toolchat/internal/usage"
)

// loadConfig reads the config and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if providerFlag != "" {
		provider, model, err := config.ParseProviderModel(providerFlag)
		if err != nil {
			return nil, err
		}
		cfg.ApplyOverrides(provider, model)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if thinkingFlag {
		cfg.Thinking = true
	}
	return cfg, nil
}

// appOptions are the per-command settings for newApp.
type appOptions struct {
	out       io.Writer
	tools     string // --tools value
	markdown  bool
	debugLog  bool
	stats     bool
	startMCP  bool
	command   string
	sessionID string // names the debug log
}

func defaultAppOptions(command string) appOptions {
	return appOptions{
		out:      os.Stdout,
		tools:    toolsFlag,
		markdown: !noMarkdown,
		debugLog: debugLog,
		stats:    showStats,
		startMCP: true,
		command:  command,
	}
}

// app wires the collaborators a loop needs: one backend, one tool
// registry, the session store and the terminal renderer.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	out      io.Writer
	styles   *ui.Styles
	registry *tools.Registry
	mcp      *mcp.Manager
	engine   *llm.Engine
	store    session.Store
	tracker  *usage.Tracker
	debug    *llm.DebugLogger
	opts     appOptions
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	log, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:     cfg,
		log:     log,
		out:     opts.out,
		styles:  ui.NewStyles(opts.out, ui.ThemeFromConfig(cfg.Theme)),
		tracker: usage.NewTracker(),
		opts:    opts,
	}

	backend, err := llm.NewBackend(cfg)
	if err != nil {
		return nil, err
	}

	a.registry, err = tools.NewBuiltinRegistry(cfg.Tools, log)
	if err != nil {
		return nil, fmt.Errorf("tools: %w", err)
	}
	if opts.startMCP {
		if err := a.startMCP(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	if err := a.restrictTools(opts.tools); err != nil {
		a.Close()
		return nil, err
	}

	a.engine = llm.NewEngine(backend, a.registry)
	a.engine.SetModel(cfg.ActiveModel())
	a.engine.SetThinking(cfg.Thinking)
	a.engine.SetLogger(log)
	a.engine.SetTools(a.registry.Specs())

	store, err := session.NewStore(cfg.Sessions.Enabled, cfg.SessionsPath())
	if err != nil {
		log.Warn("sessions disabled", zap.Error(err))
		store = &session.NoopStore{}
	}
	a.store = session.NewLoggingStore(store, log)

	if opts.debugLog {
		id := opts.sessionID
		if id == "" {
			id = session.NewID()
		}
		if err := a.enableDebugLog(id); err != nil {
			log.Warn("debug log disabled", zap.Error(err))
		}
	}
	return a, nil
}

func (a *app) startMCP(ctx context.Context) error {
	path, err := a.cfg.MCPConfigPath()
	if err != nil {
		return err
	}
	mcpCfg, err := mcp.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("mcp config: %w", err)
	}
	a.mcp = mcp.NewManager(mcpCfg, Version, a.log)
	if len(mcpCfg.Servers) == 0 {
		return nil
	}
	if err := a.mcp.StartAll(ctx); err != nil {
		// Failed servers are reported; the rest stay usable.
		fmt.Fprintln(os.Stderr, a.styles.Error.Render("MCP: "+err.Error()))
	}
	n, err := mcp.RegisterTools(a.mcp, a.registry)
	if err != nil {
		return fmt.Errorf("register MCP tools: %w", err)
	}
	a.log.Debug("registered MCP tools", zap.Int("count", n))
	return nil
}

// restrictTools applies --tools. "none" hides every tool; unknown names
// are an error so typos are not silently ignored.
func (a *app) restrictTools(flag string) error {
	flag = strings.TrimSpace(flag)
	switch flag {
	case "", "all":
		a.registry.Restrict(nil)
		return nil
	case "none":
		a.registry.Restrict([]string{})
		return nil
	}
	var names []string
	for _, name := range strings.Split(flag, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := a.registry.Get(name); !ok {
			return fmt.Errorf("unknown tool %q (available: %s)", name, strings.Join(a.registry.Names(), ", "))
		}
		names = append(names, name)
	}
	a.registry.Restrict(names)
	return nil
}

// enableDebugLog starts a JSONL debug log named after the session id.
func (a *app) enableDebugLog(sessionID string) error {
	dl, err := llm.NewDebugLogger(config.DebugLogDir(), sessionID)
	if err != nil {
		return err
	}
	cwd, _ := os.Getwd()
	dl.LogSessionStart(a.opts.command, os.Args[1:], cwd)
	if a.debug != nil {
		a.debug.Close()
	}
	a.debug = dl
	a.engine.SetDebugLogger(dl)
	return nil
}

// switchModel changes provider and/or model between loops. ref is
// "provider:model", a provider name, or a model for the current provider.
func (a *app) switchModel(ref string) error {
	provider, model := "", ref
	if strings.Contains(ref, ":") || isProvider(ref) {
		var err error
		provider, model, err = config.ParseProviderModel(ref)
		if err != nil {
			return err
		}
	}
	next := *a.cfg
	next.ApplyOverrides(provider, model)
	backend, err := llm.NewBackend(&next)
	if err != nil {
		return err
	}
	*a.cfg = next
	a.engine.SetBackend(backend)
	a.engine.SetModel(a.cfg.ActiveModel())
	return nil
}

func isProvider(name string) bool {
	for _, p := range config.ProviderNames {
		if p == name {
			return true
		}
	}
	return false
}

func (a *app) newRenderer() *ui.Renderer {
	return ui.NewRenderer(a.out, a.styles, ui.RendererOptions{
		Markdown: a.opts.markdown && ui.IsTerminal(a.out),
		Width:    ui.TerminalWidth(a.out),
		Preview:  a.registry.Preview,
	})
}

// runLoop runs one loop over history and renders its events. Turns the
// loop appends are passed to onTurn as they happen. With interruptible set,
// Ctrl-C cancels this loop instead of exiting.
func (a *app) runLoop(ctx context.Context, history llm.History, onTurn func(llm.Turn), interruptible bool) (llm.History, llm.LoopStats, error) {
	loop := a.engine.Run(ctx, history, llm.WithTurnAppended(onTurn))
	if interruptible {
		stop := signal.CancelOnInterrupt(loop.Cancel)
		defer stop()
	}

	renderer := a.newRenderer()
	renderer.Run(loop.Events())
	result, err := loop.Wait()
	stats := loop.Stats()
	a.tracker.Record(a.engine.Describe(), stats)

	if a.opts.stats {
		renderer.Notice(ui.LoopStatsLine(stats))
	}
	return result, stats, err
}

func (a *app) Close() {
	if a.mcp != nil {
		a.mcp.StopAll()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.debug != nil {
		a.debug.Close()
	}
	_ = a.log.Sync()
}
