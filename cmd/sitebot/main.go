package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sitebot/internal/ai"
	"sitebot/internal/bus"
	"sitebot/internal/channel"
	"sitebot/internal/config"
	"sitebot/internal/domain"
	"sitebot/internal/engine"
	"sitebot/internal/nlp"
	"sitebot/internal/onboarding"
	"sitebot/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	engine.SetVersion(version)

	root := &cobra.Command{
		Use:   "sitebot",
		Short: "SiteBot: conversational assistant for construction site records",
		Long:  "SiteBot is a messaging bot that turns plain-language site updates into expense, task and budget records.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.sitebot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func applyLogConfig(cfg *config.Config) {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.General.LogLevel),
	}))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			dataDir := config.ExpandPath(cfg.General.DataDir)
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "dataDir", dataDir)
			return nil
		},
	}
}

// pipeline bundles everything the engine loop needs.
type pipeline struct {
	store      *store.SQLiteStore
	bus        *bus.InMemoryBus
	dispatcher *engine.Dispatcher
	loop       *engine.Loop
}

func (p *pipeline) close() {
	p.bus.Close()
	if err := p.store.Close(); err != nil {
		logger.Warn("store close", "err", err)
	}
}

// buildPipeline wires lexicon, classifier, store, optional AI extractor,
// dispatcher and loop from config.
func buildPipeline(cfg *config.Config) (*pipeline, error) {
	lex, err := loadLexicon(cfg)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(config.ExpandPath(cfg.General.DataDir), 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Storage.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	var extractor domain.AIExtractor
	if cfg.AI.Enabled {
		extractor = ai.New(ai.Config{
			APIBase:        cfg.AI.APIBase,
			Model:          cfg.AI.Model,
			TimeoutSeconds: cfg.AI.TimeoutSeconds,
			MinConfidence:  cfg.AI.MinConfidence,
			Logger:         logger,
		})
		logger.Info("ai fallback enabled", "apiBase", cfg.AI.APIBase, "model", cfg.AI.Model)
	}

	classifier := nlp.NewClassifier(lex, logger)
	dispatcher := engine.NewDispatcher(engine.DispatcherConfig{
		Store:             st,
		Classifier:        classifier,
		Categories:        nlp.NewResolver(lex),
		Machine:           onboarding.NewMachine(lex),
		Extractor:         extractor,
		FallbackThreshold: cfg.Engine.FallbackThreshold,
		ClarifyThreshold:  cfg.Engine.ClarifyThreshold,
		Logger:            logger,
	})

	messageBus := bus.New(100, logger)
	loop := engine.NewLoop(engine.LoopConfig{
		Dispatcher:   dispatcher,
		Store:        st,
		Bus:          messageBus,
		Logger:       logger,
		Concurrency:  cfg.Engine.MaxConcurrentMessages,
		AutoRegister: cfg.Engine.AutoRegister,
	})

	return &pipeline{store: st, bus: messageBus, dispatcher: dispatcher, loop: loop}, nil
}

func loadLexicon(cfg *config.Config) (*nlp.Lexicon, error) {
	if cfg.Lexicon.Path == "" {
		return nlp.DefaultLexicon(), nil
	}
	lex, err := nlp.LoadLexicon(cfg.Lexicon.Path)
	if err != nil {
		return nil, fmt.Errorf("lexicon: %w", err)
	}
	logger.Info("lexicon loaded", "path", cfg.Lexicon.Path)
	return lex, nil
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
		cfg.General.DataDir = config.ExpandPath(cfg.General.DataDir)
		cfg.Storage.DBPath = config.ExpandPath(cfg.Storage.DBPath)
	}
	applyLogConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.close()

	go p.loop.Run(ctx)

	cliCh := channel.NewCLI(channel.CLIConfig{Logger: logger})
	return cliCh.Start(ctx, p.bus)
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start gateway (Telegram + engine loop)",
		Long:  "Starts all enabled channels and the engine loop. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyLogConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	go p.loop.Run(ctx)

	var telegramCh *channel.Telegram
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			ParseMode: cfg.Channels.Telegram.ParseMode,
			Logger:    logger,
		})
		go func() {
			if err := telegramCh.Start(ctx, p.bus); err != nil {
				logger.Error("telegram channel error", "err", err)
			}
		}()
		logger.Info("telegram channel enabled")
	} else {
		logger.Info("telegram channel disabled")
	}

	var cliCh *channel.CLI
	if cfg.Channels.CLI.Enabled {
		cliCh = channel.NewCLI(channel.CLIConfig{Logger: logger})
		go func() {
			if err := cliCh.Start(ctx, p.bus); err != nil {
				logger.Error("cli channel error", "err", err)
			}
		}()
	}

	logger.Info("gateway started. Press Ctrl+C to stop.")

	// Block until shutdown signal
	<-ctx.Done()
	logger.Info("shutting down gateway...")

	// Graceful shutdown with timeout
	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		if telegramCh != nil {
			_ = telegramCh.Stop()
		}
		p.close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		shutdownErr = fmt.Errorf("shutdown timed out")
	}

	return shutdownErr
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}

			if !cfg.AI.Enabled {
				logger.Info("ai fallback", "enabled", false)
				return nil
			}
			extractor := ai.New(ai.Config{
				APIBase:        cfg.AI.APIBase,
				Model:          cfg.AI.Model,
				TimeoutSeconds: cfg.AI.TimeoutSeconds,
				MinConfidence:  cfg.AI.MinConfidence,
				Logger:         logger,
			})
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := extractor.Healthy(ctx); err != nil {
				logger.Info("ai fallback", "enabled", true, "healthy", false, "err", err)
			} else {
				logger.Info("ai fallback", "enabled", true, "healthy", true, "apiBase", cfg.AI.APIBase)
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. engine.fallbackThreshold)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. ai.enabled true)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
