package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/keeperbot/keeper/internal/agent"
	"github.com/keeperbot/keeper/internal/bot"
	"github.com/keeperbot/keeper/internal/bus"
	"github.com/keeperbot/keeper/internal/config"
	"github.com/keeperbot/keeper/internal/coordinator"
	"github.com/keeperbot/keeper/internal/retrieval"
	"github.com/keeperbot/keeper/internal/session"
	"github.com/keeperbot/keeper/internal/telegram"
	"github.com/keeperbot/keeper/internal/updater"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	printHeader("📨 Keeper Serve")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	store, err := session.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	client := telegram.NewClient(cfg.Telegram.Token)
	runner := agent.NewCLIRunner(cfg.Agent.Binary)
	agentTimeout := time.Duration(cfg.Agent.TimeoutSec) * time.Second

	var retriever coordinator.Retriever
	if cfg.Retrieval.Enabled && cfg.KB.SearchCommand != "" {
		retriever = &retrieval.Pipeline{
			Planner: &agent.Sub{
				Runner:  runner,
				Model:   cfg.Agent.PlannerModel,
				WorkDir: cfg.KB.Root,
				Timeout: agentTimeout,
			},
			Filter: &agent.Sub{
				Runner:  runner,
				Model:   cfg.Agent.FilterModel,
				WorkDir: cfg.KB.Root,
				Timeout: agentTimeout,
			},
			Searcher: &retrieval.ExecSearcher{
				Command: cfg.KB.SearchCommand,
				Args:    cfg.KB.SearchArgs,
				WorkDir: cfg.KB.Root,
			},
			Selected:      retrieval.NewSelectedStore(),
			KBRoot:        cfg.KB.Root,
			RecentDir:     cfg.KB.RecentDir,
			RecentDays:    cfg.KB.RecentDays,
			PreviewBudget: cfg.Retrieval.PreviewBudget,
		}
	} else {
		slog.Info("Retrieval disabled", "enabled", cfg.Retrieval.Enabled, "search_command", cfg.KB.SearchCommand)
	}

	upd := updater.New(&agent.Sub{
		Runner:  runner,
		Model:   cfg.Agent.UpdaterModel,
		WorkDir: cfg.KB.Root,
		Timeout: agentTimeout,
	}, store, client)

	coord := coordinator.New(coordinator.Options{
		Store:     store,
		Runner:    runner,
		Retriever: retriever,
		Transport: client,
		KBDir:     cfg.KB.Root,
		WorkDir:   cfg.Agent.WorkDir,
		MainModel: cfg.Agent.MainModel,
		OnCompleted: func(turn coordinator.Turn, response, diff string) {
			upd.Run(context.Background(), updater.Job{
				ThreadID: turn.ThreadID,
				ChatID:   turn.ChatID,
				TopicID:  turn.TopicID,
				UserText: turn.Text,
				Response: response,
				KBDiff:   diff,
			})
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	coord.StartReaper(ctx, 30*time.Minute)

	slog.Info("Keeper serving", "version", version, "chats", len(cfg.Channels))
	b := bot.New(cfg, client, bus.NewMessageBus(), coord, upd, store)
	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Keeper stopped")
	return nil
}
