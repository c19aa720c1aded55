package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keeperbot/keeper/internal/agent"
	"github.com/keeperbot/keeper/internal/config"
	"github.com/keeperbot/keeper/internal/coordinator"
	"github.com/keeperbot/keeper/internal/session"
)

var agentThread string

var agentCmd = &cobra.Command{
	Use:   "agent [prompt]",
	Short: "Run a one-shot agent turn from the terminal",
	Long: `Runs one turn through the same per-thread pipeline the bot uses. The
session persists in the state database, so repeated invocations on the same
thread continue the conversation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printHeader("🤖 Keeper Agent")

		cfg, err := config.Load()
		if err != nil {
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

		coord := coordinator.New(coordinator.Options{
			Store:     store,
			Runner:    agent.NewCLIRunner(cfg.Agent.Binary),
			KBDir:     cfg.KB.Root,
			WorkDir:   cfg.Agent.WorkDir,
			MainModel: cfg.Agent.MainModel,
			IdleTTL:   time.Minute,
		})
		return runAgentTurn(cmd.Context(), coord, store, agentThread,
			strings.Join(args, " "), cmd.OutOrStdout())
	},
}

// runAgentTurn pushes one prompt through the coordinator and renders the
// outcome to out.
func runAgentTurn(ctx context.Context, coord *coordinator.Coordinator, store *session.Store, threadID, prompt string, out io.Writer) error {
	res := coord.RunTurn(ctx, coordinator.Turn{
		ThreadID: threadID,
		Text:     prompt,
	})
	switch res.Kind {
	case coordinator.KindCancelled, coordinator.KindSuperseded:
		return nil
	case coordinator.KindFailed:
		return res.Err
	}
	fmt.Fprintln(out, res.Response)
	ref, err := store.Get(threadID)
	if err != nil {
		return nil
	}
	cost, _ := store.Cost(threadID)
	fmt.Fprintf(out, "\n(session %s, $%.4f total)\n", ref.Main, cost)
	return nil
}

func init() {
	agentCmd.Flags().StringVar(&agentThread, "thread", "cli:0", "conversation thread to run the turn on")
}
