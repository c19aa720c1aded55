// Package cli implements the keeper command-line interface.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/keeperbot/keeper/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"  _  __\n" +
		" | |/ /___  ___ _ __   ___ _ __\n" +
		" | ' // _ \\/ _ \\ '_ \\ / _ \\ '__|\n" +
		" | . \\  __/  __/ |_) |  __/ |\n" +
		" |_|\\_\\___|\\___| .__/ \\___|_|\n" +
		"               |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "keeper",
	Short: "Keeper - knowledge-keeping Telegram assistant",
	Long:  color.CyanString(logo) + "\nA Telegram assistant that keeps a personal knowledge base current.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(agentCmd)
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}
