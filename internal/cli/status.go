package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keeperbot/keeper/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ Keeper Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 Keeper Status")
		fmt.Printf("Version: %s\n", version)

		path, err := config.ConfigPath()
		if err == nil {
			if _, serr := os.Stat(path); serr == nil {
				fmt.Println("Config:  ✓ Found (" + path + ")")
			} else {
				fmt.Println("Config:  ✗ Not found (" + path + ")")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Load:    ✗ %v\n", err)
			return
		}
		if cfg.Telegram.Token != "" {
			fmt.Println("Token:   ✓ Configured")
		} else {
			fmt.Println("Token:   ✗ Missing")
		}
		if cfg.KB.Root != "" {
			fmt.Println("KB:      " + cfg.KB.Root)
		} else {
			fmt.Println("KB:      ✗ Not configured (retrieval and updates disabled)")
		}
		fmt.Printf("Chats:   %d profile(s)\n", len(cfg.Channels))
	},
}
