// Package main is the entry point for the keeper CLI.
package main

import (
	"os"

	"github.com/keeperbot/keeper/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
