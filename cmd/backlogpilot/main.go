package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "backlogpilot",
		Short: "Backlog Pilot - autonomous task admission and scheduling",
		Long: `Backlog Pilot schedules coding agents over a task backlog.
It scores and orders the open tasks, admits the ones that fit the
session budget, and runs each inside an isolated git worktree under
hard cost, time, and failure limits.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
