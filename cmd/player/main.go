package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jscyril/supersonic/internal/config"
	"github.com/jscyril/supersonic/internal/ui"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "supersonic",
	Short:         "Terminal music player for the Supersonic backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.GetConfigPath(), "config file (json or yaml)")
	rootCmd.AddCommand(playCmd, downloadCmd, downloadsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func runTUI(ctx context.Context) error {
	a, err := newApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.startEngine(ctx); err != nil {
		return err
	}

	err = ui.Run(ctx, a.engine, a.engine.Events(), a.cfg.KeyBindings)
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
