// Package main is the Minerva administration CLI: schema migration, superuser
// creation, fixture seeding, backups and the assistant schema catalog.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/minerva/internal/config"
	"github.com/aristath/minerva/internal/di"
	"github.com/aristath/minerva/pkg/logger"
)

type app struct {
	envFile  string
	logLevel string
	log      zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "minervactl",
		Short:         "Minerva administration tool",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.log = logger.New(logger.Config{Level: a.logLevel, Pretty: true, Output: cmd.ErrOrStderr()})
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "env file to load before reading configuration")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		a.migrateCmd(),
		a.createSuperuserCmd(),
		a.seedCmd(),
		a.backupCmd(),
		a.schemaCmd(),
	)
	return root
}

func (a *app) config() (*config.Config, error) {
	if a.envFile != "" {
		return config.LoadFile(a.envFile)
	}
	return config.Load()
}

// container wires the full application without starting the scheduler.
func (a *app) container(ctx context.Context) (*di.Container, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	c, err := di.Wire(ctx, cfg, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to wire dependencies: %w", err)
	}
	return c, nil
}
