package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/getpup/pupsourcing-migrator/internal/config"
	"github.com/getpup/pupsourcing-migrator/internal/logging"
)

// errMigrationFailed signals that a migration or rollback was attempted and
// failed. Its details have already been printed.
var errMigrationFailed = errors.New("migration failed")

// app carries the state shared by every command.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "migrator",
		Short:         "Zero-downtime schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		newApplyCmd(a),
		newRollbackCmd(a),
		newStatusCmd(a),
		newListCmd(a),
		newNewCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{
		Production: cfg.IsProduction(),
		Level:      cfg.Logger.Level,
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}
