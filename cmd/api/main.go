// Command clinic-api serves the clinic workflow API and carries the
// operator commands that run against the same database.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-api/internal/config"
	"github.com/jwalitptl/clinic-api/pkg/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "clinic-api",
		Short:        "Clinic visit workflow API",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "path to config file")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(adminCmd())
	root.AddCommand(tokenCmd())
	return root
}

// setup loads the configuration named by --config and builds the logger.
// Operator commands log to stderr so their stdout stays scriptable.
func setup(cmd *cobra.Command, operator bool) (*config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	lc := logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty}
	if operator {
		lc.Pretty = true
		lc.Output = os.Stderr
	}
	return cfg, logger.New(lc), nil
}
