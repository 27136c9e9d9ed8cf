package cli

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DB      string
	Verbose bool
	Format  string // "json" | "text"
}

// envConfig carries environment defaults for the global flags.
// Flags always win over environment values.
type envConfig struct {
	DB     string `env:"PIVOT_DB" envDefault:"pivot.db"`
	Format string `env:"PIVOT_FORMAT" envDefault:"text"`
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the pivot CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		// Unparseable environment falls back to built-in defaults.
		cfg = envConfig{DB: "pivot.db", Format: "text"}
	}

	cmd := &cobra.Command{
		Use:   "pivot",
		Short: "pivot - in-place logic upgrades for stateful components",
		Long: "Deploy versioned implementation bundles, host component instances\n" +
			"behind a stable address, and upgrade their logic in place without\n" +
			"touching their persistent state.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.DB, "db", cfg.DB, "path to the pivot database")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", cfg.Format, "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewDeployCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewUpgradeCommand(opts))
	cmd.AddCommand(NewTransferCommand(opts))
	cmd.AddCommand(NewCallCommand(opts))
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
