// Package cli builds the oxidedb command tree: a root command with
// the shared --config/--debug flags, layering environment values and
// then flags on top of a config file, with one cobra command per operation.
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewRoot builds the oxidedb root command and registers its
// subcommands. logger is used for anything printed before a
// subcommand's own request-scoped logging takes over (flag parse
// errors, startup banners).
func NewRoot(logger *zap.Logger, version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "oxidedb",
		Short:         "oxidedb is a MongoDB-wire-compatible server backed by PostgreSQL",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to a TOML configuration file (defaults to $OXIDEDB_CONFIG)")
	root.PersistentFlags().Bool("debug", false, "enable debug-level logging for every module")
	root.PersistentFlags().StringSlice("debug-module", nil, "enable debug-level logging for specific modules only (repeatable)")

	root.AddCommand(newServeCmd(logger))
	return root
}
