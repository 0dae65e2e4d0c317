// Package cli implements the zonewise command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root zonewise command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zonewise",
		Short: "Milwaukee zoning assistant",
		Long: `zonewise answers Milwaukee zoning and planning questions by orchestrating
language models over geocoding, GIS lookup, parking calculation, and document
retrieval tools.

Available subcommands:
  serve       Run the HTTP service
  ask         Ask a single question from the command line
  version     Print version information

Examples:
  zonewise serve --config config.yaml
  zonewise ask "What is the zoning at 809 N Broadway?"`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewAskCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}
