package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/zonewise-dev/zonewise/pkg/agent/config"
	"github.com/zonewise-dev/zonewise/pkg/agent/executor"
)

// NewAskCmd creates the ask command
func NewAskCmd() *cobra.Command {
	var configFile string
	var showTools bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question from the command line",
		Long: `Run one agent turn without starting the HTTP service.

Examples:
  zonewise ask "What is the zoning at 809 N Broadway?"
  zonewise ask --show-tools "How many parking spaces does a 3000 sq ft restaurant in LB2 need?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			log := logr.FromContextOrDiscard(cmd.Context())
			agent, _, err := buildAgent(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}

			result, err := agent.Chat(cmd.Context(), executor.ChatRequest{
				Message: strings.Join(args, " "),
			})
			if err != nil {
				return fmt.Errorf("%s", executor.GenericFailureMessage)
			}

			fmt.Println(result.Response)
			if showTools && len(result.ToolResults) > 0 {
				fmt.Fprintln(os.Stderr)
				for _, tr := range result.ToolResults {
					payload, _ := json.Marshal(tr.Result)
					fmt.Fprintf(os.Stderr, "[%s success=%t] %s\n", tr.Name, tr.Success, payload)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to configuration file (YAML)")
	cmd.Flags().BoolVar(&showTools, "show-tools", false, "Print tool results to stderr")
	return cmd
}
