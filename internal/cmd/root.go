// Package cmd implements the planforge CLI: running the planning pipeline,
// resuming interrupted runs, and inspecting checkpoints and error reports.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/planforge/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "planforge",
	Short: "Resumable project planning pipeline",
	Long: `Planforge turns a project description into a staged execution plan:
analysis, task breakdown, prioritization and skill-based assignment.

Every stage is checkpointed; an interrupted or failed run resumes from the
last completed stage instead of starting over.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/planforge/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	if err := config.InitViper(viper.GetString("config")); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}
