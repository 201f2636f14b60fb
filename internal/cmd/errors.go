package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/planforge/internal/config"
	"github.com/Iron-Ham/planforge/internal/logging"
)

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Inspect recorded errors",
	Long: `Query the error reports written during pipeline runs.

Examples:
  # Show recent errors
  planforge errors

  # Look up the full record for an error id
  planforge errors --id err-1756600000000-a1b2

  # Errors from checkpoint saves in the last day
  planforge errors --context checkpoint --since 24h`,
	RunE: runErrors,
}

var (
	errorsID      string
	errorsContext string
	errorsSince   string
	errorsLimit   int
)

func init() {
	rootCmd.AddCommand(errorsCmd)
	errorsCmd.Flags().StringVar(&errorsID, "id", "", "show the full record for this error id")
	errorsCmd.Flags().StringVar(&errorsContext, "context", "", "filter by context substring")
	errorsCmd.Flags().StringVar(&errorsSince, "since", "", "only errors newer than this duration (e.g. 2h, 30m)")
	errorsCmd.Flags().IntVarP(&errorsLimit, "limit", "n", 20, "maximum records to show (0 = all)")
}

func runErrors(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	dir := cfg.LogDir()

	if errorsID != "" {
		record, err := logging.FindError(dir, errorsID)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	records, err := logging.ReadErrors(dir)
	if err != nil {
		return err
	}

	filter := logging.ErrorFilter{Context: errorsContext}
	if errorsSince != "" {
		d, err := time.ParseDuration(errorsSince)
		if err != nil {
			return fmt.Errorf("parse --since: %w", err)
		}
		filter.Since = time.Now().Add(-d)
	}
	records = logging.FilterErrors(records, filter)
	if errorsLimit > 0 && len(records) > errorsLimit {
		records = records[:errorsLimit]
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no matching errors")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  [%s] %s\n",
			r.ErrorID, r.Timestamp.Format(time.RFC3339), r.Context, r.Message)
	}
	return nil
}
