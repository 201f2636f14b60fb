package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/planforge/internal/checkpoint"
	"github.com/Iron-Ham/planforge/internal/errors"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints <project-id>",
	Short: "List a project's checkpoints",
	Long: `List the checkpoint history for a project, newest first. Checkpoints
tagged with a "` + checkpoint.FailedSuffix + `" suffix were taken when a stage failed; the latest
checkpoint (failed or not) is the one a resume starts from.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckpoints,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
}

func runCheckpoints(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	projectID := args[0]
	entries, err := rt.store.List(cmd.Context(), projectID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no checkpoints for %s\n", projectID)
		return nil
	}

	state, err := rt.store.LoadLatest(cmd.Context(), projectID)
	if err != nil && !errors.Is(err, errors.ErrNoCheckpoint) {
		return err
	}
	if state != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  status=%s  resumes=%d\n",
			projectID, state.Status, state.Metadata.ResumeCount)
	}
	for i, e := range entries {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s\n",
			marker, e.Timestamp.Format("2006-01-02 15:04:05"), e.StageName)
	}
	return nil
}
