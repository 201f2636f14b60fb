package cmd

import (
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <project-id>",
	Short: "Resume an interrupted or failed run",
	Long: `Resume a pipeline run from its latest checkpoint. Stages that already
completed are skipped; execution continues with the first stage that has no
recorded output.

The project ID is printed when a run fails, and is also visible via
"planforge checkpoints".`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

var resumeOutput string

func init() {
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().StringVarP(&resumeOutput, "output", "o", "", "write the plan document to this file instead of stdout")
}

func runResume(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	c, err := rt.coordinator(nil, nil)
	if err != nil {
		return err
	}

	res, err := c.Resume(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return reportResult(cmd, res, resumeOutput)
}
