package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/planforge/internal/pipeline"
	"github.com/Iron-Ham/planforge/internal/plan"
)

var planCmd = &cobra.Command{
	Use:   "plan <project.yaml>",
	Short: "Run the planning pipeline for a project",
	Long: `Run the full planning pipeline for the project described in the given
YAML file: analysis, task breakdown, prioritization, assignment and the
compiled plan document.

When the project file declares tasks, those are scheduled as-is instead of
generating a breakdown. If a checkpoint already exists for the project, the
run continues from it.

Examples:
  # Plan a project and print the document
  planforge plan project.yaml

  # Write the document to a file
  planforge plan project.yaml -o plan.json`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

var planOutput string

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "write the plan document to this file instead of stdout")
}

func runPlan(cmd *cobra.Command, args []string) error {
	input, err := plan.LoadInput(args[0])
	if err != nil {
		return err
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	c, err := rt.coordinator(input.Tasks, input.Subtasks)
	if err != nil {
		return err
	}

	res, err := c.Run(cmd.Context(), input.Project)
	if err != nil {
		return err
	}
	return reportResult(cmd, res, planOutput)
}

// reportResult prints the outcome of a run or resume and writes the compiled
// document when the run succeeded.
func reportResult(cmd *cobra.Command, res *pipeline.Result, output string) error {
	if !res.Success {
		fmt.Fprintf(cmd.ErrOrStderr(), "pipeline failed at stage %q: %v\n", res.StageFailed, res.Err)
		if res.ErrorID != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "error id: %s (planforge errors --id %s)\n", res.ErrorID, res.ErrorID)
		}
		if res.Resumable {
			fmt.Fprintf(cmd.ErrOrStderr(), "resume with: planforge resume %s\n", res.ProjectID)
		}
		return fmt.Errorf("pipeline failed at stage %q", res.StageFailed)
	}

	if res.Plan == nil {
		return fmt.Errorf("run completed but produced no document")
	}
	data, err := json.MarshalIndent(res.Plan, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	if output != "" {
		if err := os.WriteFile(output, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "plan written to %s\n", output)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}

	printSummary(cmd, res.Plan)
	return nil
}

func printSummary(cmd *cobra.Command, doc *plan.Document) {
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "\n%s: %d tasks, %d subtasks\n", doc.ProjectName, len(doc.Tasks), len(doc.Subtasks))
	for _, w := range doc.WorkloadSummary {
		flag := ""
		if w.Overallocated {
			flag = " (overallocated)"
		} else if w.Underallocated {
			flag = " (underallocated)"
		}
		fmt.Fprintf(out, "  %-20s %5.1fh / %5.1fh  %5.1f%%%s\n",
			w.WorkerName, w.AssignedHours, w.EffectiveHours, w.Utilization, flag)
	}
}
