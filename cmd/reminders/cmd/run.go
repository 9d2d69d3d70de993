package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"evaluation_reminders/internal/app"

	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reminder batch over every due job",
	Long: `Run one reminder batch. Without flags every due job gets one pass.

--force-job processes only that job and ignores its next run time; a Failed
job is retried. --dry-run computes what would be sent without claiming jobs,
writing notifications or sending e-mail.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		forceJob, _ := cmd.Flags().GetInt64("force-job")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		if forceJob < 0 || batchSize < 0 {
			return fmt.Errorf("--force-job and --batch-size must not be negative")
		}

		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		summary, runErr := a.reminders.RunBatch(cmd.Context(), app.RunOptions{
			DryRun:     dryRun,
			ForceJobID: forceJob,
			BatchSize:  batchSize,
		})
		if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
			return err
		}
		return runErr
	},
}

var closingCmd = &cobra.Command{
	Use:   "closing-reminders",
	Short: "E-mail students of cycles that close soon and who have not answered",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		summary, runErr := a.closing.Run(cmd.Context(), dryRun)
		if summary != nil {
			if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
				return err
			}
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "Report what would be sent without writing or sending")
	runCmd.Flags().Int64("force-job", 0, "Process only this job, ignoring its next run time")
	runCmd.Flags().Int("batch-size", 0, "Recipients per chunk (default BATCH_CHUNK_SIZE)")
	closingCmd.Flags().Bool("dry-run", false, "Count recipients without sending or recording")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(closingCmd)
}
