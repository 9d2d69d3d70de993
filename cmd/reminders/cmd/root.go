package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Course-evaluation reminder scheduler",
	Long: `reminders e-mails students who have not yet answered a course evaluation,
one reminder job per (cycle, class), until the class response rate reaches the
configured threshold, the cycle ends or each student hits the reminder cap.

Common workflows:

  Run the scheduler, operator bot and ops HTTP endpoint:
    reminders serve

  Apply database migrations:
    reminders migrate up

  Preview a batch without sending anything:
    reminders run --dry-run

  Force a single job, ignoring its next run time:
    reminders run --force-job 42

Configuration is read from the environment (and a .env file when present).
DATABASE_URL is required; every other setting has a default.`,
	SilenceUsage: true,
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
