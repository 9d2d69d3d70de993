package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"evaluation_reminders/internal/domain/reminder"

	"github.com/spf13/cobra"
)

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, len(args))
	for i, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids[i] = id
	}
	return ids, nil
}

var attachCmd = &cobra.Command{
	Use:   "attach <cycle_id> <class_id>",
	Short: "Attach a class to a cycle and ensure its reminder job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		job, err := a.admin.AttachClass(cmd.Context(), ids[0], ids[1])
		if err != nil {
			return err
		}
		cmd.Printf("Job %d for cycle %d class %d is %s\n", job.ID, job.CycleID, job.ClassID, job.Status)
		return nil
	},
}

var detachCmd = &cobra.Command{
	Use:   "detach <cycle_id> <class_id>",
	Short: "Detach a class from a cycle and pause its reminder job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.admin.DetachClass(cmd.Context(), ids[0], ids[1]); err != nil {
			return err
		}
		cmd.Printf("Class %d detached from cycle %d\n", ids[1], ids[0])
		return nil
	},
}

// jobActionCmd builds pause/resume/retry, which share the same shape.
func jobActionCmd(use, short, done string, action func(a *application, cmd *cobra.Command, id int64) (*reminder.Job, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <job_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := action(a, cmd, ids[0])
			if err != nil {
				return err
			}
			cmd.Printf("Job %d %s (status %s)\n", job.ID, done, job.Status)
			return nil
		},
	}
}

var jobsCmd = &cobra.Command{
	Use:   "jobs [status...]",
	Short: "List reminder jobs, optionally filtered by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		statuses := make([]reminder.JobStatus, len(args))
		for i, s := range args {
			statuses[i] = reminder.JobStatus(strings.ToUpper(s))
		}
		jobs, err := a.admin.ListJobs(cmd.Context(), statuses...)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), jobs)
	},
}

func init() {
	rootCmd.AddCommand(attachCmd, detachCmd, jobsCmd)
	rootCmd.AddCommand(jobActionCmd("pause", "Pause a reminder job", "paused",
		func(a *application, cmd *cobra.Command, id int64) (*reminder.Job, error) {
			return a.admin.PauseJob(cmd.Context(), id)
		}))
	rootCmd.AddCommand(jobActionCmd("resume", "Resume a paused reminder job now", "resumed",
		func(a *application, cmd *cobra.Command, id int64) (*reminder.Job, error) {
			return a.admin.ResumeJob(cmd.Context(), id)
		}))
	rootCmd.AddCommand(jobActionCmd("retry", "Reschedule a failed reminder job now", "rescheduled",
		func(a *application, cmd *cobra.Command, id int64) (*reminder.Job, error) {
			return a.admin.RetryJob(cmd.Context(), id)
		}))
}
