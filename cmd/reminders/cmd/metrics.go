package cmd

import (
	"database/sql"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

func formatAverage(f sql.NullFloat64) string {
	if !f.Valid {
		return "-"
	}
	return strconv.FormatFloat(f.Float64, 'f', 4, 64)
}

var metricsCmd = &cobra.Command{
	Use:   "metrics <professor_id>",
	Short: "Show a professor's response and evaluation metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		cycleID, _ := cmd.Flags().GetInt64("cycle")
		history, _ := cmd.Flags().GetBool("history")
		exclude, _ := cmd.Flags().GetInt64("exclude-cycle")

		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		professorID := ids[0]

		if history {
			h, err := a.metrics.ProfessorHistory(cmd.Context(), professorID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Professor %d: %d cycles, %d/%d evaluations answered, overall %s (%s)\n",
				h.ProfessorID, h.TotalCycles, h.RespondedEvaluations, h.TotalEvaluations,
				formatAverage(h.OverallAverage), h.Classification)
			for _, c := range h.Cycles {
				printMetrics(out, "  "+c.Cycle.Name, c.Metrics.TotalRespondents, c.Metrics.TotalEligible,
					c.Metrics.ResponseRate.String(), formatAverage(c.Metrics.CycleAverage), string(c.Metrics.Classification))
			}
			return nil
		}

		if cmd.Flags().Changed("exclude-cycle") {
			avg, err := a.metrics.HistoricalAverage(cmd.Context(), professorID, exclude)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Historical average %s (%s) over %d cycles, %d evaluations\n",
				formatAverage(avg.Average), avg.Classification, avg.TotalCycles, avg.TotalEvaluations)
			return nil
		}

		m, err := a.metrics.ProfessorMetrics(cmd.Context(), professorID, cycleID)
		if err != nil {
			return err
		}
		label := "all cycles"
		if cycleID != 0 {
			label = fmt.Sprintf("cycle %d", cycleID)
		}
		printMetrics(out, label, m.TotalRespondents, m.TotalEligible,
			m.ResponseRate.String(), formatAverage(m.CycleAverage), string(m.Classification))
		return nil
	},
}

func printMetrics(w io.Writer, label string, respondents, eligible int, rate, avg, class string) {
	fmt.Fprintf(w, "%s: %d/%d respondents (%s%%), average %s (%s)\n", label, respondents, eligible, rate, avg, class)
}

func init() {
	metricsCmd.Flags().Int64("cycle", 0, "Restrict to one cycle (default all cycles)")
	metricsCmd.Flags().Bool("history", false, "Show per-cycle history, newest first")
	metricsCmd.Flags().Int64("exclude-cycle", 0, "Show the historical average excluding this cycle")
	rootCmd.AddCommand(metricsCmd)
}
