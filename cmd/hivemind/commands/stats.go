package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/hivemind/internal/config"
	"github.com/marcus/hivemind/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics",
	Long: `Display aggregate statistics over the recorded tick history.

Shows tick counts and rate, processing time, population and task churn.
Use --json for machine-readable output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		last, _ := cmd.Flags().GetInt("last")

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		st, database, err := openState(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		result, err := stats.New(st, last).Compute(context.Background())
		if err != nil {
			return fmt.Errorf("computing stats: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		renderStatsHuman(os.Stdout, result)
		return nil
	},
}

func init() {
	statsCmd.Flags().Bool("json", false, "Output as JSON")
	statsCmd.Flags().IntP("last", "n", 0, "Only use the last N ticks (0 = all retained)")
	rootCmd.AddCommand(statsCmd)
}

func renderStatsHuman(out io.Writer, r *stats.StatsResult) {
	if r.TotalTicks == 0 {
		fmt.Fprintln(out, "No tick history yet.")
		return
	}

	fmt.Fprintln(out, "Hivemind Stats")
	fmt.Fprintln(out, "==============")
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Ticks:      %d (%d..%d)", r.TotalTicks, r.FirstTick, r.LastTick)
	if r.TickRate > 0 {
		fmt.Fprintf(out, ", %.1f per minute", r.TickRate)
	}
	fmt.Fprintln(out)
	if r.FirstTickAt != nil && r.LastTickAt != nil {
		fmt.Fprintf(out, "Span:       %s to %s\n", r.FirstTickAt.Format("2006-01-02 15:04"), r.LastTickAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(out, "Tick time:  avg %s, max %s\n", r.AvgTickDuration, r.MaxTickDuration)
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Creeps:     avg %.1f, peak %d\n", r.AvgCreeps, r.PeakCreeps)
	fmt.Fprintf(out, "Spawned:    %d", len(r.Spawned))
	if len(r.Spawned) > 0 {
		fmt.Fprintf(out, " (%s)", strings.Join(r.Spawned, ", "))
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Forgotten:  %d\n", len(r.Forgotten))
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Tasks:      avg %.1f, +%d added, -%d evicted\n", r.AvgTasks, r.TasksAdded, r.TasksEvicted)
	if r.RecordsSkipped > 0 {
		fmt.Fprintf(out, "Malformed:  %d records dropped\n", r.RecordsSkipped)
	}
}
