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
	"github.com/marcus/hivemind/internal/dispatch"
	"github.com/marcus/hivemind/internal/logging"
	"github.com/marcus/hivemind/internal/sim"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run colony ticks",
	Long: `Run one or more ticks against the world file.

Each tick loads memory, reconciles tasks, spawns, runs every creep, cleans
up memory and saves. The simulated world then advances and is written back
to disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("ticks")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := initLogging(cfg, verboseFlag(cmd)); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}

		st, database, err := openState(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		w, err := loadWorld(cfg)
		if err != nil {
			return err
		}

		d := dispatch.New(st,
			dispatch.WithConfig(dispatch.ConfigFrom(cfg)),
			dispatch.WithLogger(logging.Component("dispatch")),
		)

		runErr := runTicks(cmd.Context(), d, w, n, os.Stdout, asJSON)
		if err := w.Save(cfg.ExpandedWorldPath()); err != nil {
			return fmt.Errorf("saving world: %w", err)
		}
		return runErr
	},
}

func init() {
	tickCmd.Flags().IntP("ticks", "n", 1, "Number of ticks to run")
	tickCmd.Flags().Bool("json", false, "Print each tick report as JSON")
	rootCmd.AddCommand(tickCmd)
}

// runTicks runs n ticks, advancing the world after each one.
func runTicks(ctx context.Context, d *dispatch.Dispatcher, w *sim.World, n int, out io.Writer, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if n < 1 {
		return fmt.Errorf("ticks must be at least 1, got %d", n)
	}

	enc := json.NewEncoder(out)
	for i := 0; i < n; i++ {
		report, err := d.Run(ctx, w)
		if err != nil {
			return fmt.Errorf("tick %d: %w", w.Time(), err)
		}
		if asJSON {
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(out, summarizeReport(report))
		}
		w.Advance()
	}
	return nil
}

// summarizeReport renders a report as one line.
func summarizeReport(r *dispatch.Report) string {
	working := 0
	for _, c := range r.Creeps {
		if !c.Idle() {
			working++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "tick %d: %d creeps (%d working), %d tasks", r.Tick, len(r.Creeps), working, r.Tasks)
	if len(r.Added) > 0 || len(r.Evicted) > 0 {
		fmt.Fprintf(&b, " (+%d -%d)", len(r.Added), len(r.Evicted))
	}
	if r.Skipped > 0 {
		fmt.Fprintf(&b, ", %d malformed dropped", r.Skipped)
	}
	if name := r.Spawned(); name != "" {
		fmt.Fprintf(&b, ", spawned %s", name)
	} else if r.Spawn != nil {
		fmt.Fprintf(&b, ", spawn %s", r.Spawn.Result)
	}
	if len(r.Removed) > 0 {
		fmt.Fprintf(&b, ", forgot %s", strings.Join(r.Removed, " "))
	}
	return b.String()
}
