package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marcus/hivemind/internal/config"
	"github.com/marcus/hivemind/internal/sim"
	"github.com/marcus/hivemind/internal/state"
)

var creepsCmd = &cobra.Command{
	Use:   "creeps",
	Short: "List creeps and their memory",
	Long: `List every creep in the world alongside its stored memory.

Creeps with memory but no body are listed too; the next tick forgets them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		st, database, err := openState(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		w, err := sim.Load(cfg.ExpandedWorldPath())
		if err != nil {
			return err
		}

		printCreeps(os.Stdout, w, st)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(creepsCmd)
}

func printCreeps(out io.Writer, w *sim.World, st *state.State) {
	creeps := w.Creeps()
	seen := make(map[string]bool, len(creeps))

	if len(creeps) == 0 && len(st.CreepNames()) == 0 {
		fmt.Fprintln(out, "No creeps.")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPOS\tENERGY\tTTL\tROLE\tWORKING")
	for _, c := range creeps {
		seen[c.Name()] = true
		role, working := "-", "-"
		if mem, ok := st.Creep(c.Name()); ok {
			role, working = mem.Role, fmt.Sprintf("%t", mem.Working)
		}
		ttl := "-"
		if sc, ok := w.Creep(c.Name()); ok {
			ttl = fmt.Sprintf("%d", sc.TicksToLive())
		}
		store := c.Store()
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			c.Name(), c.Pos(), store.Used, store.Capacity, ttl, role, working)
	}
	for _, name := range st.CreepNames() {
		if seen[name] {
			continue
		}
		mem, _ := st.Creep(name)
		fmt.Fprintf(tw, "%s\t(gone)\t-\t-\t%s\t%t\n", name, mem.Role, mem.Working)
	}
	_ = tw.Flush()
}
