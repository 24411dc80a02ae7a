package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/marcus/hivemind/internal/config"
	"github.com/marcus/hivemind/internal/db"
	"github.com/marcus/hivemind/internal/logging"
	"github.com/marcus/hivemind/internal/state"
	"github.com/marcus/hivemind/internal/tasks"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show colony memory and tick history",
	Long: `Display the last processed tick, the task list, creep memory and the
most recent tick summaries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		last, _ := cmd.Flags().GetInt("last")
		plain, _ := cmd.Flags().GetBool("plain")

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		st, database, err := openState(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		history, err := st.TickHistory(context.Background(), last)
		if err != nil {
			return err
		}
		info, err := database.Info(context.Background())
		if err != nil {
			return err
		}

		running, pid := isDaemonRunning()
		fmt.Print(renderStatus(statusView{
			State:   st,
			History: history,
			Storage: &info,
			Daemon:  running,
			PID:     pid,
		}, plain))
		return nil
	},
}

func init() {
	statusCmd.Flags().IntP("last", "n", 5, "Show last N ticks")
	statusCmd.Flags().Bool("plain", false, "Disable styling")
	rootCmd.AddCommand(statusCmd)
}

type statusView struct {
	State   *state.State
	History []state.TickRecord
	Storage *db.Info
	Daemon  bool
	PID     int
}

type statusStyles struct {
	Title   lipgloss.Style
	Section lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Warn    lipgloss.Style
	OK      lipgloss.Style
}

func newStatusStyles(plain bool) statusStyles {
	if plain {
		s := lipgloss.NewStyle()
		return statusStyles{s, s, s, s, s, s, s}
	}
	return statusStyles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")),
		Section: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Value:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		OK:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
	}
}

func renderStatus(v statusView, plain bool) string {
	styles := newStatusStyles(plain)
	var b strings.Builder

	b.WriteString(styles.Title.Render("Hivemind Status"))
	b.WriteString("\n\n")

	label := func(name string) string {
		return styles.Label.Render(fmt.Sprintf("  %-10s", name+":"))
	}

	b.WriteString(label("Daemon"))
	if v.Daemon {
		b.WriteString(styles.OK.Render(fmt.Sprintf("running (pid %d)", v.PID)))
	} else {
		b.WriteString(styles.Muted.Render("stopped"))
	}
	b.WriteString("\n")

	b.WriteString(label("Tick"))
	b.WriteString(styles.Value.Render(fmt.Sprintf("%d", v.State.Tick())))
	b.WriteString("\n")

	store := tasks.NewStore(v.State).WithLogger(logging.Nop())
	entries, malformed := store.Scan()
	counts := make(map[tasks.Kind]int)
	for _, e := range entries {
		counts[e.Task.Kind]++
	}
	var parts []string
	for _, k := range tasks.Kinds {
		parts = append(parts, fmt.Sprintf("%s %d", k, counts[k]))
	}
	b.WriteString(label("Tasks"))
	b.WriteString(styles.Value.Render(strings.Join(parts, ", ")))
	if malformed > 0 {
		b.WriteString(styles.Warn.Render(fmt.Sprintf("  (%d malformed)", malformed)))
	}
	b.WriteString("\n")

	names := v.State.CreepNames()
	working := 0
	for _, name := range names {
		if mem, _ := v.State.Creep(name); mem.Working {
			working++
		}
	}
	b.WriteString(label("Creeps"))
	b.WriteString(styles.Value.Render(fmt.Sprintf("%d in memory, %d working", len(names), working)))
	b.WriteString("\n")

	if v.Storage != nil {
		b.WriteString(label("Storage"))
		b.WriteString(styles.Value.Render(fmt.Sprintf("%s (schema v%d, %s, %d history rows)",
			v.Storage.Path, v.Storage.SchemaVersion, formatBytes(v.Storage.SizeBytes), v.Storage.HistoryRows)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(styles.Section.Render("Recent ticks"))
	b.WriteString("\n")
	if len(v.History) == 0 {
		b.WriteString(styles.Muted.Render("  No tick history."))
		b.WriteString("\n")
		return b.String()
	}
	for _, rec := range v.History {
		b.WriteString(formatTickRecord(rec))
		b.WriteString("\n")
	}
	return b.String()
}

func formatTickRecord(rec state.TickRecord) string {
	line := fmt.Sprintf("  [%s] tick %d  %d creeps  %d tasks (+%d -%d)  %s",
		rec.StartedAt.Format("2006-01-02 15:04:05"), rec.Tick, rec.Creeps, rec.Tasks, rec.Added, rec.Evicted,
		formatDuration(time.Duration(rec.Duration)*time.Millisecond))
	if rec.Skipped > 0 {
		line += fmt.Sprintf("  %d malformed", rec.Skipped)
	}
	if rec.Spawned != "" {
		line += "  spawned " + rec.Spawned
	}
	if rec.Removed != "" {
		line += "  forgot " + rec.Removed
	}
	return line
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func formatDuration(d time.Duration) string {
	if d >= time.Minute {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d >= time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}
