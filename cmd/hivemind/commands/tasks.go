package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marcus/hivemind/internal/config"
	"github.com/marcus/hivemind/internal/logging"
	"github.com/marcus/hivemind/internal/tasks"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and edit the task list",
	Long:  `List, prioritize or clear the persisted task list.`,
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in stored order",
	RunE: func(cmd *cobra.Command, args []string) error {
		kindFlag, _ := cmd.Flags().GetString("kind")

		var filter tasks.Kind
		if kindFlag != "" {
			k, err := tasks.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			filter = k
		}

		return withStore(func(store *tasks.Store) (bool, error) {
			printTaskList(os.Stdout, store, filter)
			return false, nil
		})
	},
}

var tasksPrioritizeCmd = &cobra.Command{
	Use:   "prioritize",
	Short: "Sort tasks by priority and drop malformed records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *tasks.Store) (bool, error) {
			dropped, err := store.Prioritize()
			if err != nil {
				return false, err
			}
			fmt.Printf("prioritized %d tasks", len(store.List()))
			if dropped > 0 {
				fmt.Printf(", dropped %d malformed", dropped)
			}
			fmt.Println()
			return true, nil
		})
	},
}

var tasksClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every task",
	Long: `Remove every task. The next tick rebuilds the list from the room.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *tasks.Store) (bool, error) {
			entries, malformed := store.Scan()
			n := len(entries) + malformed
			store.Clear()
			fmt.Printf("cleared %d task records\n", n)
			return true, nil
		})
	},
}

func init() {
	tasksListCmd.Flags().String("kind", "", "Only show tasks of this kind (harvest, fill_container, upgrade)")
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksPrioritizeCmd)
	tasksCmd.AddCommand(tasksClearCmd)
	rootCmd.AddCommand(tasksCmd)
}

// withStore opens the persisted task list, runs fn and saves when fn reports
// a change.
func withStore(fn func(*tasks.Store) (bool, error)) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, database, err := openState(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	store := tasks.NewStore(st).WithLogger(logging.Nop())
	changed, err := fn(store)
	if err != nil || !changed {
		return err
	}
	return st.Save(context.Background())
}

func printTaskList(out io.Writer, store *tasks.Store, filter tasks.Kind) {
	entries, malformed := store.Scan()

	if len(entries) == 0 && malformed == 0 {
		fmt.Fprintln(out, "No tasks.")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTYPE\tPRIORITY\tTARGET\tLOCATION")
	shown := 0
	for _, e := range entries {
		if filter != 0 && e.Task.Kind != filter {
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", e.Index, e.Task.Kind, e.Task.Priority, e.Task.ID, e.Task.Location)
		shown++
	}
	_ = tw.Flush()

	fmt.Fprintf(out, "\n%d of %d tasks", shown, len(entries))
	if malformed > 0 {
		fmt.Fprintf(out, ", %d malformed records", malformed)
	}
	fmt.Fprintln(out)
}
