package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/hivemind/internal/config"
	"github.com/marcus/hivemind/internal/snapshot"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Export or import colony memory",
	Long: `Move colony memory (tasks, creep memory and the last tick) between
databases as a compressed snapshot file.`,
}

var memoryExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write memory to a snapshot file",
	Args:  cobra.ExactArgs(1),
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

		data := st.Snapshot()
		if err := snapshot.ExportFile(args[0], data); err != nil {
			return fmt.Errorf("exporting memory: %w", err)
		}
		fmt.Printf("exported tick %d: %d tasks, %d creeps -> %s\n", data.Tick, len(data.Tasks), len(data.Creeps), args[0])
		return nil
	},
}

var memoryImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace memory with a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		header, data, err := snapshot.ImportFile(args[0])
		if err != nil {
			return fmt.Errorf("importing memory: %w", err)
		}

		st, database, err := openState(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		st.Restore(data)
		if err := st.Save(context.Background()); err != nil {
			return fmt.Errorf("saving memory: %w", err)
		}
		fmt.Printf("imported tick %d: %d tasks, %d creeps (exported %s)\n",
			header.Tick, header.Tasks, header.Creeps, header.ExportedAt.Format("2006-01-02 15:04"))
		return nil
	},
}

func init() {
	memoryCmd.AddCommand(memoryExportCmd)
	memoryCmd.AddCommand(memoryImportCmd)
	rootCmd.AddCommand(memoryCmd)
}
