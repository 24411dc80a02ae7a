package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcus/hivemind/internal/config"
	"github.com/marcus/hivemind/internal/sim"
)

var worldCmd = &cobra.Command{
	Use:   "world",
	Short: "Create or inspect the simulated world",
}

var worldGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a starter room",
	Long: `Generate a starter room with a spawn, sources, a container and a
controller. The layout is derived from the seed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		seed := cfg.World.Seed
		if cmd.Flags().Changed("seed") {
			seed, _ = cmd.Flags().GetInt64("seed")
		}
		if room, _ := cmd.Flags().GetString("room"); room != "" {
			cfg.World.Room = room
		}

		path := cfg.ExpandedWorldPath()
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("world file %s exists (use --force to overwrite)", path)
		}

		w := generateWorld(cfg, seed)
		if err := w.Save(path); err != nil {
			return fmt.Errorf("saving world: %w", err)
		}
		fmt.Printf("generated room %s (seed %d) -> %s\n", cfg.World.Room, seed, path)
		printWorld(os.Stdout, w)
		return nil
	},
}

var worldShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show rooms, sources and structures",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		w, err := sim.Load(cfg.ExpandedWorldPath())
		if err != nil {
			return err
		}
		printWorld(os.Stdout, w)
		return nil
	},
}

func init() {
	worldGenerateCmd.Flags().Int64("seed", 0, "Noise seed (default from config)")
	worldGenerateCmd.Flags().String("room", "", "Room name (default from config)")
	worldGenerateCmd.Flags().BoolP("force", "f", false, "Overwrite an existing world file")
	worldCmd.AddCommand(worldGenerateCmd)
	worldCmd.AddCommand(worldShowCmd)
	rootCmd.AddCommand(worldCmd)
}

func printWorld(out io.Writer, w *sim.World) {
	fmt.Fprintf(out, "tick %d, %d creeps\n", w.Time(), len(w.Creeps()))
	for _, name := range w.RoomNames() {
		room, _ := w.SimRoom(name)
		fmt.Fprintf(out, "\nroom %s\n", name)
		for _, s := range room.Sources() {
			fmt.Fprintf(out, "  source     %-22s %-12s %d/%d\n", s.ID(), s.Pos(), s.Energy(), s.EnergyCapacity())
		}
		for _, s := range room.Structures() {
			st := s.Store()
			fmt.Fprintf(out, "  %-10s %-22s %-12s %d/%d\n", s.StructureType(), s.ID(), s.Pos(), st.Used, st.Capacity)
		}
		if ctl := room.Controller(); ctl != nil {
			fmt.Fprintf(out, "  controller %-22s %-12s level %d\n", ctl.ID(), ctl.Pos(), ctl.Level())
		}
	}
}
