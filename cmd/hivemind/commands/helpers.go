package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcus/hivemind/internal/config"
	"github.com/marcus/hivemind/internal/db"
	"github.com/marcus/hivemind/internal/logging"
	"github.com/marcus/hivemind/internal/sim"
	"github.com/marcus/hivemind/internal/state"
)

// initLogging sets up the global logger. verbose mirrors log lines to stderr.
func initLogging(cfg *config.Config, verbose bool) error {
	lc := logging.Config{
		Level:  cfg.Logging.Level,
		Path:   cfg.ExpandedLogPath(),
		Format: cfg.Logging.Format,
	}
	if verbose {
		lc.Console = os.Stderr
	}
	return logging.Init(lc)
}

func verboseFlag(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("verbose")
	return v
}

// openState opens the database and loads colony memory from it. The caller
// closes the returned database.
func openState(cfg *config.Config) (*state.State, *db.DB, error) {
	database, err := db.Open(cfg.ExpandedDBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("opening db: %w", err)
	}
	st, err := state.New(database)
	if err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("loading state: %w", err)
	}
	return st, database, nil
}

// loadWorld reads the world file, generating and saving a starter room when
// the file is missing and generation is enabled.
func loadWorld(cfg *config.Config) (*sim.World, error) {
	path := cfg.ExpandedWorldPath()
	if path == "" {
		return nil, errors.New("world.path is not set")
	}

	w, err := sim.Load(path)
	switch {
	case err == nil:
		return w, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	case !cfg.World.Generate:
		return nil, fmt.Errorf("world file %s not found (run 'hivemind world generate')", path)
	}

	w = generateWorld(cfg, cfg.World.Seed)
	if err := w.Save(path); err != nil {
		return nil, fmt.Errorf("saving generated world: %w", err)
	}
	logging.Component("world").Infof("generated room %s (seed %d) at %s", cfg.World.Room, cfg.World.Seed, path)
	return w, nil
}

func generateWorld(cfg *config.Config, seed int64) *sim.World {
	return sim.Generate(sim.GenConfig{
		Seed:      seed,
		Room:      cfg.World.Room,
		SpawnName: cfg.Colony.Spawn,
	})
}
