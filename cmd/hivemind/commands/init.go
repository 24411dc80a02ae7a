package commands

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/hivemind/internal/config"
)

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create configuration file",
	Long: `Initialize a new hivemind configuration file.

By default, creates hivemind.yaml in the current directory.
Use --global to create a global config at ~/.config/hivemind/config.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().Bool("global", false, "Create global config instead of project config")
	initCmd.Flags().BoolP("force", "f", false, "Overwrite existing config without prompting")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	global, _ := cmd.Flags().GetBool("global")
	force, _ := cmd.Flags().GetBool("force")

	var configPath string
	var configType string

	if global {
		configPath = config.GlobalConfigPath()
		configType = "global"
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		configPath = filepath.Join(cwd, config.ProjectConfigName)
		configType = "project"
	}

	if _, err := os.Stat(configPath); err == nil && !force {
		fmt.Printf("%sConfig already exists:%s %s\n", colorYellow, colorReset, configPath)
		fmt.Print("Overwrite? [y/N]: ")
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(configPath, []byte(generateDefaultConfig()), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("\n%s%sCreated %s config:%s %s\n\n", colorBold, colorGreen, configType, colorReset, configPath)
	fmt.Printf("%sNext steps:%s\n", colorCyan, colorReset)
	fmt.Println("  1. Adjust the spawn name and population cap under 'colony:'")
	fmt.Println("  2. Run 'hivemind world generate' to create a starter room")
	fmt.Println("  3. Run 'hivemind tick -n 10' to watch the first workers hatch")
	fmt.Println("  4. Run 'hivemind daemon start' to keep the colony ticking")
	fmt.Println()

	return nil
}

// generateDefaultConfig creates the default config YAML with helpful comments.
func generateDefaultConfig() string {
	return `# Hivemind Configuration
#
# A global config lives at ~/.config/hivemind/config.yaml; a hivemind.yaml
# in the working directory overrides it. HIVEMIND_* environment variables
# override both (e.g. HIVEMIND_COLONY_SPAWN=Spawn2).

# Colony defaults
colony:
  spawn: Spawn1                  # Spawn new workers come from; idle workers rally here
  max_creeps: 2                  # Population cap
  role: worker                   # Role written into new creep memory
  body: [work, carry, move]      # Body of new workers
  name_prefix: Creep             # Names are prefix + tick

# Task generation
tasks:
  priorities:                    # Lower runs first
    harvest: 1
    fill_container: 2
    upgrade: 3
  evict_stale: true              # Drop tasks whose target has disappeared

# Daemon schedule
# Choose either cron OR interval (not both). Empty means every second.
schedule:
  interval: 1s
  # cron: "* * * * *"
  # window:                      # Optional: only tick between these times
  #   start: "08:00"
  #   end: "23:00"
  #   timezone: "Europe/Berlin"

# Simulated world
world:
  path: ~/.local/share/hivemind/world.yaml
  generate: true                 # Create a room when the file is missing
  seed: 1
  room: W1N1

# Memory database
storage:
  db_path: ~/.local/share/hivemind/hivemind.db

# Websocket stream for 'hivemind watch' (empty disables it)
observer:
  addr: "127.0.0.1:7420"

# Logging configuration
logging:
  level: info                    # debug | info | warn | error
  path: ~/.local/share/hivemind/logs
  format: json                   # json | text
`
}
