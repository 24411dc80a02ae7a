package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/hivemind/internal/config"
	"github.com/marcus/hivemind/internal/dispatch"
	"github.com/marcus/hivemind/internal/logging"
	"github.com/marcus/hivemind/internal/observer"
	"github.com/marcus/hivemind/internal/scheduler"
	"github.com/marcus/hivemind/internal/sim"
)

const (
	pidFileName = "hivemind.pid"

	// defaultTickInterval is used when no schedule is configured.
	defaultTickInterval = "1s"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage background daemon",
	Long:  `Start, stop, or check status of the hivemind background daemon.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start background daemon",
	Long: `Start the hivemind daemon as a background process.

The daemon runs ticks on the configured schedule (cron or interval, one
second by default) within the optional time window. When observer.addr is
set it also streams tick reports over a websocket for 'hivemind watch'.`,
	RunE: runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop background daemon",
	Long:  `Stop the running hivemind daemon by sending SIGTERM.`,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	Long:  `Check if the hivemind daemon is running.`,
	RunE:  runDaemonStatus,
}

var daemonForegroundFlag bool

func init() {
	daemonStartCmd.Flags().BoolVarP(&daemonForegroundFlag, "foreground", "f", false, "Run in foreground (don't daemonize)")
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

// pidFilePath returns the path to the PID file.
func pidFilePath() string {
	return filepath.Join(config.DefaultDataDir(), pidFileName)
}

// writePidFile writes the current process PID to the PID file.
func writePidFile() error {
	if err := os.MkdirAll(filepath.Dir(pidFilePath()), 0755); err != nil {
		return fmt.Errorf("creating pid dir: %w", err)
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(os.Getpid())), 0644)
}

// readPidFile reads the PID from the PID file.
func readPidFile() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePidFile() error {
	return os.Remove(pidFilePath())
}

// isProcessRunning checks if a process with the given PID is running.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; send signal 0 to check if alive
	return process.Signal(syscall.Signal(0)) == nil
}

// isDaemonRunning checks if the daemon is currently running.
func isDaemonRunning() (bool, int) {
	pid, err := readPidFile()
	if err != nil {
		return false, 0
	}
	return isProcessRunning(pid), pid
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	if running, pid := isDaemonRunning(); running {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if daemonForegroundFlag {
		return runDaemonLoop(cfg, verboseFlag(cmd))
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("getting executable: %w", err)
	}

	child := exec.Command(executable, "daemon", "start", "--foreground")
	child.Stdout = nil
	child.Stderr = nil
	child.Stdin = nil
	// Detach from parent process group
	child.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := child.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	fmt.Printf("daemon started (pid %d)\n", child.Process.Pid)
	return nil
}

// daemonSchedule returns the configured schedule, falling back to a fixed
// interval when neither cron nor interval is set.
func daemonSchedule(cfg *config.Config) config.ScheduleConfig {
	sc := cfg.Schedule
	if sc.Cron == "" && sc.Interval == "" {
		sc.Interval = defaultTickInterval
	}
	return sc
}

// colony ties a dispatcher to the world file it drives.
type colony struct {
	mu        sync.Mutex
	dispatch  *dispatch.Dispatcher
	world     *sim.World
	worldPath string
	log       *logging.Logger
}

// step runs one tick, advances the world and saves it.
func (c *colony) step(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	report, err := c.dispatch.Run(ctx, c.world)
	if err != nil {
		return err
	}
	c.log.Debug(summarizeReport(report))

	c.world.Advance()
	if err := c.world.Save(c.worldPath); err != nil {
		return fmt.Errorf("saving world: %w", err)
	}
	return nil
}

func runDaemonLoop(cfg *config.Config, verbose bool) error {
	if err := initLogging(cfg, verbose); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log := logging.Component("daemon")

	if err := writePidFile(); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() { _ = removePidFile() }()

	log.Info("daemon starting")

	st, database, err := openState(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	w, err := loadWorld(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received signal %v, shutting down", sig)
		cancel()
	}()

	opts := []dispatch.Option{
		dispatch.WithConfig(dispatch.ConfigFrom(cfg)),
		dispatch.WithLogger(logging.Component("dispatch")),
	}

	var observerDone chan error
	if cfg.Observer.Addr != "" {
		hub := observer.NewHub()
		opts = append(opts, dispatch.WithEventHandler(hub.EventHandler()))
		observerDone = make(chan error, 1)
		go func() { observerDone <- hub.Serve(ctx, cfg.Observer.Addr) }()
	}

	c := &colony{
		dispatch:  dispatch.New(st, opts...),
		world:     w,
		worldPath: cfg.ExpandedWorldPath(),
		log:       log,
	}

	sc := daemonSchedule(cfg)
	sched, err := scheduler.NewFromConfig(&sc)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.AddJob(c.step)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	log.InfoCtx("daemon running", map[string]any{
		"next_run": sched.NextRun().Format(time.RFC3339),
		"observer": cfg.Observer.Addr,
	})

	select {
	case <-ctx.Done():
	case err := <-observerDone:
		if err != nil {
			log.Errorf("observer stopped: %v", err)
		}
		cancel()
	}

	if err := sched.Stop(); err != nil && err != scheduler.ErrNotRunning {
		log.Errorf("stopping scheduler: %v", err)
	}

	log.Info("daemon stopped")
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	running, pid := isDaemonRunning()
	if !running {
		fmt.Println("daemon not running")
		_ = removePidFile()
		return nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessRunning(pid) {
			fmt.Printf("daemon stopped (pid %d)\n", pid)
			return nil
		}
	}
	return fmt.Errorf("daemon (pid %d) did not stop within 5s", pid)
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	running, pid := isDaemonRunning()
	if !running {
		fmt.Println("daemon: stopped")
		return nil
	}

	fmt.Printf("daemon: running (pid %d)\n", pid)

	cfg, err := config.Load()
	if err != nil {
		return nil
	}
	sc := daemonSchedule(cfg)
	switch {
	case sc.Cron != "":
		fmt.Printf("schedule: cron %q\n", sc.Cron)
	default:
		fmt.Printf("schedule: every %s\n", sc.Interval)
	}
	if cfg.Observer.Addr != "" {
		fmt.Printf("observer: ws://%s/ws\n", cfg.Observer.Addr)
	}
	return nil
}
