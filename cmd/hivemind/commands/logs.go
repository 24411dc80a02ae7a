package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/marcus/hivemind/internal/config"
	"github.com/marcus/hivemind/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View logs",
	Long: `View hivemind logs.

Displays recent log entries. Use --follow to stream logs in real-time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		follow, _ := cmd.Flags().GetBool("follow")
		export, _ := cmd.Flags().GetString("export")

		logDir := filepath.Join(config.DefaultDataDir(), "logs")
		if cfg, err := config.Load(); err == nil && cfg.Logging.Path != "" {
			logDir = cfg.ExpandedLogPath()
		}

		if export != "" {
			return exportLogs(logDir, export)
		}
		if follow {
			return followLogs(logDir, tail)
		}
		return showLogs(os.Stdout, logDir, tail)
	},
}

func init() {
	logsCmd.Flags().IntP("tail", "n", 50, "Number of log lines to show")
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().StringP("export", "e", "", "Export logs to file")
	rootCmd.AddCommand(logsCmd)
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Level     string    `json:"level"`
	Time      time.Time `json:"time"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"`
	Tick      *int64    `json:"tick,omitempty"`
	Creep     string    `json:"creep,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func getLogFiles(logDir string) ([]string, error) {
	files, err := logging.ListLogFiles(logDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading log dir: %w", err)
	}
	return files, nil
}

func showLogs(out io.Writer, logDir string, n int) error {
	files, err := getLogFiles(logDir)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		fmt.Fprintln(out, "No log files found.")
		return nil
	}

	for _, line := range readLastLines(files, n) {
		fmt.Fprintln(out, formatLogLine(line))
	}
	return nil
}

func followLogs(logDir string, initialLines int) error {
	files, err := getLogFiles(logDir)
	if err != nil {
		return err
	}

	if len(files) > 0 && initialLines > 0 {
		for _, line := range readLastLines(files, initialLines) {
			fmt.Println(formatLogLine(line))
		}
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(logDir); err != nil {
		return fmt.Errorf("watching log dir: %w", err)
	}

	var (
		currentFile string
		file        *os.File
		reader      *bufio.Reader
	)
	open := func(path string, seekEnd bool) {
		if file != nil {
			_ = file.Close()
			file, reader = nil, nil
		}
		currentFile = path
		f, err := os.Open(path)
		if err != nil {
			return
		}
		if seekEnd {
			_, _ = f.Seek(0, io.SeekEnd)
		}
		file, reader = f, bufio.NewReader(f)
	}
	defer func() {
		if file != nil {
			_ = file.Close()
		}
	}()

	open(logging.CurrentLogFile(logDir), true)

	fmt.Println("--- Following logs (Ctrl+C to exit) ---")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// Date rollover starts a new file; read it from the top.
			if today := logging.CurrentLogFile(logDir); today != currentFile || reader == nil {
				open(today, false)
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && reader != nil {
				for {
					line, err := reader.ReadString('\n')
					if err != nil {
						break
					}
					fmt.Println(formatLogLine(strings.TrimSuffix(line, "\n")))
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watcher error: %v\n", err)
		}
	}
}

func exportLogs(logDir, outFile string) error {
	files, err := getLogFiles(logDir)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no log files found")
	}

	out, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	totalLines := 0

	// Oldest first
	for i := len(files) - 1; i >= 0; i-- {
		for _, line := range readFileLines(files[i]) {
			if _, err := out.WriteString(line + "\n"); err != nil {
				return fmt.Errorf("writing %s: %w", outFile, err)
			}
			totalLines++
		}
	}

	fmt.Printf("Exported %d log lines to %s\n", totalLines, outFile)
	return nil
}

// readLastLines returns the last n lines across files, which are ordered
// newest first.
func readLastLines(files []string, n int) []string {
	var lines []string

	for _, file := range files {
		if len(lines) >= n {
			break
		}

		fileLines := readFileLines(file)
		remaining := n - len(lines)

		if len(fileLines) <= remaining {
			lines = append(fileLines, lines...)
		} else {
			lines = append(fileLines[len(fileLines)-remaining:], lines...)
		}
	}

	return lines
}

func readFileLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	return lines
}

// formatLogLine renders a JSON log line for the terminal. Lines that are not
// JSON are returned unchanged.
func formatLogLine(line string) string {
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.Level == "" {
		return line
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format("15:04:05"))
	b.WriteString(" ")
	b.WriteString(formatLogLevel(entry.Level))
	if entry.Component != "" {
		fmt.Fprintf(&b, " [%s]", entry.Component)
	}
	if entry.Tick != nil {
		fmt.Fprintf(&b, " t=%d", *entry.Tick)
	}
	if entry.Creep != "" {
		fmt.Fprintf(&b, " %s:", entry.Creep)
	}
	b.WriteString(" ")
	b.WriteString(entry.Message)
	if entry.Error != "" {
		fmt.Fprintf(&b, " error=%s", entry.Error)
	}
	return b.String()
}

func formatLogLevel(level string) string {
	switch level {
	case "debug":
		return "DBG"
	case "info":
		return "INF"
	case "warn":
		return "WRN"
	case "error":
		return "ERR"
	default:
		if len(level) > 3 {
			level = level[:3]
		}
		return strings.ToUpper(level)
	}
}
