package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/workcrew/internal/cmd/styles"
	"github.com/Iron-Ham/workcrew/internal/config"
	"github.com/Iron-Ham/workcrew/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View run logs",
	Long: `View and filter the workcrew log.

Examples:
  # Show the last 50 entries
  workcrew logs

  # Show every entry of one execution
  workcrew logs -e 6f1c... -n 0

  # Follow logs in real-time
  workcrew logs -f

  # Filter by log level
  workcrew logs --level warn

  # Show logs from the last hour
  workcrew logs --since 1h

  # Search for specific patterns
  workcrew logs --grep "fallback|denied"`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsExecutionID string
	logsTeamID      string
	logsWorkerID    string
	logsTail        int
	logsFollow      bool
	logsLevel       string
	logsSince       string
	logsGrep        string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVarP(&logsExecutionID, "execution", "e", "", "Only entries of this execution")
	logsCmd.Flags().StringVar(&logsTeamID, "team", "", "Only entries of this team")
	logsCmd.Flags().StringVar(&logsWorkerID, "worker", "", "Only entries of this worker")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
}

// levelStyle returns the style for a log level
func levelStyle(level string) lipgloss.Style {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return styles.Muted
	case logging.LevelInfo:
		return lipgloss.NewStyle().Foreground(styles.BlueColor)
	case logging.LevelWarn:
		return styles.Warning
	case logging.LevelError:
		return styles.Error
	default:
		return lipgloss.NewStyle()
	}
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(entry logging.Entry) string {
	var sb strings.Builder

	sb.WriteString(styles.Muted.Render("[" + entry.Timestamp.Local().Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	sb.WriteString(levelStyle(entry.Level).Render("[" + strings.ToUpper(entry.Level) + "]"))
	sb.WriteString(" ")
	sb.WriteString(entry.Message)

	// Context fields
	for _, kv := range [][2]string{
		{"execution_id", entry.ExecutionID},
		{"team_id", entry.TeamID},
		{"worker_id", entry.WorkerID},
	} {
		if kv[1] != "" {
			sb.WriteString(" ")
			sb.WriteString(styles.Primary.Render(kv[0] + "=" + kv[1]))
		}
	}

	// Extra fields
	keys := make([]string, 0, len(entry.Attrs))
	for k := range entry.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(" ")
		sb.WriteString(styles.Primary.Render(k + "="))
		sb.WriteString(fmt.Sprintf("%v", entry.Attrs[k]))
	}

	return sb.String()
}

// logQuery is the parsed filter options of the logs command.
type logQuery struct {
	filter logging.Filter
	grep   *regexp.Regexp
}

func (q logQuery) matches(entry logging.Entry) bool {
	if !q.filter.Matches(entry) {
		return false
	}
	// Grep filter - search in message and extra fields
	return q.grep == nil || q.grep.MatchString(entry.Format())
}

func parseLogQuery() (logQuery, error) {
	q := logQuery{filter: logging.Filter{
		ExecutionID: logsExecutionID,
		TeamID:      logsTeamID,
		WorkerID:    logsWorkerID,
	}}
	if logsLevel != "" {
		q.filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		duration, err := time.ParseDuration(logsSince)
		if err != nil {
			return q, fmt.Errorf("invalid duration format: %w", err)
		}
		q.filter.Since = time.Now().Add(-duration)
	}
	if logsGrep != "" {
		re, err := regexp.Compile(logsGrep)
		if err != nil {
			return q, fmt.Errorf("invalid grep pattern: %w", err)
		}
		q.grep = re
	}
	return q, nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	dir := logDir(cfg)

	q, err := parseLogQuery()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	logPath := filepath.Join(dir, logging.LogFileName)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "No logs found.")
		fmt.Fprintln(out, "Logs are stored at:", logPath)
		return nil
	}

	if logsFollow {
		return followLogs(cmd, out, logPath, q)
	}
	return displayLogs(out, dir, logsTail, q)
}

// displayLogs reads the log file and displays filtered entries
func displayLogs(out io.Writer, dir string, tail int, q logQuery) error {
	entries, err := logging.ReadEntries(dir)
	if err != nil {
		return err
	}

	var matched []logging.Entry
	for _, e := range entries {
		if q.matches(e) {
			matched = append(matched, e)
		}
	}

	// Apply tail limit
	if tail > 0 && len(matched) > tail {
		matched = matched[len(matched)-tail:]
	}

	for _, e := range matched {
		fmt.Fprintln(out, formatLogEntry(e))
	}
	if len(matched) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
	}
	return nil
}

// followLogs implements tail -f behavior for the log file
func followLogs(cmd *cobra.Command, out io.Writer, logPath string, q logQuery) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	// Seek to end of file
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(out, "Following logs... (Ctrl+C to stop)\n\n")

	ctx := cmd.Context()
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// No new data, wait briefly and try again
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(100 * time.Millisecond):
				}
				continue
			}
			return fmt.Errorf("error reading log file: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		entry, err := logging.ParseEntry(line)
		if err != nil {
			// If we can't parse as JSON, display raw line
			fmt.Fprintln(out, line)
			continue
		}
		if q.matches(entry) {
			fmt.Fprintln(out, formatLogEntry(entry))
		}
	}
}
