package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dobrovols/vkconfig/pkg/telemetry"
)

// EnvLogLevel overrides the console level when no flag is given.
const EnvLogLevel = "VKCONFIG_LOG_LEVEL"

// Console formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ConsoleOptions configures a Console.
type ConsoleOptions struct {
	// Level is the minimum level: debug, info, warn or error.
	Level  string
	Format string
	// Home is shortened to ~ in logged paths.
	Home            string
	ReportTimestamp bool
}

// Console writes structured entries through charmbracelet/log. Values are
// sanitized before they are written.
type Console struct {
	logger *log.Logger
	home   string
}

var _ telemetry.StructuredLogger = (*Console)(nil)

// ParseLevel converts a level name, defaulting to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewConsole constructs a console logger writing to w.
func NewConsole(w io.Writer, opts ConsoleOptions) (*Console, error) {
	if w == nil {
		return nil, errors.New("console writer is required")
	}
	level := opts.Level
	if strings.TrimSpace(level) == "" {
		level = os.Getenv(EnvLogLevel)
	}

	var formatter log.Formatter
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", FormatText:
		formatter = log.TextFormatter
	case FormatJSON:
		formatter = log.JSONFormatter
	default:
		return nil, fmt.Errorf("unsupported log format %q", opts.Format)
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           ParseLevel(level),
		Formatter:       formatter,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: opts.ReportTimestamp,
	})
	return &Console{logger: logger, home: opts.Home}, nil
}

// Emit writes entry at the level matching its severity. An attached error
// raises the entry to error.
func (c *Console) Emit(entry telemetry.Entry) error {
	if c == nil {
		return errors.New("console is nil")
	}
	level := log.InfoLevel
	switch entry.Severity {
	case telemetry.SeverityWarn:
		level = log.WarnLevel
	case telemetry.SeverityError:
		level = log.ErrorLevel
	}
	if entry.Error != nil {
		level = log.ErrorLevel
	}

	keyvals := []any{"category", string(entry.Category)}
	if entry.Step != "" {
		keyvals = append(keyvals, "step", entry.Step)
	}
	if entry.Command != "" {
		keyvals = append(keyvals, "command", SanitizeCommand(strings.Fields(entry.Command)))
	}
	if entry.Output != "" {
		keyvals = append(keyvals, "output", SanitizeText(entry.Output))
	}
	keys := make([]string, 0, len(entry.Metadata))
	for k := range entry.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		keyvals = append(keyvals, k, ShortenHome(SanitizeText(entry.Metadata[k]), c.home))
	}
	if entry.Error != nil {
		keyvals = append(keyvals, "err", SanitizeText(entry.Error.Error()))
	}

	c.logger.Log(level, entry.Message, keyvals...)
	return nil
}

// Tee fans entries out to several loggers. The first error is returned after
// every logger has been called.
type Tee []telemetry.StructuredLogger

func (t Tee) Emit(entry telemetry.Entry) error {
	var first error
	for _, l := range t {
		if l == nil {
			continue
		}
		if err := l.Emit(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}
