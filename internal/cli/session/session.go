// Package session opens the configurator for one CLI invocation: it locates
// and loads the preferences, builds the loggers and saves everything back
// when the command finishes.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dobrovols/vkconfig/internal/cli/logging"
	"github.com/dobrovols/vkconfig/internal/config"
	"github.com/dobrovols/vkconfig/internal/platform"
	istate "github.com/dobrovols/vkconfig/internal/state"
	"github.com/dobrovols/vkconfig/internal/validation"
	"github.com/dobrovols/vkconfig/pkg/configurator"
	"github.com/dobrovols/vkconfig/pkg/paths"
	"github.com/dobrovols/vkconfig/pkg/state"
	"github.com/dobrovols/vkconfig/pkg/telemetry"
)

// Options are the global flags shared by every command.
type Options struct {
	ConfigPath    string
	LogLevel      string
	LogFormat     string
	LogFile       string
	Events        bool
	StateFile     string
	StateFileName string

	// System, Inspector and Paths replace the host implementations.
	System    platform.System
	Inspector validation.LoaderInspector
	Paths     *paths.Manager
}

// Session is an open configurator plus the files backing it.
type Session struct {
	*configurator.Configurator

	Store      *config.Preferences
	Source     config.PreferencesSource
	Logger     telemetry.StructuredLogger
	WorkflowID string

	closers []io.Closer
}

var isTerminal = term.IsTerminal

// Open builds a session and loads the settings. Diagnostics are written to
// stderr.
func Open(opts Options, stderr io.Writer) (*Session, error) {
	if stderr == nil {
		stderr = io.Discard
	}
	location, err := config.LocatePreferences(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	prefs, err := config.LoadPreferences(location.Path)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Store:      prefs,
		Source:     location.Source,
		WorkflowID: telemetry.NewWorkflowID(),
	}
	logger, err := s.buildLogger(opts, stderr)
	if err != nil {
		return nil, err
	}
	s.Logger = logger

	var events *telemetry.Emitter
	if opts.Events {
		events, err = telemetry.NewEmitter(stderr)
		if err != nil {
			s.closeFiles()
			return nil, err
		}
	}

	records := state.NewManager(istate.NewResolver(), state.Overrides{
		StateFilePath: opts.StateFile,
		StateFileName: opts.StateFileName,
	})
	c, err := configurator.New(configurator.Options{
		Paths:        opts.Paths,
		System:       opts.System,
		Settings:     prefs,
		Applications: config.NewApplicationFile(config.ApplicationsPath(location.Path)),
		Records:      records,
		Inspector:    opts.Inspector,
		Logger:       logger,
		Events:       events,
	})
	if err != nil {
		s.closeFiles()
		return nil, err
	}
	s.Configurator = c

	if err := c.LoadSettings(); err != nil {
		s.closeFiles()
		return nil, err
	}
	return s, nil
}

func (s *Session) buildLogger(opts Options, stderr io.Writer) (telemetry.StructuredLogger, error) {
	format := opts.LogFormat
	if strings.TrimSpace(format) == "" {
		format = logging.FormatJSON
		if f, ok := stderr.(*os.File); ok && isTerminal(int(f.Fd())) {
			format = logging.FormatText
		}
	}
	home, _ := os.UserHomeDir()
	console, err := logging.NewConsole(stderr, logging.ConsoleOptions{
		Level:  opts.LogLevel,
		Format: format,
		Home:   home,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.LogFile) == "" {
		return console, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	s.closers = append(s.closers, f)
	file, err := telemetry.NewLogger(f, s.WorkflowID)
	if err != nil {
		return nil, err
	}
	return logging.Tee{console, file}, nil
}

// Close releases the configurator, then saves the settings so the file
// reflects whether the override outlived the session, and closes log files.
func (s *Session) Close() error {
	var errs []error
	if s.Configurator != nil {
		if err := s.Configurator.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.SaveSettings(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.closeFiles(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Session) closeFiles() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Run opens a session for cmd, runs fn and closes the session. Errors are
// classified into exit codes.
func Run(cmd *cobra.Command, opts *Options, fn func(*Session) error) (err error) {
	cmd.SilenceUsage = true
	s, err := Open(*opts, cmd.ErrOrStderr())
	if err != nil {
		return Classify(err)
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = Classify(closeErr)
		}
	}()
	return Classify(fn(s))
}
