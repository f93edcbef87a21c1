package configurator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/dobrovols/vkconfig/pkg/configuration"
	"github.com/dobrovols/vkconfig/pkg/paths"
	"github.com/dobrovols/vkconfig/pkg/telemetry"
)

// Application is a program the override can be restricted to and launched
// with.
type Application struct {
	Name       string
	Executable string
	WorkingDir string
	// Arguments are split with shell quoting rules at launch.
	Arguments string
	// LogFile receives the program output. Empty means a file named after
	// the executable under the launcher log directory.
	LogFile string
	// OverrideEnabled includes the application in the override scope when
	// the override applies only to listed applications.
	OverrideEnabled bool
}

// ApplicationList persists the application list.
type ApplicationList interface {
	Load() ([]Application, error)
	Save([]Application) error
}

// LaunchResult describes a finished launch.
type LaunchResult struct {
	LogFile  string
	ExitCode int
}

// Applications returns the application list.
func (c *Configurator) Applications() ([]Application, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadApplicationsLocked(); err != nil {
		return nil, err
	}
	return append([]Application(nil), c.appList...), nil
}

func (c *Configurator) loadApplicationsLocked() error {
	if c.appsLoaded || c.apps == nil {
		return nil
	}
	apps, err := c.apps.Load()
	if err != nil {
		return fmt.Errorf("load application list: %w", err)
	}
	c.appList = apps
	c.appsLoaded = true
	return nil
}

// applicationsLocked returns the list for scoping. Load failures are logged
// and yield an empty scope.
func (c *Configurator) applicationsLocked() []Application {
	if err := c.loadApplicationsLocked(); err != nil {
		c.diagnose("application list unavailable", nil, err)
	}
	return c.appList
}

// AddApplication appends app to the list. Executables are unique.
func (c *Configurator) AddApplication(app Application) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	app.Executable = strings.TrimSpace(app.Executable)
	if app.Executable == "" {
		return ErrExecutableRequired
	}
	if err := c.loadApplicationsLocked(); err != nil {
		return err
	}
	if indexOf(c.appList, app.Executable) >= 0 {
		return fmt.Errorf("%w: %s", ErrApplicationExists, app.Executable)
	}
	if app.Name == "" {
		app.Name = applicationName(app.Executable)
	}
	return c.storeApplicationsLocked(append(append([]Application(nil), c.appList...), app))
}

// RemoveApplication drops the application with the given executable.
func (c *Configurator) RemoveApplication(executable string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadApplicationsLocked(); err != nil {
		return err
	}
	i := indexOf(c.appList, executable)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrApplicationNotFound, executable)
	}
	next := append(append([]Application(nil), c.appList[:i]...), c.appList[i+1:]...)
	if err := c.storeApplicationsLocked(next); err != nil {
		return err
	}
	if c.prefs.LaunchApplication == executable {
		c.prefs.LaunchApplication = ""
	}
	return nil
}

func (c *Configurator) storeApplicationsLocked(apps []Application) error {
	if c.apps != nil {
		if err := c.apps.Save(apps); err != nil {
			return fmt.Errorf("save application list: %w", err)
		}
	}
	c.appList = apps
	c.appsLoaded = true
	if c.prefs.ApplyOnlyToList {
		return c.refreshLocked()
	}
	return nil
}

// SetLastLaunchedApplication remembers the listed application to preselect.
func (c *Configurator) SetLastLaunchedApplication(executable string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadApplicationsLocked(); err != nil {
		return err
	}
	if indexOf(c.appList, executable) < 0 {
		return fmt.Errorf("%w: %s", ErrApplicationNotFound, executable)
	}
	c.prefs.LaunchApplication = executable
	return nil
}

// LastLaunchedApplication returns the remembered application.
func (c *Configurator) LastLaunchedApplication() (Application, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadApplicationsLocked(); err != nil {
		return Application{}, false
	}
	if i := indexOf(c.appList, c.prefs.LaunchApplication); i >= 0 {
		return c.appList[i], true
	}
	return Application{}, false
}

// LaunchApplication runs app to completion with its output captured in the
// log file. A non-nil cfg is pushed for the duration of the run and popped
// afterwards, even when the program fails. output, when set, also receives
// the program output. The facade lock is released while the program runs,
// so other calls proceed against the pushed configuration.
func (c *Configurator) LaunchApplication(ctx context.Context, app Application, cfg *configuration.Configuration, output io.Writer) (result LaunchResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	executable := strings.TrimSpace(app.Executable)
	if executable == "" {
		return LaunchResult{}, ErrExecutableRequired
	}
	args, err := shellwords.NewParser().Parse(app.Arguments)
	if err != nil {
		return LaunchResult{}, fmt.Errorf("parse arguments of %s: %w", executable, err)
	}

	logPath := strings.TrimSpace(app.LogFile)
	if logPath == "" {
		logPath = c.paths.GetFullPath(paths.RoleLauncherLog, applicationName(executable)+".log")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return LaunchResult{}, fmt.Errorf("create launcher log directory: %w", err)
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		return LaunchResult{}, fmt.Errorf("create launcher log: %w", err)
	}
	defer logFile.Close()
	result.LogFile = logPath

	if cfg != nil {
		if err := c.pushLocked(cfg); err != nil {
			return result, err
		}
		defer func() {
			if popErr := c.popLocked(); popErr != nil && err == nil {
				err = popErr
			}
		}()
	}

	tail := &outputTail{limit: outputExcerptSize}
	sinks := []io.Writer{logFile, tail}
	if output != nil {
		sinks = append(sinks, output)
	}
	sink := io.MultiWriter(sinks...)
	cmd := exec.CommandContext(ctx, executable, args...)
	cmd.Dir = app.WorkingDir
	cmd.Stdout = sink
	cmd.Stderr = sink

	metadata := map[string]string{"executable": executable, "log": logPath}
	if cfg != nil {
		metadata["configuration"] = cfg.Name
	}
	runErr := c.track(phaseLaunch, metadata, func() error {
		c.mu.Unlock()
		defer c.mu.Lock()
		return cmd.Run()
	})
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		metadata["exitCode"] = strconv.Itoa(result.ExitCode)
	}

	entry := telemetry.Entry{
		Category: telemetry.CategoryCommand,
		Message:  "application finished",
		Step:     "launch",
		Command:  strings.Join(append([]string{executable}, args...), " "),
		Output:   tail.String(),
		Metadata: metadata,
		Error:    runErr,
	}
	_ = c.logger.Emit(entry)

	if indexOf(c.appList, executable) >= 0 {
		c.prefs.LaunchApplication = executable
	}
	if runErr != nil {
		return result, fmt.Errorf("launch %s: %w", executable, runErr)
	}
	return result, nil
}

const outputExcerptSize = 512

// outputTail keeps the last limit bytes written to it.
type outputTail struct {
	limit int
	buf   []byte
}

func (t *outputTail) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *outputTail) String() string {
	return strings.TrimSpace(string(t.buf))
}

func indexOf(apps []Application, executable string) int {
	for i, app := range apps {
		if app.Executable == executable {
			return i
		}
	}
	return -1
}

func applicationName(executable string) string {
	base := filepath.Base(executable)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
