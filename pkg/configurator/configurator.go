// Package configurator is the session facade over layer discovery, the
// configuration catalog and override activation. A Configurator is created
// once per process and serializes every operation.
package configurator

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dobrovols/vkconfig/internal/platform"
	internalstate "github.com/dobrovols/vkconfig/internal/state"
	"github.com/dobrovols/vkconfig/internal/validation"
	"github.com/dobrovols/vkconfig/pkg/configuration"
	"github.com/dobrovols/vkconfig/pkg/discovery"
	"github.com/dobrovols/vkconfig/pkg/override"
	"github.com/dobrovols/vkconfig/pkg/paths"
	"github.com/dobrovols/vkconfig/pkg/state"
	"github.com/dobrovols/vkconfig/pkg/telemetry"
)

const instrumentationName = "github.com/dobrovols/vkconfig/pkg/configurator"

// Options wires the collaborators of a Configurator. Nil fields fall back to
// the host implementations.
type Options struct {
	// Paths resolves the path roles. Roles set at construction are the
	// defaults restored by ResetToDefaultSettings.
	Paths        *paths.Manager
	System       platform.System
	Settings     SettingsStore
	Applications ApplicationList
	// Records persists the activation record.
	Records   *state.Manager
	Inspector validation.LoaderInspector
	Logger    telemetry.StructuredLogger
	Events    *telemetry.Emitter
}

// Configurator owns the session state. Use New.
type Configurator struct {
	mu sync.Mutex

	paths     *paths.Manager
	scanner   *discovery.Scanner
	catalog   *configuration.Catalog
	activator *override.Activator
	settings  SettingsStore
	apps      ApplicationList
	inspector validation.LoaderInspector
	logger    telemetry.StructuredLogger
	events    *telemetry.Emitter

	tracer      trace.Tracer
	activations metric.Int64Counter

	defaultPaths map[paths.Role]string
	prefs        Preferences
	layers       discovery.Result
	loadErrors   []*configuration.LoadError
	active       *configuration.Configuration
	pushed       *pushedState
	appList      []Application
	appsLoaded   bool
}

type pushedState struct {
	name           string
	previous       *configuration.Configuration
	overrideActive bool
}

// New constructs a Configurator. No I/O happens until LoadSettings or a scan.
func New(opts Options) (*Configurator, error) {
	resolver := opts.Paths
	if resolver == nil {
		var err error
		resolver, err = DefaultPaths()
		if err != nil {
			return nil, err
		}
	}
	system := opts.System
	if system == nil {
		system = platform.NewSystem()
	}
	records := opts.Records
	if records == nil {
		records = state.NewManager(internalstate.NewResolver(), state.Overrides{})
	}
	inspector := opts.Inspector
	if inspector == nil {
		inspector = validation.DefaultInspector{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.Discard{}
	}

	scanner := discovery.NewScanner(system, resolver)
	c := &Configurator{
		paths:        resolver,
		scanner:      scanner,
		catalog:      configuration.NewCatalog(resolver, nil),
		activator:    override.NewActivator(resolver, system, records),
		settings:     opts.Settings,
		apps:         opts.Applications,
		inspector:    inspector,
		logger:       logger,
		events:       opts.Events,
		tracer:       otel.Tracer(instrumentationName),
		defaultPaths: map[paths.Role]string{},
		prefs:        DefaultPreferences(),
	}
	for _, role := range paths.Roles() {
		if resolver.IsSet(role) {
			c.defaultPaths[role] = resolver.GetPath(role)
		}
	}

	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"vkconfig.override.activations",
		metric.WithDescription("Override activations and deactivations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create activation counter: %w", err)
	}
	c.activations = counter
	return c, nil
}

// DefaultPaths returns a resolver seeded with the per-user store, override
// and log directories of the host.
func DefaultPaths() (*paths.Manager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	dirs, err := internalstate.DefaultDirectories()
	if err != nil {
		return nil, fmt.Errorf("determine vkconfig directories: %w", err)
	}
	settingsDir, manifestDir := platform.OverrideDirectories(os.Getenv, home)

	resolver := paths.New(home)
	resolver.SetPath(paths.RoleConfigurationStore, dirs.Configurations)
	resolver.SetPath(paths.RoleOverrideSettings, settingsDir)
	resolver.SetPath(paths.RoleOverrideJSON, manifestDir)
	resolver.SetPath(paths.RoleLauncherLog, dirs.Logs)
	return resolver, nil
}

// Close pops a pushed configuration and removes the override unless it is
// meant to outlive the session.
func (c *Configurator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pushed != nil {
		if err := c.popLocked(); err != nil {
			return err
		}
	}
	if c.prefs.KeepActiveOnExit || !c.prefs.OverrideActive {
		return nil
	}
	if err := c.deactivateLocked(); err != nil {
		return err
	}
	c.prefs.OverrideActive = false
	return nil
}

// track runs fn inside a span and the matching telemetry phase.
func (c *Configurator) track(phase telemetry.Phase, metadata map[string]string, fn func() error) error {
	attrs := make([]attribute.KeyValue, 0, len(metadata))
	for k, v := range metadata {
		attrs = append(attrs, attribute.String("vkconfig."+k, v))
	}
	_, span := c.tracer.Start(context.Background(), "vkconfig."+string(phase), trace.WithAttributes(attrs...))
	defer span.End()

	err := c.events.EmitPhase(phase, metadata, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

const (
	phaseDiscovery  = telemetry.PhaseDiscovery
	phaseLoad       = telemetry.PhaseLoad
	phaseSave       = telemetry.PhaseSave
	phaseActivate   = telemetry.PhaseActivate
	phaseDeactivate = telemetry.PhaseDeactivate
	phaseLaunch     = telemetry.PhaseLaunch

	severityInfo  = telemetry.SeverityInfo
	severityWarn  = telemetry.SeverityWarn
	severityError = telemetry.SeverityError
)

func (c *Configurator) logf(severity telemetry.Severity, message string, metadata map[string]string, err error) {
	_ = c.logger.Emit(telemetry.Entry{
		Category: telemetry.CategoryWorkflow,
		Message:  message,
		Severity: severity,
		Metadata: metadata,
		Error:    err,
	})
}

// diagnose logs a recoverable problem. The error goes into the metadata so
// the entry keeps warn severity.
func (c *Configurator) diagnose(message string, metadata map[string]string, err error) {
	entry := telemetry.Entry{
		Category: telemetry.CategoryDiagnostic,
		Message:  message,
		Severity: severityWarn,
		Metadata: map[string]string{},
	}
	for k, v := range metadata {
		entry.Metadata[k] = v
	}
	if err != nil {
		entry.Metadata["problem"] = err.Error()
	}
	_ = c.logger.Emit(entry)
}
