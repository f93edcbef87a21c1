// Package override materializes a configuration as the artifacts the Vulkan
// loader reads at application start, and removes exactly those artifacts
// again.
package override

import (
	"errors"
	"time"

	"github.com/dobrovols/vkconfig/internal/platform"
	"github.com/dobrovols/vkconfig/pkg/configuration"
	"github.com/dobrovols/vkconfig/pkg/paths"
	"github.com/dobrovols/vkconfig/pkg/state"
)

const (
	opActivate   = "activate"
	opDeactivate = "deactivate"
)

// Activator writes and removes override artifacts. Every Activate is recorded
// so Deactivate can undo it, including after a restart.
type Activator struct {
	paths   *paths.Manager
	system  platform.System
	records *state.Manager
	now     func() time.Time
}

// NewActivator constructs an Activator. records persists the activation
// record; system publishes registry values where the host has a registry.
func NewActivator(resolver *paths.Manager, system platform.System, records *state.Manager) *Activator {
	return &Activator{paths: resolver, system: system, records: records, now: time.Now}
}

// Artifacts returns the settings and override manifest paths Activate writes.
func (a *Activator) Artifacts() (settings, manifest string) {
	return a.paths.GetFullPath(paths.RoleOverrideSettings), a.paths.GetFullPath(paths.RoleOverrideJSON)
}

// Status returns the record of the active override, or nil when inactive.
func (a *Activator) Status() (*state.Record, error) {
	return a.records.Read()
}

// Activate writes the override for cfg. Activating over an existing override
// replaces it and keeps the backups of files that predate the first
// activation. On failure nothing on the host changes.
func (a *Activator) Activate(cfg *configuration.Configuration, scope Scope) (*state.Record, error) {
	recordPath, err := a.records.Path()
	if err != nil {
		return nil, &ActivationError{Op: opActivate, Path: "activation record", Err: err}
	}
	if cfg == nil {
		return nil, &ActivationError{Op: opActivate, Path: recordPath, Err: configuration.ErrNotFound}
	}
	prev, err := a.records.Read()
	if err != nil {
		return nil, &ActivationError{Op: opActivate, Path: recordPath, Err: err}
	}

	settingsPath, manifestPath := a.Artifacts()
	manifest, err := RenderManifest(cfg, scope)
	if err != nil {
		return nil, &ActivationError{Op: opActivate, Path: manifestPath, Err: err}
	}

	var owned []state.Change
	if prev != nil {
		owned = prev.Artifacts
	}
	settings, err := RenderSettings(cfg.Stack())
	if err != nil {
		return nil, &ActivationError{Op: opActivate, Path: settingsPath, Err: err}
	}
	tx := a.records.Begin(owned...)
	if err := tx.Put(settingsPath, settings); err != nil {
		tx.Rollback()
		return nil, &ActivationError{Op: opActivate, Path: settingsPath, Err: err}
	}
	if err := tx.Put(manifestPath, manifest); err != nil {
		tx.Rollback()
		return nil, &ActivationError{Op: opActivate, Path: manifestPath, Err: err}
	}
	changes, err := tx.Commit()
	if err != nil {
		return nil, &ActivationError{Op: opActivate, Path: failedPath(err, settingsPath), Err: err}
	}

	values, touched, err := a.publish(prev, manifestPath, settingsPath)
	if err != nil {
		a.unpublish(touched)
		tx.Rollback()
		return nil, err
	}

	var dirs []string
	if prev != nil {
		dirs = prev.Directories
	}
	record := state.Record{
		Configuration:   cfg.Name,
		ApplyOnlyToList: scope.ApplyOnlyToList,
		Artifacts:       changes,
		Registry:        values,
		Directories:     appendUnique(dirs, tx.CreatedDirs()...),
		LastAction:      opActivate,
		Timestamp:       a.now().UTC().Format(time.RFC3339),
	}
	if scope.ApplyOnlyToList {
		record.Scope = append([]string{}, scope.Applications...)
	}
	if _, err := a.records.Write(record); err != nil {
		a.unpublish(touched)
		tx.Rollback()
		return nil, &ActivationError{Op: opActivate, Path: recordPath, Err: err}
	}
	tx.Finish()

	if prev != nil {
		a.releaseStale(prev, record)
	}
	return &record, nil
}

// publish writes the registry values the host needs. It returns every value
// now owned by the override and the subset this call took over.
func (a *Activator) publish(prev *state.Record, manifestPath, settingsPath string) ([]state.RegistryValue, []state.RegistryValue, error) {
	pubs := a.system.OverridePublications(manifestPath, settingsPath)
	previous := map[platform.Publication]state.RegistryValue{}
	if prev != nil {
		for _, v := range prev.Registry {
			previous[platform.Publication{Root: v.Root, Key: v.Key, Name: v.Name}] = v
		}
	}

	var values, touched []state.RegistryValue
	for _, pub := range pubs {
		prior, err := a.system.Lookup(pub)
		if err != nil {
			return nil, touched, &ActivationError{Op: opActivate, Path: pub.String(), Err: err}
		}
		value := state.RegistryValue{Root: pub.Root, Key: pub.Key, Name: pub.Name, Existed: prior != nil, Prior: prior}
		old, owned := previous[pub]
		if owned {
			value.Existed, value.Prior = old.Existed, old.Prior
		}
		if err := a.system.Publish(pub); err != nil {
			return nil, touched, &ActivationError{Op: opActivate, Path: pub.String(), Err: err}
		}
		if !owned {
			touched = append(touched, value)
		}
		values = append(values, value)
	}
	return values, touched, nil
}

func (a *Activator) unpublish(values []state.RegistryValue) {
	for i := len(values) - 1; i >= 0; i-- {
		a.release(values[i])
	}
}

// releaseStale undoes artifacts of the previous activation that the new one
// no longer uses, which happens when the artifact paths were reconfigured.
func (a *Activator) releaseStale(prev *state.Record, current state.Record) {
	keep := map[string]bool{}
	for _, c := range current.Artifacts {
		keep[c.Path] = true
	}
	var stale []state.Change
	for _, c := range prev.Artifacts {
		if !keep[c.Path] {
			stale = append(stale, c)
		}
	}
	state.Revert(stale)

	kept := map[platform.Publication]bool{}
	for _, v := range current.Registry {
		kept[platform.Publication{Root: v.Root, Key: v.Key, Name: v.Name}] = true
	}
	for _, v := range prev.Registry {
		if !kept[platform.Publication{Root: v.Root, Key: v.Key, Name: v.Name}] {
			a.release(v)
		}
	}
}

// release returns a published value to what it was before activation: a
// value the override created is withdrawn, a replaced one is restored.
func (a *Activator) release(v state.RegistryValue) error {
	pub := platform.Publication{Root: v.Root, Key: v.Key, Name: v.Name}
	switch {
	case !v.Existed:
		return a.system.Withdraw(pub)
	case v.Prior != nil:
		return a.system.Restore(pub, *v.Prior)
	}
	return nil
}

// Deactivate removes what the recorded activation created and restores the
// files it replaced. Without a record it does nothing. Steps that fail stay in
// the record so a later call can retry them.
func (a *Activator) Deactivate() error {
	record, err := a.records.Read()
	if err != nil {
		path, _ := a.records.Path()
		return &ActivationError{Op: opDeactivate, Path: path, Err: err}
	}
	if record == nil {
		return nil
	}

	var errs []error
	var remainingValues []state.RegistryValue
	for i := len(record.Registry) - 1; i >= 0; i-- {
		v := record.Registry[i]
		if err := a.release(v); err != nil {
			pub := platform.Publication{Root: v.Root, Key: v.Key, Name: v.Name}
			errs = append(errs, &ActivationError{Op: opDeactivate, Path: pub.String(), Err: err})
			remainingValues = append([]state.RegistryValue{v}, remainingValues...)
		}
	}

	var remainingArtifacts []state.Change
	for i := len(record.Artifacts) - 1; i >= 0; i-- {
		c := record.Artifacts[i]
		if err := state.Revert([]state.Change{c}); err != nil {
			errs = append(errs, &ActivationError{Op: opDeactivate, Path: c.Path, Err: err})
			remainingArtifacts = append([]state.Change{c}, remainingArtifacts...)
		}
	}

	if len(errs) > 0 {
		record.Registry = remainingValues
		record.Artifacts = remainingArtifacts
		record.LastAction = opDeactivate
		record.Timestamp = a.now().UTC().Format(time.RFC3339)
		if _, err := a.records.Write(*record); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	state.PruneDirs(record.Directories)
	if err := a.records.Remove(); err != nil {
		path, _ := a.records.Path()
		return &ActivationError{Op: opDeactivate, Path: path, Err: err}
	}
	return nil
}

func appendUnique(dst []string, items ...string) []string {
	out := append([]string(nil), dst...)
	seen := map[string]bool{}
	for _, item := range out {
		seen[item] = true
	}
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

func failedPath(err error, fallback string) string {
	var fileErr *state.FileError
	if errors.As(err, &fileErr) {
		return fileErr.Path
	}
	return fallback
}
