package state

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// RegistryValue is a loader registry entry published during activation.
// Prior holds what the entry contained before, when it existed.
type RegistryValue struct {
	Root    string        `json:"root"`
	Key     string        `json:"key"`
	Name    string        `json:"name"`
	Existed bool          `json:"existed"`
	Prior   *RegistryData `json:"prior,omitempty"`
}

// RegistryData is a registry value's type and content. Integer types use
// Integer, string types use Strings and everything else keeps the raw Data.
type RegistryData struct {
	Type    uint32   `json:"type"`
	Integer uint64   `json:"integer,omitempty"`
	Strings []string `json:"strings,omitempty"`
	Data    []byte   `json:"data,omitempty"`
}

// Record stores what the last successful activation changed on the host.
type Record struct {
	Configuration   string          `json:"configuration"`
	ApplyOnlyToList bool            `json:"applyOnlyToList,omitempty"`
	Scope           []string        `json:"scope,omitempty"`
	Artifacts       []Change        `json:"artifacts"`
	Registry        []RegistryValue `json:"registry,omitempty"`
	// Directories were created for the artifacts, outermost first.
	Directories     []string        `json:"directories,omitempty"`
	LastAction      string          `json:"lastAction"`
	Timestamp       string          `json:"timestamp"`
}

// Overrides carries the --state-file flags and the state directory.
type Overrides struct {
	StateDirectory string
	StateFileName  string
	StateFilePath  string
}

// PathResolver resolves the effective filesystem path for the record file.
type PathResolver interface {
	Resolve(Overrides) (string, error)
}

// Manager reads and writes the activation record and opens artifact
// transactions.
type Manager struct {
	resolver  PathResolver
	overrides Overrides
	dirPerm   os.FileMode
	filePerm  os.FileMode
}

var (
	// ErrWriteFailed wraps every failure to put a file in place, whether the
	// activation record or an override artifact.
	ErrWriteFailed = errors.New("state file could not be written")

	errNoResolver = errors.New("state path resolver not configured")
	errEmptyPath  = errors.New("resolved state file path empty")
)

// NewManager constructs a Manager with the provided resolver.
func NewManager(resolver PathResolver, overrides Overrides) *Manager {
	return &Manager{
		resolver:  resolver,
		overrides: overrides,
		dirPerm:   0o700,
		filePerm:  0o600,
	}
}

// Path returns the resolved record location.
func (m *Manager) Path() (string, error) {
	if m == nil || m.resolver == nil {
		return "", errNoResolver
	}
	path, err := m.resolver.Resolve(m.overrides)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(path) == "" {
		return "", errEmptyPath
	}
	return path, nil
}

// Write persists record atomically and returns its path.
func (m *Manager) Write(record Record) (string, error) {
	path, err := m.Path()
	if err != nil {
		return "", err
	}
	if record.Timestamp == "" {
		record.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if err := writeFile(path, append(data, '\n'), m.dirPerm, m.filePerm); err != nil {
		return "", err
	}
	return path, nil
}

// Read loads the persisted record. A missing file yields (nil, nil).
func (m *Manager) Read() (*Record, error) {
	path, err := m.Path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode state file %q: %w", path, err)
	}
	return &record, nil
}

// Remove deletes the persisted record. Removing a missing record succeeds.
func (m *Manager) Remove() error {
	path, err := m.Path()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}

// Begin starts a file transaction. owned lists artifacts a previous
// transaction created; their original backups are carried forward.
func (m *Manager) Begin(owned ...Change) *Transaction {
	tx := &Transaction{dirPerm: 0o755, filePerm: 0o644, owned: map[string]Change{}}
	if m != nil {
		tx.dirPerm = m.dirPerm
	}
	for _, c := range owned {
		tx.owned[c.Path] = c
	}
	return tx
}
