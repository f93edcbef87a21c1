// Package state knows where vkconfig keeps its own files: the activation
// record, the configuration store, the override artifacts and launcher logs.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pkgstate "github.com/dobrovols/vkconfig/pkg/state"
)

// RecordFileName is the activation record's name inside the state directory.
const RecordFileName = "activation.json"

const appDirName = "vkconfig"

var (
	// ErrConflictingOverrides is returned when both a record path and a record
	// file name are given.
	ErrConflictingOverrides = errors.New("activation record: specify either --state-file or --state-file-name")
	// ErrRelativeStateFile is returned for a relative --state-file.
	ErrRelativeStateFile = errors.New("activation record: --state-file must be an absolute path")
	// ErrInvalidFileName is returned for a --state-file-name that is not a
	// plain file name.
	ErrInvalidFileName = errors.New("activation record: --state-file-name must be a plain file name")
)

// Resolver implements pkg/state.PathResolver for the activation record.
type Resolver struct{}

// NewResolver returns a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the record path: an explicit path wins, otherwise the file
// name (default RecordFileName) is joined to the state directory.
func (r *Resolver) Resolve(overrides pkgstate.Overrides) (string, error) {
	switch {
	case overrides.StateFilePath != "" && overrides.StateFileName != "":
		return "", ErrConflictingOverrides
	case overrides.StateFilePath != "":
		if !filepath.IsAbs(overrides.StateFilePath) {
			return "", ErrRelativeStateFile
		}
		return filepath.Clean(overrides.StateFilePath), nil
	}

	name := overrides.StateFileName
	if name == "" {
		name = RecordFileName
	} else if InvalidFileName(name) {
		return "", ErrInvalidFileName
	}

	dir, err := stateDirectory(overrides.StateDirectory)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func stateDirectory(dir string) (string, error) {
	if dir == "" {
		dirs, err := DefaultDirectories()
		if err != nil {
			return "", fmt.Errorf("determine state directory: %w", err)
		}
		return dirs.State, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve state directory: %w", err)
	}
	return abs, nil
}

// Directories are the per-user locations vkconfig keeps its files in.
type Directories struct {
	Root           string
	State          string
	Configurations string
	Override       string
	Logs           string
}

// DefaultDirectories roots every directory at $XDG_CONFIG_HOME/vkconfig, or
// ~/.config/vkconfig when XDG_CONFIG_HOME is unset.
func DefaultDirectories() (Directories, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Directories{}, fmt.Errorf("unable to determine user home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	root := filepath.Join(filepath.Clean(base), appDirName)
	return Directories{
		Root:           root,
		State:          filepath.Join(root, "state"),
		Configurations: filepath.Join(root, "configurations"),
		Override:       filepath.Join(root, "override"),
		Logs:           filepath.Join(root, "logs"),
	}, nil
}

// Device names Windows refuses as file names, with or without extension.
var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// InvalidFileName reports names that cannot be used as a single file name on
// every supported host. Configuration names are stored under this rule.
func InvalidFileName(name string) bool {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return true
	}
	if strings.ContainsAny(name, `/\:*?"<>|`) || strings.HasSuffix(name, ".") || strings.HasSuffix(name, " ") {
		return true
	}
	if strings.IndexFunc(name, func(r rune) bool { return r < 32 || r == 127 }) >= 0 {
		return true
	}
	stem, _, _ := strings.Cut(strings.ToUpper(name), ".")
	_, reserved := reservedNames[stem]
	return reserved
}
