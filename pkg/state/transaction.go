package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	// BackupSuffix names the copy of a file that existed before a transaction
	// replaced it. The copy lives next to the original until reverted.
	BackupSuffix = ".vkconfig-backup"
	swapSuffix   = ".vkconfig-swap"
)

// Change describes one file a transaction put in place.
type Change struct {
	Path    string `json:"path"`
	Existed bool   `json:"existed"`
	Backup  string `json:"backup,omitempty"`
}

// FileError reports the file a transaction step failed on.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

type staged struct {
	path string
	temp string
}

type applied struct {
	path string
	undo string
}

type createdDir struct {
	top  string
	leaf string
}

// Transaction replaces a set of files all together or not at all. Content is
// staged into temp files next to each target; Commit swaps every target in,
// keeping the prior content aside so Rollback can restore it.
type Transaction struct {
	dirPerm  os.FileMode
	filePerm os.FileMode
	owned    map[string]Change
	staged   []staged
	applied  []applied
	created  []createdDir
	closed   bool
}

// Put stages data for path. Nothing visible changes until Commit.
func (tx *Transaction) Put(path string, data []byte) error {
	if tx.closed {
		return &FileError{Path: path, Err: errors.New("transaction already finished")}
	}
	dir := filepath.Dir(path)
	if top := firstMissing(dir); top != "" {
		if err := os.MkdirAll(dir, tx.dirPerm); err != nil {
			return &FileError{Path: path, Err: err}
		}
		tx.created = append(tx.created, createdDir{top: top, leaf: dir})
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return &FileError{Path: path, Err: err}
	}
	name := tmp.Name()
	if err := tmp.Chmod(tx.filePerm); err != nil {
		tmp.Close()
		os.Remove(name)
		return &FileError{Path: path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return &FileError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return &FileError{Path: path, Err: err}
	}
	tx.staged = append(tx.staged, staged{path: path, temp: name})
	return nil
}

// Commit swaps every staged file into place. On failure the transaction is
// rolled back before the error is returned.
func (tx *Transaction) Commit() ([]Change, error) {
	if tx.closed {
		return nil, errors.New("transaction already finished")
	}
	changes := make([]Change, 0, len(tx.staged))
	for i, s := range tx.staged {
		prior, owned := tx.owned[s.path]
		_, statErr := os.Lstat(s.path)
		exists := statErr == nil

		undo := ""
		if exists {
			undo = freeName(s.path + BackupSuffix)
			if owned {
				undo = s.path + swapSuffix
			}
			if err := os.Rename(s.path, undo); err != nil {
				tx.staged = tx.staged[i:]
				tx.Rollback()
				return nil, &FileError{Path: s.path, Err: err}
			}
		}
		if err := os.Rename(s.temp, s.path); err != nil {
			if undo != "" {
				os.Rename(undo, s.path)
			}
			tx.staged = tx.staged[i:]
			tx.Rollback()
			return nil, &FileError{Path: s.path, Err: err}
		}
		tx.applied = append(tx.applied, applied{path: s.path, undo: undo})

		if owned {
			changes = append(changes, prior)
			continue
		}
		change := Change{Path: s.path, Existed: exists}
		if exists {
			change.Backup = undo
		}
		changes = append(changes, change)
	}
	tx.staged = nil
	return changes, nil
}

// CreatedDirs lists the directories Put had to create, outermost first.
func (tx *Transaction) CreatedDirs() []string {
	var dirs []string
	for _, d := range tx.created {
		var chain []string
		for current := d.leaf; ; current = filepath.Dir(current) {
			chain = append(chain, current)
			if current == d.top || filepath.Dir(current) == current {
				break
			}
		}
		for i := len(chain) - 1; i >= 0; i-- {
			dirs = append(dirs, chain[i])
		}
	}
	return dirs
}

// Finish discards the rollback data of a committed transaction. Backups of
// pre-existing files stay in place for Revert.
func (tx *Transaction) Finish() {
	for _, a := range tx.applied {
		if filepath.Ext(a.undo) == swapSuffix {
			os.Remove(a.undo)
		}
	}
	tx.applied = nil
	tx.created = nil
	tx.closed = true
}

// Rollback restores every committed file and removes staged temp files and
// directories the transaction created.
func (tx *Transaction) Rollback() error {
	var errs []error
	for i := len(tx.applied) - 1; i >= 0; i-- {
		a := tx.applied[i]
		if err := os.Remove(a.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		if a.undo != "" {
			if err := os.Rename(a.undo, a.path); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, s := range tx.staged {
		os.Remove(s.temp)
	}
	for i := len(tx.created) - 1; i >= 0; i-- {
		removeEmptyDirs(tx.created[i])
	}
	tx.applied, tx.staged, tx.created = nil, nil, nil
	tx.closed = true
	return errors.Join(errs...)
}

// Revert undoes committed changes in reverse order: files that did not exist
// are removed and replaced files are restored from their backups.
func Revert(changes []Change) error {
	var errs []error
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		switch {
		case c.Backup != "":
			if err := os.Rename(c.Backup, c.Path); err != nil {
				errs = append(errs, fmt.Errorf("restore %s: %w", c.Path, err))
			}
		case !c.Existed:
			if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove %s: %w", c.Path, err))
			}
		}
	}
	return errors.Join(errs...)
}

// PruneDirs removes the given directories deepest first, skipping any that
// are not empty.
func PruneDirs(dirs []string) {
	sorted := append([]string(nil), dirs...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	for _, dir := range sorted {
		os.Remove(dir)
	}
}

// freeName returns path, or path with a numeric suffix when path is taken.
// A backup left by an earlier activation is never overwritten.
func freeName(path string) string {
	candidate := path
	for i := 1; ; i++ {
		if _, err := os.Lstat(candidate); err != nil {
			return candidate
		}
		candidate = fmt.Sprintf("%s.%d", path, i)
	}
}

// firstMissing returns the outermost missing ancestor of dir, or "" when dir
// exists.
func firstMissing(dir string) string {
	missing := ""
	for current := dir; ; {
		if _, err := os.Stat(current); err == nil {
			return missing
		}
		missing = current
		parent := filepath.Dir(current)
		if parent == current {
			return missing
		}
		current = parent
	}
}

func removeEmptyDirs(d createdDir) {
	for current := d.leaf; ; current = filepath.Dir(current) {
		if err := os.Remove(current); err != nil {
			return
		}
		if current == d.top || filepath.Dir(current) == current {
			return
		}
	}
}
