// Package lockfile guards a daemon's state directory with an
// exclusive, advisory file lock so that at most one askd process ever
// owns a given database at a time.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Info is the metadata recorded in the lock file while it is held.
type Info struct {
	PID       int       `json:"pid"`
	ParentPID int       `json:"parent_pid,omitempty"`
	Database  string    `json:"database"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// Lock represents a held exclusive lock on a state directory's
// askd.lock file. Closing it releases the lock.
type Lock struct {
	file *os.File
	path string
}

// Close releases the lock. Closing the file descriptor releases the
// underlying flock automatically.
func (l *Lock) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Acquire takes an exclusive non-blocking lock on <stateDir>/askd.lock
// and stamps it with the current process's identity plus dbPath. It
// returns ErrLocked if another process already holds the lock.
func Acquire(stateDir, dbPath, version string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, "askd.lock")

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open: %w", err)
	}

	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		if err == errLocked {
			return nil, errLocked
		}
		return nil, fmt.Errorf("lockfile: flock: %w", err)
	}

	info := Info{
		PID:       os.Getpid(),
		ParentPID: os.Getppid(),
		Database:  dbPath,
		Version:   version,
		StartedAt: time.Now().UTC(),
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	_ = enc.Encode(info)
	_ = f.Sync()

	pidPath := filepath.Join(stateDir, "askd.pid")
	_ = os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0600)

	return &Lock{file: f, path: lockPath}, nil
}

// ErrLocked reports that askd.lock is held by a running daemon.
var ErrLocked = errLocked

// Probe attempts and immediately releases the lock to check whether a
// daemon currently owns stateDir, without disturbing it. It falls back
// to the PID file when no lock file exists, for daemons started before
// lockfile was introduced.
func Probe(stateDir string) (running bool, pid int) {
	lockPath := filepath.Join(stateDir, "askd.lock")

	f, err := os.OpenFile(lockPath, os.O_RDWR, 0)
	if err != nil {
		return checkPIDFile(stateDir)
	}
	defer func() { _ = f.Close() }()

	if err := flockExclusive(f); err != nil {
		if err == errLocked {
			_, _ = f.Seek(0, 0)
			var info Info
			if derr := json.NewDecoder(f).Decode(&info); derr == nil {
				pid = info.PID
			}
			if pid == 0 {
				_, pid = checkPIDFile(stateDir)
			}
			return true, pid
		}
		return false, 0
	}
	return false, 0
}

// Read loads and parses the lock file's metadata without acquiring
// the lock.
func Read(stateDir string) (*Info, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, "askd.lock"))
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("lockfile: parse: %w", err)
	}
	return &info, nil
}

func checkPIDFile(stateDir string) (running bool, pid int) {
	data, err := os.ReadFile(filepath.Join(stateDir, "askd.pid"))
	if err != nil {
		return false, 0
	}
	pidVal, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0
	}
	if !isProcessRunning(pidVal) {
		return false, 0
	}
	return true, pidVal
}
