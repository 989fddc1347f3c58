// Package lockfile guards the single-owning-process invariant: the journal
// database is private to one process, and all other processes speak to its
// owner via the sync protocol. An OS-level exclusive flock on a PID file
// answers the one question cmd/vaultsync needs answered — is another
// vaultsync already running against this vault?
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrLocked is returned by Acquire when another process already holds the
// vault lock.
var ErrLocked = errors.New("lockfile: vault is locked by another process")

// IsLocked reports whether err indicates the vault lock is already held.
func IsLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}

// FileName is the lock file's name within a vault's config directory.
const FileName = "vaultsync.lock"

// VaultLock is a held exclusive lock on one vault's lock file. Release is
// idempotent and safe to call from a defer, including on the nil lock a
// failed Acquire returns.
type VaultLock struct {
	f    *os.File
	path string
}

// Acquire opens (creating if needed) <lockDir>/vaultsync.lock and takes a
// non-blocking exclusive OS-level lock on it, writing this process's PID
// into the file for Probe to report later. It returns ErrLocked, wrapping
// the held-by PID when discoverable, if another process already holds it.
func Acquire(lockDir string) (*VaultLock, error) {
	if err := os.MkdirAll(lockDir, 0o700); err != nil {
		return nil, fmt.Errorf("lockfile: create %s: %w", lockDir, err)
	}
	path := filepath.Join(lockDir, FileName)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}

	if err := flockExclusiveNonBlocking(f); err != nil {
		heldBy, _ := readPID(path)
		_ = f.Close()
		if heldBy > 0 {
			return nil, fmt.Errorf("%w (pid %d)", ErrLocked, heldBy)
		}
		return nil, ErrLocked
	}

	if err := f.Truncate(0); err != nil {
		_ = flockUnlock(f)
		_ = f.Close()
		return nil, fmt.Errorf("lockfile: truncate %s: %w", path, err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		_ = flockUnlock(f)
		_ = f.Close()
		return nil, fmt.Errorf("lockfile: write pid to %s: %w", path, err)
	}

	return &VaultLock{f: f, path: path}, nil
}

// Release unlocks and closes the lock file. Idempotent.
func (l *VaultLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := flockUnlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if err != nil {
		return err
	}
	return closeErr
}

// Probe reports whether lockDir's vault lock is currently held by another
// process, and by which PID if the file records one. It never blocks and
// never leaves a lock held: if the probe itself can acquire the lock
// (meaning no one else holds it), it releases immediately. Used by
// `vaultsync doctor`.
func Probe(lockDir string) (heldByPID int, locked bool, err error) {
	path := filepath.Join(lockDir, FileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil // no lock directory yet: nobody holds the lock
		}
		return 0, false, fmt.Errorf("lockfile: open %s: %w", path, err)
	}
	defer f.Close()

	if err := flockExclusiveNonBlocking(f); err != nil {
		pid, _ := readPID(path)
		return pid, true, nil
	}
	_ = flockUnlock(f)
	return 0, false, nil
}

// readPID reads path's contents as a bare decimal PID.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is our own lock file
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}
	return pid, nil
}
