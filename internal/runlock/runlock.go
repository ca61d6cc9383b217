// ABOUTME: Per-source run lock so overlapping syncs cannot interleave
// ABOUTME: writes. Pidfile based, with stale-lock detection via go-ps.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ps "github.com/mitchellh/go-ps"
)

// ErrLocked means another live process holds the lock for this source.
var ErrLocked = errors.New("sync already running")

// Lock is a held run lock. Release it when the sync finishes.
type Lock struct {
	path string
}

// Acquire takes the run lock for source under dir, creating dir as
// needed. A lockfile whose recorded pid no longer exists is treated
// as stale and replaced.
func Acquire(dir, source string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	path := filepath.Join(dir, "sync-"+source+".lock")

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			if _, werr := fmt.Fprintf(f, "%d\n", os.Getpid()); werr != nil {
				f.Close()
				os.Remove(path)
				return nil, fmt.Errorf("writing lockfile: %w", werr)
			}
			if cerr := f.Close(); cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("writing lockfile: %w", cerr)
			}
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("creating lockfile: %w", err)
		}
		stale, serr := isStale(path)
		if serr != nil {
			return nil, serr
		}
		if !stale {
			return nil, fmt.Errorf("%w: %s held by live process", ErrLocked, path)
		}
		// Stale holder; clear it and retry the exclusive create once.
		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale lockfile: %w", rerr)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, path)
}

// Release drops the lock. Safe to call once per Acquire.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("releasing lockfile: %w", err)
	}
	return nil
}

// isStale reports whether the lockfile's recorded pid is gone. An
// unreadable or malformed lockfile counts as stale.
func isStale(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("reading lockfile: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return true, nil
	}
	proc, err := ps.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("checking lock holder pid %d: %w", pid, err)
	}
	return proc == nil, nil
}
