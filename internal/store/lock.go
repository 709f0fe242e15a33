package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Cross-process mutual exclusion over the state file. Two invocations of the
// tool may race on the same machine, so exclusion is modeled as a marker file
// plus a staleness rule rather than a language-level mutex. PID liveness
// alone is unreliable across platforms and process reuse, hence the dual
// rule: a marker is reclaimable when its holder is dead OR its timestamp has
// aged past the staleness threshold.
const (
	// StaleAfter is how old a marker may get before any process may reclaim
	// it even if the recorded holder still appears to be alive.
	StaleAfter = 5 * time.Minute

	// DefaultLockTimeout bounds how long a mutation waits for the lock.
	DefaultLockTimeout = 10 * time.Second

	pollInterval = 100 * time.Millisecond
)

// ErrLocked is returned when the lock cannot be acquired within the timeout.
// Callers surface it as "another skilldock operation is likely in progress",
// never retry indefinitely.
var ErrLocked = errors.New("LOCK_BUSY: state is locked by another skilldock process")

type attemptResult int

const (
	attemptAcquired attemptResult = iota
	attemptRetry
	attemptBusy
)

// FileLock guards the state document's mutation path.
type FileLock struct {
	path     string
	holderID string

	// Injection points for tests.
	now   func() time.Time
	alive func(pid int) bool
	sleep func(time.Duration)
}

func NewFileLock(path string) *FileLock {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return &FileLock{
		path:     path,
		holderID: fmt.Sprintf("%d@%s", os.Getpid(), host),
		now:      time.Now,
		alive:    processAlive,
		sleep:    time.Sleep,
	}
}

// Acquire blocks until the lock is held or timeout elapses, in which case it
// returns ErrLocked. Re-acquiring a lock already held by this process
// succeeds immediately.
func (l *FileLock) Acquire(timeout time.Duration) error {
	deadline := l.now().Add(timeout)
	for {
		res, err := l.tryAcquire()
		if err != nil {
			return fmt.Errorf("LOCK_ACQUIRE: %w", err)
		}
		switch res {
		case attemptAcquired:
			return nil
		case attemptRetry:
			// Marker was corrupt or reclaimable and has been removed; retry
			// without backing off.
		case attemptBusy:
			if !l.now().Before(deadline) {
				return ErrLocked
			}
			l.sleep(pollInterval)
		}
		if !l.now().Before(deadline) && res == attemptRetry {
			// A reclaim loop must still terminate.
			return ErrLocked
		}
	}
}

func (l *FileLock) tryAcquire() (attemptResult, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return attemptBusy, err
	}
	blob, err := json.Marshal(LockToken{HolderID: l.holderID, AcquiredAt: l.now().UTC()})
	if err != nil {
		return attemptBusy, err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		_, werr := f.Write(blob)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			_ = os.Remove(l.path)
			if werr == nil {
				werr = cerr
			}
			return attemptBusy, werr
		}
		return attemptAcquired, nil
	}
	if !os.IsExist(err) {
		return attemptBusy, err
	}

	raw, rerr := os.ReadFile(l.path)
	if rerr != nil {
		if os.IsNotExist(rerr) {
			// Holder released between our create attempt and the read.
			return attemptRetry, nil
		}
		return attemptBusy, rerr
	}
	var tok LockToken
	if uerr := json.Unmarshal(raw, &tok); uerr != nil || tok.HolderID == "" {
		// Corrupt marker: remove and retry immediately.
		_ = os.Remove(l.path)
		return attemptRetry, nil
	}
	if tok.HolderID == l.holderID {
		return attemptAcquired, nil
	}
	if !l.alive(holderPID(tok.HolderID)) || l.now().Sub(tok.AcquiredAt) > StaleAfter {
		_ = os.Remove(l.path)
		return attemptRetry, nil
	}
	return attemptBusy, nil
}

// Release removes the marker. A missing marker is not an error.
func (l *FileLock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("LOCK_RELEASE: %w", err)
	}
	return nil
}

// Holder returns the current marker, if any, without acquiring. Used by
// doctor to report stale locks.
func (l *FileLock) Holder() (LockToken, bool) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return LockToken{}, false
	}
	var tok LockToken
	if json.Unmarshal(raw, &tok) != nil || tok.HolderID == "" {
		return LockToken{}, false
	}
	return tok, true
}

// holderPID extracts the pid prefix from a "<pid>@<host>" holder id.
// Unparseable ids yield 0, which processAlive treats as dead.
func holderPID(holderID string) int {
	head, _, ok := strings.Cut(holderID, "@")
	if !ok {
		return 0
	}
	pid, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return pid
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
