package guard

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"syscall"
	"time"
)

// lockPollInterval is how often a blocked process re-attempts the
// exclusive create while waiting for the holder to release.
const lockPollInterval = 50 * time.Millisecond

// lockPayload is written into the lock file so an operator (or the
// stale-lock takeover) can see who held it and since when.
type lockPayload struct {
	Pid        int   `json:"pid"`
	AcquiredMs int64 `json:"acquired_ms"`
}

// fileLock is an exclusive-create lock file. O_EXCL makes creation
// atomic on POSIX filesystems. The holder refreshes the file's mtime on
// a heartbeat while working, and takeover requires both a stale mtime
// and a dead holder pid, so a live decision waiting on a slow broker is
// never preempted.
type fileLock struct {
	path       string
	staleAfter time.Duration
	stopBeat   chan struct{}
	beatDone   chan struct{}
}

func newFileLock(path string, staleAfter time.Duration) *fileLock {
	return &fileLock{path: path, staleAfter: staleAfter}
}

func (l *fileLock) acquire(ctx context.Context) error {
	for {
		ok, err := l.tryAcquire()
		if err != nil {
			return err
		}
		if ok {
			l.startHeartbeat()
			return nil
		}

		l.reapStale()

		select {
		case <-time.After(lockPollInterval):
		case <-ctx.Done():
			return ErrTimeout
		}
	}
}

func (l *fileLock) tryAcquire() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	payload := lockPayload{
		Pid:        os.Getpid(),
		AcquiredMs: time.Now().UnixMilli(),
	}
	// Best effort: the lock is held by the file's existence, not its body.
	_ = json.NewEncoder(f).Encode(payload)
	return true, nil
}

// startHeartbeat keeps the lock file's mtime fresh while the lock is
// held, well inside the stale threshold.
func (l *fileLock) startHeartbeat() {
	l.stopBeat = make(chan struct{})
	l.beatDone = make(chan struct{})

	interval := l.staleAfter / 4
	if interval < lockPollInterval/2 {
		interval = lockPollInterval / 2
	}

	go func() {
		defer close(l.beatDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				now := time.Now()
				_ = os.Chtimes(l.path, now, now)
			case <-l.stopBeat:
				return
			}
		}
	}()
}

// reapStale takes over a lock file left behind by a crashed holder.
// Age alone is not proof of death: the mtime must be past staleAfter
// despite the holder heartbeat, and the recorded pid must be gone.
func (l *fileLock) reapStale() {
	info, err := os.Stat(l.path)
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) <= l.staleAfter {
		return
	}
	if pid, ok := l.holderPid(); ok && pidAlive(pid) {
		return
	}
	_ = os.Remove(l.path)
}

func (l *fileLock) holderPid() (int, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, false
	}
	var payload lockPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Pid <= 0 {
		return 0, false
	}
	return payload.Pid, true
}

// pidAlive reports whether a process with the given pid exists.
// EPERM means the pid exists but belongs to another user.
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func (l *fileLock) release() {
	if l.stopBeat != nil {
		close(l.stopBeat)
		<-l.beatDone
		l.stopBeat = nil
	}
	_ = os.Remove(l.path)
}
