// Package guard serializes the read-decide-commit sequence around the
// shared portfolio state. One global lock, never per-asset locks, so
// there is no lock ordering to get wrong across bots.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrTimeout is returned when the lock cannot be acquired within the
// configured bound. Callers translate it into a
// BLOCKED_CONCURRENT_UPDATE decision - fail closed, never stall.
var ErrTimeout = errors.New("guard: lock acquisition timed out")

// Config holds guard tuning.
type Config struct {
	// LockPath is the cross-process lock file, shared by every bot
	// process using the same data directory. Empty disables the file
	// layer (single-process deployments and tests).
	LockPath string
	// AcquireTimeout bounds the total wait for both lock layers.
	AcquireTimeout time.Duration
	// StaleAfter is the age at which a leftover lock file from a crashed
	// process is taken over.
	StaleAfter time.Duration
}

// Guard is the mutual-exclusion scope for allocation state. Two layers:
// a timed in-process mutex for goroutines within one process, and an
// exclusive lock file for separate bot processes sharing the data dir.
type Guard struct {
	sem      chan struct{}
	fileLock *fileLock
	timeout  time.Duration
	log      zerolog.Logger
}

// New creates a guard. Defaults: 5s acquire timeout, 1m stale lock age.
func New(cfg Config, log zerolog.Logger) *Guard {
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Minute
	}

	g := &Guard{
		sem:     make(chan struct{}, 1),
		timeout: cfg.AcquireTimeout,
		log:     log.With().Str("component", "guard").Logger(),
	}
	if cfg.LockPath != "" {
		g.fileLock = newFileLock(cfg.LockPath, cfg.StaleAfter)
	}
	return g
}

// Acquire takes the global lock, waiting at most the configured timeout.
// On success it returns a release function that must be called on every
// exit path. On timeout it returns ErrTimeout; a caller context that is
// cancelled or expires returns that context's error instead, so shutdown
// is never mistaken for lock contention.
func (g *Guard) Acquire(ctx context.Context) (func(), error) {
	caller := ctx
	if err := caller.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()

	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		if err := caller.Err(); err != nil {
			return nil, err
		}
		g.log.Warn().Dur("waited", time.Since(start)).Msg("In-process lock acquisition timed out")
		return nil, ErrTimeout
	}

	if g.fileLock != nil {
		if err := g.fileLock.acquire(ctx); err != nil {
			<-g.sem
			if cerr := caller.Err(); cerr != nil {
				return nil, cerr
			}
			if errors.Is(err, ErrTimeout) {
				g.log.Warn().Dur("waited", time.Since(start)).Msg("Lock file acquisition timed out")
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("guard: failed to acquire lock file: %w", err)
		}
	}

	g.log.Debug().Dur("waited", time.Since(start)).Msg("Lock acquired")

	released := false
	return func() {
		if released {
			return
		}
		released = true
		if g.fileLock != nil {
			g.fileLock.release()
		}
		<-g.sem
	}, nil
}
