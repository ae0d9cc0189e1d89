// Package workers processes every entry of an archive across a fixed
// pool of independent units pulling from one shared stack.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

var ErrBusy = errors.New("a run is already in progress for this version")

// Unit is one worker's private processor. It is built once per worker
// and never shared.
type Unit interface {
	Process(ctx context.Context, entry string) error
}

// Flusher is implemented by units that batch results. Flush runs once
// after the unit's loop drains the stack.
type Flusher interface {
	Flush(ctx context.Context) error
}

type Options struct {
	Workers  int
	Progress *Progress
	Logger   *slog.Logger
}

// DefaultWorkers is the hardware parallelism, or 4 when unknown.
func DefaultWorkers() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 4
}

// stack hands out entries last-in first-out.
type stack struct {
	mu      sync.Mutex
	entries []string
}

func (s *stack) pop() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return "", false
	}
	last := len(s.entries) - 1
	entry := s.entries[last]
	s.entries = s.entries[:last]
	return entry, true
}

// Run processes every entry exactly once and returns the number of
// completed entries. The first unit error cancels the remaining workers
// and fails the run. Progress is reset to Idle when Run returns.
func Run(ctx context.Context, opts Options, entries []string, newUnit func(worker int) (Unit, error)) (int, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	progress := opts.Progress
	if progress == nil {
		progress = NewProgress()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	defer progress.Reset()
	progress.Set(0)

	total := len(entries)
	tasks := &stack{entries: append([]string(nil), entries...)}
	var (
		mu        sync.Mutex
		completed int
	)

	units := make([]Unit, workers)
	for i := range units {
		unit, err := newUnit(i)
		if err != nil {
			return 0, fmt.Errorf("failed to start worker %d: %w", i, err)
		}
		units[i] = unit
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, unit := range units {
		g.Go(func() error {
			processed := 0
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				entry, ok := tasks.pop()
				if !ok {
					break
				}
				if err := unit.Process(gctx, entry); err != nil {
					return fmt.Errorf("failed to process %s: %w", entry, err)
				}
				processed++

				mu.Lock()
				completed++
				percent := Percent(completed, total)
				mu.Unlock()
				progress.Set(percent)
			}
			if flusher, ok := unit.(Flusher); ok {
				if err := flusher.Flush(gctx); err != nil {
					return fmt.Errorf("failed to flush worker %d: %w", i, err)
				}
			}
			logger.Debug("worker drained", "worker", i, "processed", processed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return completed, err
	}
	progress.Set(100)
	return completed, nil
}

// Guard allows one run per archive version at a time.
type Guard struct {
	mu     sync.Mutex
	active map[string]bool
}

// Acquire claims version or fails with ErrBusy. The returned release
// must be called when the run ends.
func (g *Guard) Acquire(version string) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		g.active = make(map[string]bool)
	}
	if g.active[version] {
		return nil, fmt.Errorf("%w: %s", ErrBusy, version)
	}
	g.active[version] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			delete(g.active, version)
		})
	}, nil
}

// Active reports whether version has a run in flight.
func (g *Guard) Active(version string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[version]
}
