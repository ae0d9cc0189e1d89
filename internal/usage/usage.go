// Package usage builds and queries the persistent cross-reference index
// of an archive version.
package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morozRed/classlens/internal/archive"
	"github.com/morozRed/classlens/internal/engine"
	"github.com/morozRed/classlens/internal/workers"
)

// Store is the persistent side of the index. *store.Store satisfies it.
type Store interface {
	// Begin claims version for a build across processes, failing with
	// workers.ErrBusy while another build holds it.
	Begin(ctx context.Context, version, job string) (release func(), err error)
	Clear(ctx context.Context, version string) error
	Put(ctx context.Context, version string, batch map[string]map[string]struct{}) error
	Lookup(ctx context.Context, version, subject string) ([]string, error)
	MarkComplete(ctx context.Context, version string) error
	Complete(ctx context.Context, version string) (bool, error)
}

const jobIndex = "index"

type Config struct {
	// Open returns the store. It is called on first use and retried
	// after a failure; a successful store is kept for the process.
	Open func() (Store, error)

	Indexer  engine.Indexer
	Guard    *workers.Guard
	Workers  int
	Progress *workers.Progress
	Logger   *slog.Logger
}

// Stats summarizes one build.
type Stats struct {
	Version  string        `json:"version"`
	Classes  int           `json:"classes"`
	Duration time.Duration `json:"duration"`
}

type Index struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	store Store
}

func New(cfg Config) *Index {
	if cfg.Guard == nil {
		cfg.Guard = &workers.Guard{}
	}
	if cfg.Indexer == nil {
		cfg.Indexer = &engine.PoolIndexer{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Index{cfg: cfg, logger: logger}
}

func (x *Index) open() (Store, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.store != nil {
		return x.store, nil
	}
	if x.cfg.Open == nil {
		return nil, errors.New("usage index has no store")
	}
	s, err := x.cfg.Open()
	if err != nil {
		return nil, err
	}
	x.store = s
	return s, nil
}

// Build clears the version's usages and re-indexes every class entry of
// arc. The version is claimed in-process through the guard and across
// processes through the store; either failing yields workers.ErrBusy. On failure the partial table is cleared again so no partial index
// survives. A failure to open the store leaves prior data untouched.
func (x *Index) Build(ctx context.Context, arc *archive.Archive) (Stats, error) {
	version := arc.Version()
	stats := Stats{Version: version}

	release, err := x.cfg.Guard.Acquire(version)
	if err != nil {
		return stats, err
	}
	defer release()

	s, err := x.open()
	if err != nil {
		return stats, err
	}
	unclaim, err := s.Begin(ctx, version, jobIndex)
	if err != nil {
		return stats, err
	}
	defer unclaim()

	if err := s.Clear(ctx, version); err != nil {
		return stats, fmt.Errorf("failed to clear usages for %s: %w", version, err)
	}

	started := time.Now()
	classes := arc.ClassNames()
	completed, err := workers.Run(ctx, workers.Options{
		Workers:  x.cfg.Workers,
		Progress: x.cfg.Progress,
		Logger:   x.logger,
	}, classes, func(int) (workers.Unit, error) {
		return &batcher{
			arc:     arc,
			indexer: x.cfg.Indexer,
			store:   s,
			version: version,
			edges:   make(map[string]map[string]struct{}),
		}, nil
	})
	stats.Classes = completed
	if err == nil {
		err = s.MarkComplete(ctx, version)
	}
	if err != nil {
		if clearErr := s.Clear(context.WithoutCancel(ctx), version); clearErr != nil {
			x.logger.Warn("failed to discard partial usages", "version", version, "error", clearErr)
		}
		return stats, fmt.Errorf("failed to index %s: %w", version, err)
	}

	stats.Duration = time.Since(started)
	x.logger.Info("usage index built", "version", version, "classes", completed, "duration", stats.Duration)
	return stats, nil
}

// Usages returns the locators recorded for subject in version.
func (x *Index) Usages(ctx context.Context, version, subject string) ([]string, error) {
	s, err := x.open()
	if err != nil {
		return nil, err
	}
	return s.Lookup(ctx, version, subject)
}

// Indexed reports whether the last build of version completed.
func (x *Index) Indexed(ctx context.Context, version string) (bool, error) {
	s, err := x.open()
	if err != nil {
		return false, err
	}
	return s.Complete(ctx, version)
}

// Busy reports whether a build of version is running.
func (x *Index) Busy(version string) bool {
	return x.cfg.Guard.Active(version)
}

// batcher is one worker's unit: it gathers edges in memory and writes
// them in a single Put when the worker drains.
type batcher struct {
	arc     *archive.Archive
	indexer engine.Indexer
	store   Store
	version string
	edges   map[string]map[string]struct{}
}

func (b *batcher) Process(ctx context.Context, entry string) error {
	data, err := b.arc.Bytes(entry)
	if err != nil {
		return err
	}
	return b.indexer.Index(ctx, data, b)
}

func (b *batcher) Flush(ctx context.Context) error {
	return b.store.Put(ctx, b.version, b.edges)
}

func (b *batcher) add(subject, locator string) {
	set, ok := b.edges[subject]
	if !ok {
		set = make(map[string]struct{})
		b.edges[subject] = set
	}
	set[locator] = struct{}{}
}

func (b *batcher) AddClassUsage(class, locator string)   { b.add(class, locator) }
func (b *batcher) AddMethodUsage(method, locator string) { b.add(method, locator) }
func (b *batcher) AddFieldUsage(field, locator string)   { b.add(field, locator) }
