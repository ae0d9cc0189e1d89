package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/morozRed/classlens/internal/archive"
	"github.com/morozRed/classlens/internal/cache"
	"github.com/morozRed/classlens/internal/config"
	"github.com/morozRed/classlens/internal/engine"
	"github.com/morozRed/classlens/internal/ignore"
	"github.com/morozRed/classlens/internal/pipeline"
	"github.com/morozRed/classlens/internal/session"
	"github.com/morozRed/classlens/internal/state"
	"github.com/morozRed/classlens/internal/store"
	"github.com/morozRed/classlens/internal/usage"
	"github.com/morozRed/classlens/internal/workers"
)

var errNoArchive = errors.New("no archive selected: pass --archive or run `classlens open <jar>`")

// app carries what one command invocation needs: configuration, the
// persisted state and lazily created components.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer
	asJSON bool

	archiveFlag string
	state       *state.State
	tabs        *session.Tabs

	cache *cache.Cache
	store *store.Store

	indexGuard  workers.Guard
	exportGuard workers.Guard
}

func newApp(cmd *cobra.Command) (*app, error) {
	configPath, err := OptionalStringFlag(cmd, "config")
	if err != nil {
		return nil, err
	}
	verbose, err := OptionalBoolFlag(cmd, "verbose")
	if err != nil {
		return nil, err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return nil, err
	}
	archiveFlag, err := OptionalStringFlag(cmd, "archive")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	a := &app{
		cfg:         cfg,
		logger:      logger,
		out:         cmd.OutOrStdout(),
		errOut:      cmd.ErrOrStderr(),
		asJSON:      asJSON,
		archiveFlag: archiveFlag,
	}
	if err := a.loadState(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) loadState() error {
	st, err := state.Load(a.cfg.Paths.State)
	if err != nil {
		if !IsCorruptStateError(err) {
			return fmt.Errorf("failed to load state: %w", err)
		}
		fmt.Fprintf(a.errOut, "warning: corrupt state file detected (%v); starting with an empty session\n", err)
		st = state.NewState()
	}
	a.state = st
	a.tabs = session.Restore(st.Session)
	return nil
}

func (a *app) saveState() error {
	a.state.Session = a.tabs.Snapshot()
	if err := a.state.Save(a.cfg.Paths.State); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// close releases the usage store, if it was opened.
func (a *app) close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing usage store failed", "error", err)
	}
	a.store = nil
}

func IsCorruptStateError(err error) bool {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr)
}

// loadArchive reads path and hides excluded entries. It leaves the
// state untouched.
func (a *app) loadArchive(path string) (*archive.Archive, error) {
	arc, err := archive.OpenFile(path, "")
	if err != nil {
		return nil, err
	}
	return ignore.NewMatcher(a.cfg.Exclude).Filter(arc), nil
}

// openArchive loads path, or the --archive flag, or the active archive,
// and records it as the active archive. Switching to another archive
// starts a fresh tab session.
func (a *app) openArchive(path string) (*archive.Archive, string, error) {
	if path == "" {
		path = a.archiveFlag
	}
	if path == "" {
		path = a.state.Active
	}
	if path == "" {
		return nil, "", errNoArchive
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve archive path %s: %w", path, err)
	}

	arc, err := a.loadArchive(abs)
	if err != nil {
		return nil, "", err
	}
	if a.state.Active != abs {
		a.tabs = session.New("")
	}
	if a.state.SetArchive(abs, arc.Version(), arc.Len(), len(arc.ClassNames())) {
		a.logger.Debug("archive content changed", "path", abs, "version", arc.Version())
	}
	return arc, abs, nil
}

// decompilationCache is shared by every pipeline of the invocation so
// that eviction sees all archive versions at once.
func (a *app) decompilationCache() *cache.Cache {
	if a.cache == nil {
		active := a.state.ActiveVersion()
		a.cache = cache.New(a.cfg.Cache.Capacity, cache.Policy{
			IsOpen:        func(key cache.Key) bool { return a.tabs.IsOpen(key.Entry) },
			ActiveVersion: func() string { return active },
		})
	}
	return a.cache
}

func (a *app) decompiler() engine.Decompiler {
	return &engine.ExecDecompiler{
		Command: a.cfg.Decompiler.Command,
		Timeout: a.cfg.DecompileTimeout(),
		Logger:  a.logger.With("component", "decompiler"),
	}
}

func (a *app) indexer() *engine.PoolIndexer {
	return &engine.PoolIndexer{Prefixes: a.cfg.Index.Prefixes}
}

func (a *app) newPipeline() *pipeline.Pipeline {
	return pipeline.New(pipeline.Config{
		Decompiler: a.decompiler(),
		Indexer:    a.indexer(),
		Cache:      a.decompilationCache(),
		Debounce:   a.cfg.Debounce(),
		Logger:     a.logger.With("component", "pipeline"),
	})
}

func (a *app) openStore() (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	if err := os.MkdirAll(a.cfg.Paths.State, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create state dir: %w", store.ErrUnavailable, err)
	}
	s, err := store.Open(store.Config{
		Path:   a.cfg.UsageDB(),
		Logger: a.logger.With("component", "store"),
	})
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

// claim reserves version for job across every classlens process
// sharing the state dir.
func (a *app) claim(ctx context.Context, version, job string) (func(), error) {
	s, err := a.openStore()
	if err != nil {
		return nil, err
	}
	return s.Begin(ctx, version, job)
}

func (a *app) usageIndex(progress *workers.Progress) *usage.Index {
	return usage.New(usage.Config{
		Open: func() (usage.Store, error) {
			s, err := a.openStore()
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		Indexer:  a.indexer(),
		Guard:    &a.indexGuard,
		Workers:  a.cfg.Workers,
		Progress: progress,
		Logger:   a.logger.With("component", "usage"),
	})
}
