// Package pipeline turns a stream of entry selections into decompiled
// artifacts. Selections are deduplicated and debounced, results are
// cached, and only the latest selection reaches Updates.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/morozRed/classlens/internal/archive"
	"github.com/morozRed/classlens/internal/cache"
	"github.com/morozRed/classlens/internal/engine"
	"github.com/morozRed/classlens/internal/token"
)

const DefaultDebounce = 250 * time.Millisecond

type State int

const (
	Idle State = iota
	Debouncing
	Fetching
	Done
	Error
)

func (s State) String() string {
	switch s {
	case Debouncing:
		return "debouncing"
	case Fetching:
		return "fetching"
	case Done:
		return "done"
	case Error:
		return "error"
	default:
		return "idle"
	}
}

// Request is one selection. Two requests are the same selection when
// archive version, entry and option set match.
type Request struct {
	Archive *archive.Archive
	Entry   string // entry path, e.g. "net/example/A.class"
	Options string // engine option set id
}

func (r Request) Key() cache.Key {
	version := ""
	if r.Archive != nil {
		version = r.Archive.Version()
	}
	options := r.Options
	if options == "" {
		options = engine.OptionsNormal
	}
	return cache.Key{Version: version, Entry: r.Entry, Options: options}
}

// Result is a published artifact tagged with the selection generation
// that produced it.
type Result struct {
	Generation uint64
	Key        cache.Key
	Artifact   token.Artifact
}

type Config struct {
	Decompiler engine.Decompiler
	Indexer    engine.Indexer // renders the bytecode option set
	Cache      *cache.Cache
	Clock      clockwork.Clock
	Debounce   time.Duration
	Logger     *slog.Logger
}

type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	last       cache.Key
	hasLast    bool
	generation uint64
	timer      clockwork.Timer
	state      State
	current    Result
	hasCurrent bool

	outstanding atomic.Int64
	inflight    singleflight.Group
	updates     chan Result
}

func New(cfg Config) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New(cache.DefaultCapacity, cache.Policy{})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		cfg:     cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		updates: make(chan Result, 1),
	}
}

// Select feeds a new selection. It returns false when the selection
// equals the previous one and was ignored. A pending selection that has
// not started yet is dropped.
func (p *Pipeline) Select(req Request) bool {
	key := req.Key()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hasLast && key == p.last {
		return false
	}
	p.last, p.hasLast = key, true
	p.generation++
	gen := p.generation

	p.outstanding.Add(1)
	if p.timer != nil && p.timer.Stop() {
		p.release()
	}
	p.state = Debouncing
	p.timer = p.cfg.Clock.AfterFunc(p.cfg.Debounce, func() {
		p.run(gen, req)
	})
	return true
}

func (p *Pipeline) run(gen uint64, req Request) {
	defer p.release()

	p.mu.Lock()
	if gen == p.generation {
		p.state = Fetching
	}
	p.mu.Unlock()

	artifact := p.Resolve(p.ctx, req)
	p.publish(Result{Generation: gen, Key: req.Key(), Artifact: artifact})
}

// publish replaces the displayed result when gen is still current and
// hands it to Updates, discarding an unread older result.
func (p *Pipeline) publish(result Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if result.Generation != p.generation {
		p.logger.Debug("dropping superseded result", "entry", result.Key.Entry, "generation", result.Generation)
		return
	}
	p.current, p.hasCurrent = result, true
	p.state = Done
	if result.Artifact.Failed() {
		p.state = Error
	}
	select {
	case <-p.updates:
	default:
	}
	p.updates <- result
}

func (p *Pipeline) release() {
	p.outstanding.Add(-1)
}

// Resolve produces the artifact for req synchronously: a cache hit is
// returned as is, otherwise the engine runs once per key even when
// several callers ask concurrently. Failures yield placeholder
// artifacts rather than errors.
func (p *Pipeline) Resolve(ctx context.Context, req Request) token.Artifact {
	key := req.Key()
	if artifact, ok := p.cfg.Cache.Get(key); ok {
		return artifact
	}

	v, _, _ := p.inflight.Do(key.String(), func() (any, error) {
		if artifact, ok := p.cfg.Cache.Get(key); ok {
			return artifact, nil
		}
		artifact, cacheable := p.produce(ctx, req, key.Options)
		if cacheable {
			p.cfg.Cache.Put(key, artifact)
		}
		return artifact, nil
	})
	return v.(token.Artifact)
}

func (p *Pipeline) produce(ctx context.Context, req Request, options string) (token.Artifact, bool) {
	if options == engine.OptionsBytecode {
		return p.bytecode(ctx, req)
	}

	arc := req.Archive
	if arc == nil {
		return token.NotFound(req.Entry), true
	}
	if _, ok := arc.Entry(req.Entry); !ok || !strings.HasSuffix(req.Entry, archive.ClassSuffix) {
		p.logger.Warn("class not found", "entry", req.Entry, "version", arc.Version())
		return token.NotFound(req.Entry), true
	}
	if p.cfg.Decompiler == nil {
		return token.DecompileError(req.Entry, fmt.Errorf("%w: no decompiler configured", engine.ErrDecode)), false
	}
	flags, err := engine.OptionSet(options)
	if err != nil {
		return token.DecompileError(req.Entry, err), false
	}

	classNames := arc.ClassNames()
	names := make([]string, 0, len(classNames))
	for _, name := range classNames {
		names = append(names, archive.ClassName(name))
	}

	collector := &token.Collector{}
	start := time.Now()
	source, err := p.cfg.Decompiler.Decompile(ctx, archive.ClassName(req.Entry), engine.Input{
		Resolve: func(className string) ([]byte, bool) {
			data, err := arc.Bytes(archive.EntryPath(className))
			return data, err == nil
		},
		Names:   names,
		Options: flags,
		Visitor: collector,
	})
	if err != nil {
		p.logger.Warn("decompilation failed", "entry", req.Entry, "error", err)
		return token.DecompileError(req.Entry, err), !isCanceled(err)
	}
	p.logger.Debug("decompiled", "entry", req.Entry, "tokens", len(collector.Tokens), "elapsed", time.Since(start))

	return token.Artifact{
		Entry:  req.Entry,
		Source: source,
		Tokens: token.WithImports(source, collector.Tokens),
		Kind:   token.Source,
	}, true
}

// bytecode dumps the entry followed by its Outer$* entries in name order.
func (p *Pipeline) bytecode(ctx context.Context, req Request) (token.Artifact, bool) {
	arc := req.Archive
	if arc == nil {
		missing := token.NotFound(req.Entry)
		missing.Kind = token.RawBytecode
		return missing, true
	}
	data, err := arc.Bytes(req.Entry)
	if err != nil || !strings.HasSuffix(req.Entry, archive.ClassSuffix) {
		missing := token.NotFound(req.Entry)
		missing.Kind = token.RawBytecode
		return missing, true
	}
	if p.cfg.Indexer == nil {
		return token.BytecodeError(req.Entry, errors.New("no indexer configured")), false
	}

	classes := [][]byte{data}
	for _, nested := range arc.Nested(req.Entry) {
		nestedData, err := arc.Bytes(nested)
		if err != nil {
			return token.BytecodeError(req.Entry, err), true
		}
		classes = append(classes, nestedData)
	}
	text, err := p.cfg.Indexer.Dump(ctx, classes)
	if err != nil {
		p.logger.Warn("bytecode dump failed", "entry", req.Entry, "error", err)
		return token.BytecodeError(req.Entry, err), !isCanceled(err)
	}
	return token.Artifact{Entry: req.Entry, Source: text, Tokens: []token.Token{}, Kind: token.RawBytecode}, true
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Updates delivers the latest visible result. Older unread results are
// replaced, never queued.
func (p *Pipeline) Updates() <-chan Result { return p.updates }

// Outstanding is the number of accepted selections whose work has not
// finished or been dropped.
func (p *Pipeline) Outstanding() int { return int(p.outstanding.Load()) }

func (p *Pipeline) Busy() bool { return p.Outstanding() > 0 }

// Current returns the displayed result, if any.
func (p *Pipeline) Current() (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.hasCurrent
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close drops a pending selection and cancels in-flight engine calls.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.timer != nil && p.timer.Stop() {
		p.release()
	}
	p.timer = nil
	p.state = Idle
	p.mu.Unlock()
	p.cancel()
}
