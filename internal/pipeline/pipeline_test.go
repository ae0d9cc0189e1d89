package pipeline

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/morozRed/classlens/internal/archive"
	"github.com/morozRed/classlens/internal/cache"
	"github.com/morozRed/classlens/internal/classfile/classfiletest"
	"github.com/morozRed/classlens/internal/engine"
	"github.com/morozRed/classlens/internal/token"
)

func testArchive(version string) *archive.Archive {
	build := func(name string) archive.Entry {
		return archive.NewEntry(name+".class", classfiletest.Build(classfiletest.Class{Name: name, Super: "java/lang/Object"}))
	}
	return archive.FromEntries(version, []archive.Entry{
		build("a/A"),
		build("a/A$1"),
		build("a/A$Inner"),
		build("a/B"),
		build("a/C"),
		archive.NewEntry("META-INF/MANIFEST.MF", []byte("Manifest-Version: 1.0\n")),
	})
}

// fakeDecompiler renders "class <name>" with an import line and emits
// tokens in reverse order.
type fakeDecompiler struct {
	calls atomic.Int64
	mu    sync.Mutex
	seen  []string
	fail  map[string]error
	hook  func(className string)
}

func (f *fakeDecompiler) Decompile(_ context.Context, className string, in engine.Input) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, className)
	f.mu.Unlock()
	if f.hook != nil {
		f.hook(className)
	}
	if err := f.fail[className]; err != nil {
		return "", err
	}
	if _, ok := in.Resolve(className); !ok {
		return "", errors.New("unresolvable")
	}
	source := "import a.B;\n\nclass " + className + " {\n}\n"
	declStart := strings.Index(source, "class ") + len("class ")
	in.Visitor.VisitMethod(declStart+len(className)+3, 1, false, className, "m", "()V")
	in.Visitor.VisitClass(declStart, len(className), true, className)
	return source, nil
}

func newTestPipeline(t *testing.T, d engine.Decompiler) (*Pipeline, *clockwork.FakeClock) {
	t.Helper()
	fake := clockwork.NewFakeClockAt(time.Unix(0, 0))
	p := New(Config{
		Decompiler: d,
		Indexer:    &engine.PoolIndexer{},
		Cache:      cache.New(10, cache.Policy{}),
		Clock:      fake,
	})
	t.Cleanup(p.Close)
	return p, fake
}

func receive(t *testing.T, p *Pipeline) Result {
	t.Helper()
	select {
	case result := <-p.Updates():
		return result
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a result")
		return Result{}
	}
}

// waitFor polls cond, since fake clock callbacks run on their own
// goroutine.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitIdle(t *testing.T, p *Pipeline) {
	t.Helper()
	waitFor(t, "an idle pipeline", func() bool { return !p.Busy() })
}

func TestBurstOnlyDecompilesLastSelection(t *testing.T) {
	d := &fakeDecompiler{}
	p, fake := newTestPipeline(t, d)
	arc := testArchive("v1")

	p.Select(Request{Archive: arc, Entry: "a/A.class"})
	fake.Advance(100 * time.Millisecond)
	p.Select(Request{Archive: arc, Entry: "a/B.class"})
	fake.Advance(100 * time.Millisecond)
	p.Select(Request{Archive: arc, Entry: "a/C.class"})

	if p.Outstanding() != 1 || !p.Busy() {
		t.Fatalf("expected one outstanding selection, got %d", p.Outstanding())
	}
	if p.State() != Debouncing {
		t.Fatalf("expected debouncing, got %v", p.State())
	}

	fake.Advance(DefaultDebounce)
	result := receive(t, p)
	if result.Artifact.Entry != "a/C.class" {
		t.Fatalf("expected a/C.class, got %q", result.Artifact.Entry)
	}
	if d.calls.Load() != 1 {
		t.Fatalf("expected one engine call, got %d", d.calls.Load())
	}
	waitIdle(t, p)
	if p.Outstanding() != 0 || p.Busy() {
		t.Fatalf("expected idle pipeline, outstanding=%d", p.Outstanding())
	}
	if p.State() != Done {
		t.Fatalf("expected done, got %v", p.State())
	}
}

func TestDuplicateSelectionIsIgnored(t *testing.T) {
	p, fake := newTestPipeline(t, &fakeDecompiler{})
	arc := testArchive("v1")

	if !p.Select(Request{Archive: arc, Entry: "a/A.class"}) {
		t.Fatalf("expected first selection accepted")
	}
	if p.Select(Request{Archive: arc, Entry: "a/A.class", Options: engine.OptionsNormal}) {
		t.Fatalf("expected equal selection ignored")
	}
	if !p.Select(Request{Archive: arc, Entry: "a/A.class", Options: engine.OptionsLambdas}) {
		t.Fatalf("expected a different option set accepted")
	}
	fake.Advance(DefaultDebounce)
	if got := receive(t, p).Key.Options; got != engine.OptionsLambdas {
		t.Fatalf("expected lambdas result, got %q", got)
	}
	waitIdle(t, p)
	if p.Outstanding() != 0 {
		t.Fatalf("expected counter back at zero, got %d", p.Outstanding())
	}
}

func TestCacheHitSkipsEngine(t *testing.T) {
	d := &fakeDecompiler{}
	p, fake := newTestPipeline(t, d)
	arc := testArchive("v1")

	p.Select(Request{Archive: arc, Entry: "a/A.class"})
	fake.Advance(DefaultDebounce)
	first := receive(t, p)
	p.Select(Request{Archive: arc, Entry: "a/B.class"})
	fake.Advance(DefaultDebounce)
	receive(t, p)
	p.Select(Request{Archive: arc, Entry: "a/A.class"})
	fake.Advance(DefaultDebounce)
	again := receive(t, p)

	if d.calls.Load() != 2 {
		t.Fatalf("expected 2 engine calls, got %d", d.calls.Load())
	}
	if !reflect.DeepEqual(first.Artifact, again.Artifact) {
		t.Fatalf("expected cached artifact to match")
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	arc := testArchive("v1")
	req := Request{Archive: arc, Entry: "a/A.class"}

	p1, _ := newTestPipeline(t, &fakeDecompiler{})
	p2, _ := newTestPipeline(t, &fakeDecompiler{})
	a := p1.Resolve(context.Background(), req)
	b := p2.Resolve(context.Background(), req)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical artifacts:\n%+v\n%+v", a, b)
	}
	if c := p1.Resolve(context.Background(), req); !reflect.DeepEqual(a, c) {
		t.Fatalf("expected identical artifact on repeat")
	}
}

func TestTokensSortedAfterImportMerge(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeDecompiler{})
	artifact := p.Resolve(context.Background(), Request{Archive: testArchive("v1"), Entry: "a/A.class"})

	if len(artifact.Tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %+v", artifact.Tokens)
	}
	if !token.IsSorted(artifact.Tokens) {
		t.Fatalf("expected sorted tokens, got %+v", artifact.Tokens)
	}
	first := artifact.Tokens[0]
	if first.Owner != "a/B" || first.Declaration || artifact.Source[first.Start:first.End()] != "B" {
		t.Fatalf("expected import token first, got %+v", first)
	}
}

func TestEngineFailureBecomesPlaceholder(t *testing.T) {
	d := &fakeDecompiler{fail: map[string]error{"a/A": errors.New("bad bytecode")}}
	p, fake := newTestPipeline(t, d)
	arc := testArchive("v1")

	p.Select(Request{Archive: arc, Entry: "a/A.class"})
	fake.Advance(DefaultDebounce)
	result := receive(t, p)
	if result.Artifact.Source != "// Error during decompilation: bad bytecode" || len(result.Artifact.Tokens) != 0 {
		t.Fatalf("unexpected artifact %+v", result.Artifact)
	}
	waitIdle(t, p)
	if p.State() != Error || p.Outstanding() != 0 {
		t.Fatalf("expected error state and idle counter, got %v %d", p.State(), p.Outstanding())
	}

	p.Select(Request{Archive: arc, Entry: "a/B.class"})
	fake.Advance(DefaultDebounce)
	if got := receive(t, p).Artifact; got.Failed() {
		t.Fatalf("expected pipeline to recover, got %+v", got)
	}
}

func TestMissingEntryBecomesPlaceholder(t *testing.T) {
	d := &fakeDecompiler{}
	p, _ := newTestPipeline(t, d)
	artifact := p.Resolve(context.Background(), Request{Archive: testArchive("v1"), Entry: "a/Missing.class"})
	if artifact.Source != "// Class not found: a/Missing.class" {
		t.Fatalf("unexpected artifact %+v", artifact)
	}
	if d.calls.Load() != 0 {
		t.Fatalf("expected engine untouched")
	}
}

func TestSupersededResultIsCachedButNotPublished(t *testing.T) {
	arc := testArchive("v1")
	d := &fakeDecompiler{}
	p, fake := newTestPipeline(t, d)
	d.hook = func(className string) {
		if className == "a/A" {
			p.Select(Request{Archive: arc, Entry: "a/B.class"})
		}
	}

	p.Select(Request{Archive: arc, Entry: "a/A.class"})
	fake.Advance(DefaultDebounce)
	key := Request{Archive: arc, Entry: "a/A.class"}.Key()
	waitFor(t, "the superseded run to finish", func() bool {
		_, cached := p.cfg.Cache.Get(key)
		return cached && p.Outstanding() == 1
	})
	select {
	case result := <-p.Updates():
		t.Fatalf("expected stale result suppressed, got %q", result.Artifact.Entry)
	default:
	}
	if _, ok := p.cfg.Cache.Get(key); !ok {
		t.Fatalf("expected stale result cached")
	}
	if _, ok := p.Current(); ok {
		t.Fatalf("expected nothing displayed yet")
	}

	fake.Advance(DefaultDebounce)
	if got := receive(t, p).Artifact.Entry; got != "a/B.class" {
		t.Fatalf("expected a/B.class, got %q", got)
	}
	waitIdle(t, p)
	if p.Outstanding() != 0 {
		t.Fatalf("expected idle counter, got %d", p.Outstanding())
	}
}

func TestConcurrentResolveRunsEngineOnce(t *testing.T) {
	release := make(chan struct{})
	d := &fakeDecompiler{hook: func(string) { <-release }}
	p, _ := newTestPipeline(t, d)
	req := Request{Archive: testArchive("v1"), Entry: "a/A.class"}

	var wg sync.WaitGroup
	results := make([]token.Artifact, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Resolve(context.Background(), req)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if d.calls.Load() != 1 {
		t.Fatalf("expected one engine call, got %d", d.calls.Load())
	}
	for _, result := range results[1:] {
		if !reflect.DeepEqual(result, results[0]) {
			t.Fatalf("expected identical results")
		}
	}
}

func TestBytecodeIncludesNestedClassesInOrder(t *testing.T) {
	d := &fakeDecompiler{}
	p, _ := newTestPipeline(t, d)
	artifact := p.Resolve(context.Background(), Request{Archive: testArchive("v1"), Entry: "a/A.class", Options: engine.OptionsBytecode})

	if artifact.Kind != token.RawBytecode || len(artifact.Tokens) != 0 {
		t.Fatalf("unexpected artifact %+v", artifact)
	}
	outer := strings.Index(artifact.Source, "class a/A extends")
	anon := strings.Index(artifact.Source, "class a/A$1 extends")
	inner := strings.Index(artifact.Source, "class a/A$Inner extends")
	if outer < 0 || anon < outer || inner < anon {
		t.Fatalf("expected outer, $1, $Inner in order:\n%s", artifact.Source)
	}
	if strings.Contains(artifact.Source, "a/B") {
		t.Fatalf("expected unrelated classes excluded")
	}
	if d.calls.Load() != 0 {
		t.Fatalf("expected decompiler untouched for bytecode view")
	}

	missing := p.Resolve(context.Background(), Request{Archive: testArchive("v1"), Entry: "a/Z.class", Options: engine.OptionsBytecode})
	if missing.Kind != token.RawBytecode || !missing.Failed() {
		t.Fatalf("unexpected missing bytecode artifact %+v", missing)
	}
}

func TestCloseDropsPendingSelection(t *testing.T) {
	d := &fakeDecompiler{}
	fake := clockwork.NewFakeClockAt(time.Unix(0, 0))
	p := New(Config{Decompiler: d, Clock: fake})
	p.Select(Request{Archive: testArchive("v1"), Entry: "a/A.class"})
	p.Close()
	fake.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)
	if d.calls.Load() != 0 || p.Outstanding() != 0 {
		t.Fatalf("expected dropped selection, calls=%d outstanding=%d", d.calls.Load(), p.Outstanding())
	}
}
