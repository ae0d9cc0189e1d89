package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

type countingUnit struct {
	seen    *sync.Map
	count   *atomic.Int64
	flushed *atomic.Int64
	fail    string
}

func (u *countingUnit) Process(_ context.Context, entry string) error {
	if entry == u.fail {
		return errors.New("boom")
	}
	if _, loaded := u.seen.LoadOrStore(entry, true); loaded {
		return fmt.Errorf("entry %s processed twice", entry)
	}
	u.count.Add(1)
	return nil
}

func (u *countingUnit) Flush(context.Context) error {
	u.flushed.Add(1)
	return nil
}

func entries(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("e%03d.class", i)
	}
	return out
}

func TestRunProcessesEveryEntryOnce(t *testing.T) {
	for _, workers := range []int{1, 4, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			const n = 137
			var (
				seen    sync.Map
				count   atomic.Int64
				flushed atomic.Int64
				mu      sync.Mutex
				values  []int
			)
			progress := NewProgress()
			cancel := progress.Subscribe(func(v int) {
				mu.Lock()
				values = append(values, v)
				mu.Unlock()
			})
			defer cancel()

			completed, err := Run(context.Background(), Options{Workers: workers, Progress: progress}, entries(n), func(int) (Unit, error) {
				return &countingUnit{seen: &seen, count: &count, flushed: &flushed}, nil
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if completed != n || count.Load() != n {
				t.Fatalf("expected %d completed, got %d (processed %d)", n, completed, count.Load())
			}
			if flushed.Load() != int64(workers) {
				t.Fatalf("expected %d flushes, got %d", workers, flushed.Load())
			}

			mu.Lock()
			defer mu.Unlock()
			if len(values) < 2 || values[len(values)-1] != Idle {
				t.Fatalf("expected run to end idle, got %v", values)
			}
			run := values[:len(values)-1]
			if run[len(run)-1] != 100 {
				t.Fatalf("expected final progress 100, got %v", run)
			}
			for i := 1; i < len(run); i++ {
				if run[i] < run[i-1] {
					t.Fatalf("progress regressed: %v", run)
				}
			}
			if progress.Value() != Idle {
				t.Fatalf("expected idle progress after run, got %d", progress.Value())
			}
		})
	}
}

func TestRunPopsFromTheEnd(t *testing.T) {
	var order []string
	unit := unitFunc(func(_ context.Context, entry string) error {
		order = append(order, entry)
		return nil
	})
	_, err := Run(context.Background(), Options{Workers: 1}, []string{"a", "b", "c"}, func(int) (Unit, error) {
		return unit, nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fmt.Sprint(order) != "[c b a]" {
		t.Fatalf("expected stack order, got %v", order)
	}
}

type unitFunc func(ctx context.Context, entry string) error

func (f unitFunc) Process(ctx context.Context, entry string) error { return f(ctx, entry) }

func TestRunFailsOnFirstError(t *testing.T) {
	var (
		seen    sync.Map
		count   atomic.Int64
		flushed atomic.Int64
	)
	progress := NewProgress()
	_, err := Run(context.Background(), Options{Workers: 4, Progress: progress}, entries(50), func(int) (Unit, error) {
		return &countingUnit{seen: &seen, count: &count, flushed: &flushed, fail: "e010.class"}, nil
	})
	if err == nil || err.Error() != "failed to process e010.class: boom" {
		t.Fatalf("expected wrapped unit error, got %v", err)
	}
	if progress.Value() != Idle {
		t.Fatalf("expected idle progress after failure, got %d", progress.Value())
	}
}

func TestRunFailsWhenUnitCannotStart(t *testing.T) {
	_, err := Run(context.Background(), Options{Workers: 2}, entries(3), func(worker int) (Unit, error) {
		return nil, errors.New("no engine")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunEmptyEntries(t *testing.T) {
	completed, err := Run(context.Background(), Options{Workers: 3}, nil, func(int) (Unit, error) {
		return unitFunc(func(context.Context, string) error { return nil }), nil
	})
	if err != nil || completed != 0 {
		t.Fatalf("expected empty run to succeed, got %d %v", completed, err)
	}
}

func TestProgressIgnoresRegressions(t *testing.T) {
	p := NewProgress()
	if p.Value() != Idle {
		t.Fatalf("expected idle start")
	}
	p.Set(10)
	if p.Set(5) {
		t.Fatalf("expected regression ignored")
	}
	if p.Value() != 10 {
		t.Fatalf("expected 10, got %d", p.Value())
	}
	p.Reset()
	if p.Value() != Idle {
		t.Fatalf("expected idle after reset")
	}
}

func TestPercentRounds(t *testing.T) {
	cases := map[[2]int]int{{1, 3}: 33, {2, 3}: 67, {3, 3}: 100, {0, 7}: 0, {0, 0}: 100}
	for in, want := range cases {
		if got := Percent(in[0], in[1]); got != want {
			t.Fatalf("Percent(%d, %d) = %d, want %d", in[0], in[1], got, want)
		}
	}
}

func TestGuardRejectsConcurrentRun(t *testing.T) {
	var g Guard
	release, err := g.Acquire("v1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := g.Acquire("v1"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	other, err := g.Acquire("v2")
	if err != nil {
		t.Fatalf("expected other version allowed, got %v", err)
	}
	other()
	release()
	release()
	if g.Active("v1") {
		t.Fatalf("expected v1 released")
	}
	if _, err := g.Acquire("v1"); err != nil {
		t.Fatalf("expected reacquire after release, got %v", err)
	}
}
