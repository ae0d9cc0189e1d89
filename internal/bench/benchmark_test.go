package bench

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/morozRed/classlens/internal/archive"
	"github.com/morozRed/classlens/internal/classfile/classfiletest"
	"github.com/morozRed/classlens/internal/engine"
	"github.com/morozRed/classlens/internal/inheritance"
	"github.com/morozRed/classlens/internal/search"
	"github.com/morozRed/classlens/internal/store"
	"github.com/morozRed/classlens/internal/usage"
)

func BenchmarkUsageIndex_MediumArchive(b *testing.B) {
	arc := createSyntheticArchive(b, 250)
	path := filepath.Join(b.TempDir(), "usages.db")
	s, err := store.Open(store.Config{Path: path})
	if err != nil {
		b.Fatalf("open store: %v", err)
	}
	defer s.Close()

	idx := usage.New(usage.Config{
		Open:    func() (usage.Store, error) { return s, nil },
		Indexer: &engine.PoolIndexer{Prefixes: []string{"bench/"}},
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		stats, err := idx.Build(context.Background(), arc)
		if err != nil {
			b.Fatalf("build failed: %v", err)
		}
		if stats.Classes != arc.Len() {
			b.Fatalf("expected %d classes, got %d", arc.Len(), stats.Classes)
		}
	}
}

func BenchmarkInheritance_MediumArchive(b *testing.B) {
	arc := createSyntheticArchive(b, 250)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g, err := inheritance.Build(arc, nil)
		if err != nil {
			b.Fatalf("build failed: %v", err)
		}
		if len(g.Top(10)) != 10 {
			b.Fatalf("expected ranked classes")
		}
	}
}

func BenchmarkSearch_MediumArchive(b *testing.B) {
	index := search.Build(createSyntheticArchive(b, 250))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if len(search.Search(index, "service", 20)) == 0 {
			b.Fatalf("expected search results")
		}
	}
}

// createSyntheticArchive builds classes spread over ten packages. Each
// class extends the previous one in its package and references a field
// of a class in the next package.
func createSyntheticArchive(tb testing.TB, classes int) *archive.Archive {
	tb.Helper()

	name := func(i int) string {
		return fmt.Sprintf("bench/pkg%d/Service%03d", i%10, i)
	}
	entries := make([]archive.Entry, 0, classes)
	for i := 0; i < classes; i++ {
		c := classfiletest.Class{Name: name(i), Super: "java/lang/Object"}
		if i >= 10 {
			c.Super = name(i - 10)
		}
		c.FieldRefs = []classfiletest.Ref{{Owner: name((i + 1) % classes), Name: "value", Descriptor: "I"}}
		entries = append(entries, archive.NewEntry(archive.EntryPath(c.Name), classfiletest.Build(c)))
	}
	return archive.FromEntries("bench-v1", entries)
}
