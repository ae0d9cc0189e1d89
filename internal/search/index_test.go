package search

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/morozRed/classlens/internal/archive"
)

func classArchive(names ...string) *archive.Archive {
	entries := make([]archive.Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, archive.NewEntry(archive.EntryPath(name), []byte(name)))
	}
	entries = append(entries, archive.NewEntry("META-INF/MANIFEST.MF", []byte("Manifest-Version: 1.0\n")))
	return archive.FromEntries("v1", entries)
}

func ids(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.ID)
	}
	return out
}

func TestSearchPrefersSubstringMatches(t *testing.T) {
	index := Build(classArchive(
		"net/example/block/Block",
		"net/example/block/BlockState",
		"net/example/world/World",
		"net/example/block/entity/BlockEntity$Ticker",
	))
	if index.DocumentCount != 4 {
		t.Fatalf("expected 4 class documents, got %d", index.DocumentCount)
	}

	results := Search(index, "block", 10)
	got := ids(results)
	if len(got) != 3 || got[0] != "net/example/block/Block" {
		t.Fatalf("expected exact simple name first among block classes, got %v", got)
	}
	for _, id := range got {
		if id == "net/example/world/World" {
			t.Fatalf("unexpected World in %v", got)
		}
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	index := Build(classArchive("a/HttpURLConnection", "a/Other"))
	got := ids(Search(index, "urlconn", 10))
	if fmt.Sprint(got) != "[a/HttpURLConnection]" {
		t.Fatalf("unexpected results %v", got)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	index := Build(classArchive("a/B"))
	if results := Search(index, "  ", 10); results != nil {
		t.Fatalf("expected no results for empty query, got %v", results)
	}
}

func TestSearchCapsResults(t *testing.T) {
	names := make([]string, 0, 150)
	for i := range 150 {
		names = append(names, fmt.Sprintf("p/Widget%03d", i))
	}
	index := Build(classArchive(names...))
	if got := len(Search(index, "widget", 0)); got != DefaultLimit {
		t.Fatalf("expected %d results, got %d", DefaultLimit, got)
	}
	if got := len(Search(index, "widget", 500)); got != DefaultLimit {
		t.Fatalf("expected limit capped at %d, got %d", DefaultLimit, got)
	}
}

func TestSearchWordMatchWithoutSubstring(t *testing.T) {
	index := Build(classArchive("a/ParseDirectory", "a/ResolveImports"))
	got := ids(Search(index, "directory parse", 5))
	if len(got) == 0 || got[0] != "a/ParseDirectory" {
		t.Fatalf("expected word match to rank ParseDirectory first, got %v", got)
	}
}

func TestSearchTypoFallback(t *testing.T) {
	index := Build(classArchive("a/ParseDirectory"))
	got := ids(Search(index, "ParzeDirectory", 3))
	if len(got) == 0 || got[0] != "a/ParseDirectory" {
		t.Fatalf("expected typo fallback to pick ParseDirectory, got %v", got)
	}
}

func TestSearchDeterministicOrdering(t *testing.T) {
	index := &Index{
		Version:       Version,
		DocumentCount: 2,
		AvgDocLength:  1,
		DocFreq:       map[string]int{"alpha": 2},
		Documents: []Document{
			{ID: "b/Alpha", Name: "Alpha", Length: 1, Terms: map[string]int{"alpha": 1}},
			{ID: "a/Alpha", Name: "Alpha", Length: 1, Terms: map[string]int{"alpha": 1}},
		},
	}
	got := ids(Search(index, "alpha", 2))
	if fmt.Sprint(got) != "[a/Alpha b/Alpha]" {
		t.Fatalf("expected stable tie-break by id, got %v", got)
	}
}

func TestSplitWords(t *testing.T) {
	got := splitWords("HttpURLConnection$Entry2Map")
	if fmt.Sprint(got) != "[http url connection entry2 map]" {
		t.Fatalf("unexpected words %v", got)
	}
}

func TestWriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	index := Build(classArchive("a/B"))
	if err := Write(dir, index); err != nil {
		t.Fatalf("Write: %v", err)
	}
	loaded, err := Load(dir, "v1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.DocumentCount != 1 || loaded.Documents[0].ID != "a/B" {
		t.Fatalf("unexpected loaded index %+v", loaded)
	}
	if _, err := Load(dir, "v2"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist for missing version, got %v", err)
	}
}
