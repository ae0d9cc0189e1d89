package session

import (
	"fmt"
	"testing"
)

func TestOpenInsertsRightOfActive(t *testing.T) {
	tabs := New("a/A.class")
	tabs.Open("a/B.class")
	tabs.Open("a/A.class")
	tabs.Open("a/C.class")
	if got := fmt.Sprint(tabs.Keys()); got != "[a/A.class a/C.class a/B.class]" {
		t.Fatalf("unexpected tab order %s", got)
	}
	if tabs.Active() != "a/C.class" {
		t.Fatalf("expected C active, got %s", tabs.Active())
	}
	if got := fmt.Sprint(tabs.History()); got != "[a/A.class a/B.class a/A.class a/C.class]" {
		t.Fatalf("unexpected history %s", got)
	}
}

func TestOpenActiveIsNoop(t *testing.T) {
	tabs := New("a/A.class")
	tabs.Open("a/A.class")
	if len(tabs.History()) != 1 || len(tabs.Keys()) != 1 {
		t.Fatalf("expected no change, got %v %v", tabs.Keys(), tabs.History())
	}
}

func TestHistoryLimit(t *testing.T) {
	tabs := New("k0")
	for i := 1; i < 80; i++ {
		tabs.Open(fmt.Sprintf("k%d", i))
	}
	if got := len(tabs.History()); got != HistoryLimit {
		t.Fatalf("expected history capped at %d, got %d", HistoryLimit, got)
	}
	if tabs.Active() != "k79" {
		t.Fatalf("expected newest tab active past the history limit")
	}
}

func TestCloseActiveFallsBackToHistory(t *testing.T) {
	tabs := New("A")
	tabs.Open("B")
	tabs.Open("C")
	tabs.Close("C")
	if tabs.Active() != "B" {
		t.Fatalf("expected B active, got %s", tabs.Active())
	}
	if tabs.IsOpen("C") {
		t.Fatalf("expected C closed")
	}
	if got := fmt.Sprint(tabs.Keys()); got != "[A B]" {
		t.Fatalf("unexpected tabs %s", got)
	}
}

func TestCloseActiveWithEmptyHistoryPicksLeftTab(t *testing.T) {
	tabs := Restore(Snapshot{
		Tabs:   []Tab{{Key: "A"}, {Key: "B"}, {Key: "C"}},
		Active: "B",
	})
	tabs.Close("B")
	if tabs.Active() != "A" {
		t.Fatalf("expected left neighbour A, got %s", tabs.Active())
	}

	first := Restore(Snapshot{Tabs: []Tab{{Key: "A"}, {Key: "B"}}, Active: "A"})
	first.Close("A")
	if first.Active() != "B" {
		t.Fatalf("expected B after closing the first tab, got %s", first.Active())
	}
}

func TestCloseInactiveKeepsActive(t *testing.T) {
	tabs := New("A")
	tabs.Open("B")
	tabs.Close("A")
	if tabs.Active() != "B" || fmt.Sprint(tabs.History()) != "[B]" {
		t.Fatalf("unexpected state %s %v", tabs.Active(), tabs.History())
	}
}

func TestCloseLastTabIsRejected(t *testing.T) {
	tabs := New("A")
	tabs.Close("A")
	if !tabs.IsOpen("A") {
		t.Fatalf("expected last tab to stay open")
	}
}

func TestMove(t *testing.T) {
	tabs := Restore(Snapshot{Tabs: []Tab{{Key: "A"}, {Key: "B"}, {Key: "C"}}, Active: "A"})
	tabs.Move("A", 3)
	if got := fmt.Sprint(tabs.Keys()); got != "[B C A]" {
		t.Fatalf("unexpected order after moving right: %s", got)
	}
	tabs.Move("A", 0)
	if got := fmt.Sprint(tabs.Keys()); got != "[A B C]" {
		t.Fatalf("unexpected order after moving left: %s", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	tabs := New("A")
	tabs.Open("B")
	tabs.SetScroll("B", 120)
	restored := Restore(tabs.Snapshot())
	if restored.Active() != "B" || fmt.Sprint(restored.Keys()) != "[A B]" {
		t.Fatalf("unexpected restored session %+v", restored.Snapshot())
	}
	if restored.Snapshot().Tabs[1].Scroll != 120 {
		t.Fatalf("expected scroll to survive")
	}
}
