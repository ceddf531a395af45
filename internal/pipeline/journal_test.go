package pipeline

import (
	"fmt"
	"testing"
	"time"
)

func TestJournalBounded(t *testing.T) {
	j := NewJournal(3, 10)

	for i := 0; i < 5; i++ {
		j.Add(Utterance{SegmentID: fmt.Sprintf("seg-%d", i), Start: time.Now()})
	}

	got := j.Recent(3600)
	if len(got) != 3 {
		t.Fatalf("entries = %d, want 3", len(got))
	}
	if got[0].SegmentID != "seg-2" {
		t.Errorf("oldest kept = %q, want %q", got[0].SegmentID, "seg-2")
	}
	if got[2].SegmentID != "seg-4" {
		t.Errorf("newest = %q, want %q", got[2].SegmentID, "seg-4")
	}
}

func TestJournalRecentWindow(t *testing.T) {
	j := NewJournal(10, 10)

	j.Add(Utterance{SegmentID: "old", Start: time.Now().Add(-2 * time.Minute)})
	j.Add(Utterance{SegmentID: "new", Start: time.Now()})

	got := j.Recent(60)
	if len(got) != 1 {
		t.Fatalf("entries = %d, want 1", len(got))
	}
	if got[0].SegmentID != "new" {
		t.Errorf("entry = %q, want %q", got[0].SegmentID, "new")
	}
}

func TestJournalEvents(t *testing.T) {
	j := NewJournal(10, 2)

	j.Add(Utterance{SegmentID: "a"})

	select {
	case u := <-j.Events():
		if u.SegmentID != "a" {
			t.Errorf("event = %q, want %q", u.SegmentID, "a")
		}
	default:
		t.Fatal("expected buffered event")
	}
}

func TestJournalEmitNeverBlocks(t *testing.T) {
	j := NewJournal(10, 1)

	// Nobody is draining: the second emit is dropped, not blocked.
	done := make(chan struct{})
	go func() {
		j.Add(Utterance{SegmentID: "a", Start: time.Now()})
		j.Add(Utterance{SegmentID: "b", Start: time.Now()})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Add blocked on full event channel")
	}

	// The journal itself still has both.
	if got := len(j.Recent(3600)); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}
}
