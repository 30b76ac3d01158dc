package assemble

import "testing"

func TestOnChunkAccumulates(t *testing.T) {
	a := New()

	u1, ok := a.OnChunk("I found ", false)
	if !ok || !u1.Created || u1.Done {
		t.Fatalf("unexpected first update: %+v ok=%v", u1, ok)
	}
	if u1.Content != "I found " {
		t.Fatalf("content mismatch: %q", u1.Content)
	}

	u2, ok := a.OnChunk("3 pods", false)
	if !ok || u2.Created {
		t.Fatalf("second chunk must not create: %+v", u2)
	}
	if u2.EntryID != u1.EntryID {
		t.Fatalf("entry id changed mid-stream: %q vs %q", u1.EntryID, u2.EntryID)
	}
	if u2.Content != "I found 3 pods" {
		t.Fatalf("content mismatch: %q", u2.Content)
	}

	u3, ok := a.OnChunk(".", true)
	if !ok || !u3.Done {
		t.Fatalf("expected done update: %+v", u3)
	}
	if u3.Content != "I found 3 pods." {
		t.Fatalf("content mismatch: %q", u3.Content)
	}
	if a.InFlight() {
		t.Fatalf("buffer must be gone after done")
	}
}

func TestDuplicateFinalizationCreatesNothing(t *testing.T) {
	a := New()
	if _, ok := a.OnChunk("hi", true); !ok {
		t.Fatalf("single-chunk message rejected")
	}
	if u, ok := a.OnChunk("", true); ok {
		t.Fatalf("bare duplicate done must be a no-op, got %+v", u)
	}
}

func TestNewTurnGetsFreshEntry(t *testing.T) {
	a := New()
	u1, _ := a.OnChunk("first", true)
	u2, ok := a.OnChunk("second", false)
	if !ok || !u2.Created {
		t.Fatalf("new turn must create an entry: %+v", u2)
	}
	if u2.EntryID == u1.EntryID {
		t.Fatalf("entry id reused across turns")
	}
	if u2.Content != "second" {
		t.Fatalf("old buffer leaked into new turn: %q", u2.Content)
	}
}

func TestFinalizeSettlesPartialContent(t *testing.T) {
	a := New()
	u, _ := a.OnChunk("partial answ", false)

	f, ok := a.Finalize()
	if !ok || !f.Done {
		t.Fatalf("expected settle update: %+v ok=%v", f, ok)
	}
	if f.EntryID != u.EntryID || f.Content != "partial answ" {
		t.Fatalf("unexpected settle: %+v", f)
	}
	if _, ok := a.Finalize(); ok {
		t.Fatalf("second finalize must be a no-op")
	}
}

func TestThinkingFlag(t *testing.T) {
	a := New()
	if a.Thinking() {
		t.Fatalf("thinking must start off")
	}
	a.OnThinking(true)
	if !a.Thinking() {
		t.Fatalf("thinking not set")
	}
	a.OnThinking(false)
	if a.Thinking() {
		t.Fatalf("thinking not cleared")
	}
}
