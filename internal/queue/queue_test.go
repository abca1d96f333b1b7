package queue

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	logx "github.com/DW8888/alfred/pkg/logx"
)

func openTemp(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "work.json"), logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return q
}

func TestPushPopFIFO(t *testing.T) {
	t.Parallel()
	q := openTemp(t)

	if err := q.Push(Item{ID: 1, Score: 0.7}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := q.Push(Item{ID: 2, Score: 0.9}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	got, ok, err := q.Pop()
	if err != nil || !ok {
		t.Fatalf("Pop: ok=%v err=%v", ok, err)
	}
	if got.ID != 1 || got.Score != 0.7 {
		t.Fatalf("Pop = %+v, want id=1 score=0.7", got)
	}
	if n := q.Len(); n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}

	got, ok, _ = q.Pop()
	if !ok || got.ID != 2 {
		t.Fatalf("second Pop = %+v ok=%v, want id=2", got, ok)
	}
	if n := q.Len(); n != 0 {
		t.Fatalf("Len after drain = %d, want 0", n)
	}
}

func TestPopEmpty(t *testing.T) {
	t.Parallel()
	q := openTemp(t)
	if _, ok, err := q.Pop(); ok || err != nil {
		t.Fatalf("Pop on empty: ok=%v err=%v", ok, err)
	}
	if _, ok := q.Peek(); ok {
		t.Fatal("Peek on empty returned an item")
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	t.Parallel()
	q := openTemp(t)
	if err := q.Push(Item{ID: 7, Title: "x", Score: 0.5}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	head, ok := q.Peek()
	if !ok || head.ID != 7 {
		t.Fatalf("Peek = %+v ok=%v", head, ok)
	}
	if n := q.Len(); n != 1 {
		t.Fatalf("Len after Peek = %d, want 1", n)
	}
}

func TestDurabilityAcrossReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "work.json")

	q, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := int64(1); i <= 3; i++ {
		if err := q.Push(Item{ID: i}); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}

	// Re-open as a fresh process would.
	q2, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	if n := q2.Len(); n != 3 {
		t.Fatalf("Len after reopen = %d, want 3", n)
	}
	got, ok, _ := q2.Pop()
	if !ok || got.ID != 1 {
		t.Fatalf("Pop after reopen = %+v, want id=1", got)
	}
}

func TestMalformedFileTreatedAsEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "work.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	q, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if n := q.Len(); n != 0 {
		t.Fatalf("Len = %d, want 0 for malformed file", n)
	}
	// Mutation reinitializes the file.
	if err := q.Push(Item{ID: 5}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	got, ok, _ := q.Pop()
	if !ok || got.ID != 5 {
		t.Fatalf("Pop = %+v ok=%v, want id=5", got, ok)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	q := openTemp(t)
	_ = q.Push(Item{ID: 1})
	_ = q.Push(Item{ID: 2})
	if err := q.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n := q.Len(); n != 0 {
		t.Fatalf("Len after Clear = %d, want 0", n)
	}
}

func TestConcurrentPushPopNoLossNoDup(t *testing.T) {
	t.Parallel()
	q := openTemp(t)

	const producers = 4
	const perProducer = 10

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				id := int64(p*perProducer + i + 1)
				if err := q.Push(Item{ID: id}); err != nil {
					t.Errorf("Push %d: %v", id, err)
				}
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	lastPerProducer := make(map[int]int64)
	for {
		it, ok, err := q.Pop()
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if !ok {
			break
		}
		if seen[it.ID] {
			t.Fatalf("item %d popped twice", it.ID)
		}
		seen[it.ID] = true
		// Per-producer order must be preserved.
		p := int((it.ID - 1) / perProducer)
		if prev := lastPerProducer[p]; it.ID <= prev {
			t.Fatalf("producer %d order violated: %d after %d", p, it.ID, prev)
		}
		lastPerProducer[p] = it.ID
	}
	if len(seen) != producers*perProducer {
		t.Fatalf("popped %d items, want %d", len(seen), producers*perProducer)
	}
}
