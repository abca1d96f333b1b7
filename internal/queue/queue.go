// Package queue implements a durable file-backed FIFO used to hand work
// items between agents. One queue file, one lock, strict insertion order.
package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	logx "github.com/DW8888/alfred/pkg/logx"
)

// Item is one unit of inter-agent work. The queue does not interpret it;
// dedup and prioritization are the producer's job.
type Item struct {
	ID    int64   `json:"id"`
	Title string  `json:"title,omitempty"`
	Score float64 `json:"score"`
}

// envelope is the on-disk shape: a single ordered list field.
type envelope struct {
	Queue []Item `json:"queue"`
}

// Queue is a thread-safe, file-backed FIFO.
//
// Every mutating call performs the full read-modify-write cycle while
// holding the queue's lock and persists before returning, so a restart
// never loses items that were pushed before a crash.
type Queue struct {
	path string
	log  logx.Logger

	mu sync.Mutex
}

// Open returns a queue backed by the given file, creating an empty file
// if none exists. A malformed file is treated as empty and rewritten on
// the next mutation.
func Open(path string, log logx.Logger) (*Queue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	q := &Queue{path: path, log: log}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := q.write(nil); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (q *Queue) Path() string { return q.path }

// Push appends an item at the tail.
func (q *Queue) Push(item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.read()
	items = append(items, item)
	return q.write(items)
}

// Pop removes and returns the head (oldest) item.
// The second return is false when the queue is empty.
func (q *Queue) Pop() (Item, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.read()
	if len(items) == 0 {
		return Item{}, false, nil
	}
	head := items[0]
	if err := q.write(items[1:]); err != nil {
		return Item{}, false, err
	}
	return head, true, nil
}

// Peek returns the head item without consuming it.
func (q *Queue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.read()
	if len(items) == 0 {
		return Item{}, false
	}
	return items[0], true
}

// Len reports the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.read())
}

// Clear drops all queued items.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.write(nil)
}

// read loads the full queue contents. Missing or malformed backing
// storage is an empty queue, never an error: the next write reinitializes
// the file.
func (q *Queue) read() []Item {
	b, err := os.ReadFile(q.path)
	if err != nil {
		if !os.IsNotExist(err) {
			q.log.Warn("queue read failed, treating as empty", logx.String("path", q.path), logx.Err(err))
		}
		return nil
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		q.log.Warn("queue file malformed, treating as empty", logx.String("path", q.path), logx.Err(err))
		return nil
	}
	return env.Queue
}

// write persists the full contents atomically (tmp + rename) so no
// partial state is ever visible to a concurrent reader or after a crash.
func (q *Queue) write(items []Item) error {
	env := envelope{Queue: items}
	if env.Queue == nil {
		env.Queue = []Item{}
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, q.path)
}
