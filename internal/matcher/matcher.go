// Package matcher implements the scoring/matching engine: it pulls the
// current candidate set, scores eligible candidates against the reference
// corpus through a bounded worker pool, and enqueues strong matches for
// the generator agents downstream.
package matcher

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/DW8888/alfred/internal/backend"
	"github.com/DW8888/alfred/internal/queue"
	"github.com/DW8888/alfred/internal/state"
	logx "github.com/DW8888/alfred/pkg/logx"
)

// Defaults tuned on the live corpus; change via config, not here.
const (
	DefaultThreshold  = 0.46
	DefaultMinDescLen = 80
	DefaultWorkers    = 4
	DefaultTopK       = 10
)

type Config struct {
	// Threshold is the minimum combined score for a candidate to be
	// handed downstream.
	Threshold float64

	// MinDescLen marks candidates with shorter descriptions as scored
	// with 0 without calling the scoring collaborator.
	MinDescLen int

	// Workers bounds the scoring pool width.
	Workers int

	// TopK is passed through to the scoring collaborator.
	TopK int

	// Skip lists known low-value candidates by normalized title+company.
	// A skipped candidate is recorded but never enqueued, whatever its
	// score.
	Skip []SkipEntry
}

type SkipEntry struct {
	Title   string `json:"title"`
	Company string `json:"company"`
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.MinDescLen <= 0 {
		c.MinDescLen = DefaultMinDescLen
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	return c
}

// scoreRecord is what we remember per candidate. Skipped marks skip-list
// blocks so reruns do not reconsider the candidate.
type scoreRecord struct {
	Score   float64                  `json:"score"`
	Matches []backend.ReferenceMatch `json:"matches"`
	Skipped bool                     `json:"skipped,omitempty"`
}

const (
	keyScored   = "scored"
	keyEnqueued = "enqueued"
)

// Engine is the matching agent. All mutation of its in-memory maps and
// its TaskState happens under one mutex because pool workers share both.
type Engine struct {
	cfg Config
	log logx.Logger
	api backend.Client
	out *queue.Queue

	mu       sync.Mutex
	st       *state.State
	scored   map[string]scoreRecord
	enqueued map[string]bool
	skip     map[string]bool
}

func New(cfg Config, api backend.Client, out *queue.Queue, st *state.State, log logx.Logger) *Engine {
	e := &Engine{
		cfg:      cfg.withDefaults(),
		log:      log,
		api:      api,
		out:      out,
		st:       st,
		scored:   map[string]scoreRecord{},
		enqueued: map[string]bool{},
		skip:     map[string]bool{},
	}
	st.Get(keyScored, &e.scored)
	st.Get(keyEnqueued, &e.enqueued)
	if e.scored == nil {
		e.scored = map[string]scoreRecord{}
	}
	if e.enqueued == nil {
		e.enqueued = map[string]bool{}
	}
	for _, s := range e.cfg.Skip {
		e.skip[skipKey(s.Title, s.Company)] = true
	}
	return e
}

func (e *Engine) Name() string { return "matcher" }

// FlushState persists the tracking maps after every step.
func (e *Engine) FlushState() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persistLocked()
}

// Step runs one matching pass. A single candidate's failure leaves that
// candidate eligible for retry next pass and never aborts the rest; the
// step returns an error only when the candidate set itself could not be
// fetched.
func (e *Engine) Step(ctx context.Context) error {
	cands, err := e.api.FetchCandidates(ctx)
	if err != nil {
		return err
	}
	e.log.Info("matcher pass starting", logx.Int("candidates", len(cands)))

	e.collectStale(cands)

	eligible := e.partition(cands)
	if len(eligible) == 0 {
		e.log.Debug("no eligible candidates")
		return nil
	}

	// Fan out across a bounded pool; fan in through the engine mutex.
	work := make(chan backend.Candidate)
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range work {
				e.scoreOne(ctx, cand)
			}
		}()
	}
	for _, cand := range eligible {
		work <- cand
	}
	close(work)
	wg.Wait()

	e.log.Info("matcher pass complete", logx.Int("scored", len(eligible)))
	return nil
}

// collectStale drops tracking entries for candidates that no longer
// exist upstream, in both the scored and enqueued maps.
func (e *Engine) collectStale(cands []backend.Candidate) {
	present := make(map[string]bool, len(cands))
	for _, c := range cands {
		if c.ID != 0 {
			present[idKey(c.ID)] = true
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for k := range e.scored {
		if !present[k] {
			delete(e.scored, k)
			removed++
		}
	}
	for k := range e.enqueued {
		if !present[k] {
			delete(e.enqueued, k)
			removed++
		}
	}
	if removed > 0 {
		e.log.Debug("pruned stale tracking entries", logx.Int("removed", removed))
		if err := e.persistLocked(); err != nil {
			e.log.Error("state flush after prune failed", logx.Err(err))
		}
	}
}

// partition splits the candidate set: malformed and already-scored
// candidates are dropped, too-short descriptions are recorded as scored
// with 0, and the rest are returned for the pool.
func (e *Engine) partition(cands []backend.Candidate) []backend.Candidate {
	var eligible []backend.Candidate
	for _, cand := range cands {
		if cand.ID == 0 {
			e.log.Warn("candidate missing id, skipping", logx.String("title", cand.Title))
			continue
		}
		key := idKey(cand.ID)

		e.mu.Lock()
		_, done := e.scored[key]
		e.mu.Unlock()
		if done {
			continue
		}

		if len(cand.Description) < e.cfg.MinDescLen {
			e.log.Info("candidate description too short, scoring 0", logx.Int64("candidate", cand.ID))
			e.mu.Lock()
			e.scored[key] = scoreRecord{Score: 0, Matches: []backend.ReferenceMatch{}}
			if err := e.persistLocked(); err != nil {
				e.log.Error("state flush failed", logx.Err(err))
			}
			e.mu.Unlock()
			continue
		}

		eligible = append(eligible, cand)
	}
	return eligible
}

// scoreOne runs inside a pool worker: one scoring call, then the record
// and any enqueue happen under the engine mutex with an immediate flush
// so partial progress survives a crash mid-batch.
func (e *Engine) scoreOne(ctx context.Context, cand backend.Candidate) {
	resp, err := e.api.Match(ctx, backend.MatchRequest{
		Title:       cand.Title,
		Company:     cand.Company,
		Description: cand.Description,
		TopK:        e.cfg.TopK,
	})
	if err != nil {
		// Not marked scored: eligible again next pass.
		e.log.Warn("scoring failed, will retry next pass", logx.Int64("candidate", cand.ID), logx.Err(err))
		return
	}

	score := combinedScore(resp.Matches)
	e.log.Info("candidate scored",
		logx.Int64("candidate", cand.ID),
		logx.String("title", cand.Title),
		logx.Float64("score", score))

	key := idKey(cand.ID)
	blocked := e.skip[skipKey(cand.Title, cand.Company)]

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := scoreRecord{Score: score, Matches: resp.Matches, Skipped: blocked}
	e.scored[key] = rec
	if err := e.persistLocked(); err != nil {
		e.log.Error("state flush failed", logx.Int64("candidate", cand.ID), logx.Err(err))
	}

	if blocked {
		e.log.Info("candidate on skip list, not enqueued", logx.Int64("candidate", cand.ID))
		return
	}
	if e.enqueued[key] {
		return
	}
	if score < e.cfg.Threshold {
		return
	}

	if err := e.out.Push(queue.Item{ID: cand.ID, Title: cand.Title, Score: score}); err != nil {
		// Leave the enqueued map untouched so the next pass can retry.
		e.log.Error("enqueue failed", logx.Int64("candidate", cand.ID), logx.Err(err))
		return
	}
	e.enqueued[key] = true
	if err := e.persistLocked(); err != nil {
		e.log.Error("state flush after enqueue failed", logx.Int64("candidate", cand.ID), logx.Err(err))
	}
	e.log.Info("strong match enqueued", logx.Int64("candidate", cand.ID), logx.Float64("score", score))
}

func (e *Engine) persistLocked() error {
	if err := e.st.Set(keyScored, e.scored); err != nil {
		return err
	}
	if err := e.st.Set(keyEnqueued, e.enqueued); err != nil {
		return err
	}
	return e.st.Flush()
}

// combinedScore is the mean of per-reference scores, preferring the
// collaborator's combined score over plain similarity. An empty match
// list scores 0. Tuned empirically upstream; do not re-derive.
func combinedScore(matches []backend.ReferenceMatch) float64 {
	if len(matches) == 0 {
		return 0
	}
	var sum float64
	for _, m := range matches {
		v := m.Similarity
		if m.CombinedScore > 0 {
			v = m.CombinedScore
		}
		sum += v
	}
	score := sum / float64(len(matches))
	if score > 1 {
		score = 1
	}
	return score
}

// idKey is the state map key for a candidate id. Kept as the decimal
// string so old state files remain readable.
func idKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// skipKey normalizes (title, company) for skip-list lookups: lowercase,
// inner whitespace collapsed. Two postings that differ only in mutable
// fields (URL, id) normalize to the same key.
func skipKey(title, company string) string {
	return normalize(title) + "|" + normalize(company)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
