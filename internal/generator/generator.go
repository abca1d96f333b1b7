// Package generator holds the artifact agents at the tail of the
// pipeline: each pops one strong match from its queue per step, asks the
// generation collaborator for tailored text, writes the artifact to
// disk, and records a package row. The primary agent hands a follow-up
// item to the next queue so the secondary artifact gets produced too.
package generator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/DW8888/alfred/internal/backend"
	"github.com/DW8888/alfred/internal/queue"
	"github.com/DW8888/alfred/internal/state"
	"github.com/DW8888/alfred/internal/storage"
	logx "github.com/DW8888/alfred/pkg/logx"
)

const DefaultTopK = 5

type Config struct {
	// OutputDir is where generated artifact text files land.
	OutputDir string

	// TopK is passed through to the generation collaborator.
	TopK int
}

type completedRecord struct {
	CandidateID  int64   `json:"candidate_id"`
	Title        string  `json:"title"`
	Company      string  `json:"company"`
	Score        float64 `json:"score"`
	ArtifactPath string  `json:"artifact_path"`
}

// Agent generates one artifact kind. Construct via NewResume or
// NewCoverLetter.
type Agent struct {
	name     string
	kind     backend.ArtifactKind
	stateKey string

	log   logx.Logger
	api   backend.Client
	in    *queue.Queue
	next  *queue.Queue // nil for the terminal agent
	store storage.Store
	st    *state.State

	dir  string
	topK int

	completed map[string]completedRecord
}

// NewResume builds the primary artifact agent. Completed matches are
// forwarded to next (the follow-up queue) when next is non-nil.
func NewResume(cfg Config, api backend.Client, in, next *queue.Queue, store storage.Store, st *state.State, log logx.Logger) *Agent {
	return newAgent("resume-generator", backend.ArtifactResume, "completed_resumes", cfg, api, in, next, store, st, log)
}

// NewCoverLetter builds the follow-up artifact agent.
func NewCoverLetter(cfg Config, api backend.Client, in *queue.Queue, store storage.Store, st *state.State, log logx.Logger) *Agent {
	return newAgent("cover-generator", backend.ArtifactCoverLetter, "completed_cover_letters", cfg, api, in, nil, store, st, log)
}

func newAgent(name string, kind backend.ArtifactKind, stateKey string, cfg Config, api backend.Client, in, next *queue.Queue, store storage.Store, st *state.State, log logx.Logger) *Agent {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	a := &Agent{
		name:      name,
		kind:      kind,
		stateKey:  stateKey,
		log:       log,
		api:       api,
		in:        in,
		next:      next,
		store:     store,
		st:        st,
		dir:       cfg.OutputDir,
		topK:      cfg.TopK,
		completed: map[string]completedRecord{},
	}
	st.Get(stateKey, &a.completed)
	if a.completed == nil {
		a.completed = map[string]completedRecord{}
	}
	return a
}

func (a *Agent) Name() string { return a.name }

func (a *Agent) FlushState() error {
	if err := a.st.Set(a.stateKey, a.completed); err != nil {
		return err
	}
	return a.st.Flush()
}

// Step consumes at most one work item. A popped item that fails mid-way
// is not redelivered: delivery is at-most-once and the failure only
// costs that one item.
func (a *Agent) Step(ctx context.Context) error {
	item, ok, err := a.in.Pop()
	if err != nil {
		return err
	}
	if !ok {
		a.log.Debug("no work pending")
		return nil
	}
	if item.ID == 0 {
		a.log.Warn("work item missing candidate id, dropping", logx.String("title", item.Title))
		return nil
	}

	key := strconv.FormatInt(item.ID, 10)
	if _, done := a.completed[key]; done {
		a.log.Info("candidate already processed", logx.Int64("candidate", item.ID))
		return nil
	}

	cand, err := a.api.GetCandidate(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("fetch candidate %d: %w", item.ID, err)
	}

	text, err := a.api.Generate(ctx, a.kind, backend.GenerateRequest{
		Title:       cand.Title,
		Company:     cand.Company,
		Description: cand.Description,
		TopK:        a.topK,
	})
	if err != nil {
		return fmt.Errorf("generate %s for candidate %d: %w", a.kind, item.ID, err)
	}

	path, err := a.writeArtifact(cand, text)
	if err != nil {
		return fmt.Errorf("write artifact for candidate %d: %w", item.ID, err)
	}
	a.log.Info("artifact written", logx.Int64("candidate", item.ID), logx.String("path", path))

	if a.store != nil {
		_, err := a.store.SavePackage(ctx, storage.PackageRecord{
			CandidateID:  item.ID,
			Title:        cand.Title,
			Company:      cand.Company,
			Score:        item.Score,
			Kind:         string(a.kind),
			ArtifactPath: path,
			Agent:        a.name,
		})
		if err != nil {
			return fmt.Errorf("persist package for candidate %d: %w", item.ID, err)
		}
	}

	a.completed[key] = completedRecord{
		CandidateID:  item.ID,
		Title:        cand.Title,
		Company:      cand.Company,
		Score:        item.Score,
		ArtifactPath: path,
	}
	if err := a.FlushState(); err != nil {
		a.log.Error("state flush failed", logx.Err(err))
	}

	if a.next != nil {
		if err := a.next.Push(queue.Item{ID: item.ID, Title: item.Title, Score: item.Score}); err != nil {
			a.log.Error("follow-up enqueue failed", logx.Int64("candidate", item.ID), logx.Err(err))
		}
	}

	a.log.Info("candidate done", logx.Int64("candidate", item.ID))
	return nil
}

func (a *Agent) writeArtifact(cand backend.Candidate, text string) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%d_%s_%s.md", cand.ID, safeFilename(cand.Company), safeFilename(cand.Title))
	path := filepath.Join(a.dir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_]+`)

func safeFilename(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
	return unsafeChars.ReplaceAllString(s, "")
}
