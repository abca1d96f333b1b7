package generator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DW8888/alfred/internal/backend"
	"github.com/DW8888/alfred/internal/queue"
	"github.com/DW8888/alfred/internal/state"
	"github.com/DW8888/alfred/internal/storage"
	logx "github.com/DW8888/alfred/pkg/logx"
)

type fakeBackend struct {
	cand     backend.Candidate
	genText  string
	genErr   error
	genCalls int
}

func (f *fakeBackend) GetCandidate(ctx context.Context, id int64) (backend.Candidate, error) {
	if f.cand.ID != id {
		return backend.Candidate{}, errors.New("not found")
	}
	return f.cand, nil
}

func (f *fakeBackend) Generate(ctx context.Context, kind backend.ArtifactKind, req backend.GenerateRequest) (string, error) {
	f.genCalls++
	if f.genErr != nil {
		return "", f.genErr
	}
	return f.genText, nil
}

func (f *fakeBackend) FetchCandidates(ctx context.Context) ([]backend.Candidate, error) {
	return nil, errors.New("not used")
}
func (f *fakeBackend) Match(ctx context.Context, req backend.MatchRequest) (backend.MatchResponse, error) {
	return backend.MatchResponse{}, errors.New("not used")
}
func (f *fakeBackend) SubmitCandidate(ctx context.Context, sub backend.Submission) (backend.SubmitResult, error) {
	return backend.SubmitResult{}, errors.New("not used")
}

type env struct {
	api   *fakeBackend
	in    *queue.Queue
	next  *queue.Queue
	store storage.Store
	agent *Agent
}

func setup(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	in, err := queue.Open(filepath.Join(dir, "in.json"), logx.Nop())
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	next, err := queue.Open(filepath.Join(dir, "next.json"), logx.Nop())
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	store, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "store")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	api := &fakeBackend{
		cand:    backend.Candidate{ID: 42, Title: "Data Engineer", Company: "Acme Inc", Description: "build pipelines"},
		genText: "tailored artifact text",
	}
	st := state.Load(filepath.Join(dir, "resume.json"), logx.Nop())
	a := NewResume(Config{OutputDir: filepath.Join(dir, "out")}, api, in, next, store, st, logx.Nop())
	return &env{api: api, in: in, next: next, store: store, agent: a}
}

func TestGenerateWritesArtifactAndRecordsPackage(t *testing.T) {
	t.Parallel()
	e := setup(t)
	_ = e.in.Push(queue.Item{ID: 42, Title: "Data Engineer", Score: 0.7})

	if err := e.agent.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	rec, ok := e.agent.completed["42"]
	if !ok {
		t.Fatal("candidate not marked completed")
	}
	b, err := os.ReadFile(rec.ArtifactPath)
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if string(b) != "tailored artifact text" {
		t.Fatalf("artifact content = %q", b)
	}
	if base := filepath.Base(rec.ArtifactPath); base != "42_Acme_Inc_Data_Engineer.md" {
		t.Fatalf("artifact filename = %q", base)
	}

	pkgs, err := e.store.ListPackages(context.Background(), 0)
	if err != nil || len(pkgs) != 1 {
		t.Fatalf("ListPackages = %v, %v; want 1 record", pkgs, err)
	}
	if pkgs[0].CandidateID != 42 || pkgs[0].Kind != "resume" || pkgs[0].Score != 0.7 {
		t.Fatalf("package record = %+v", pkgs[0])
	}

	// Follow-up handed to the next stage.
	follow, ok, _ := e.next.Pop()
	if !ok || follow.ID != 42 {
		t.Fatalf("follow-up item = %+v ok=%v", follow, ok)
	}
}

func TestEmptyQueueIsNoop(t *testing.T) {
	t.Parallel()
	e := setup(t)
	if err := e.agent.Step(context.Background()); err != nil {
		t.Fatalf("Step on empty queue: %v", err)
	}
	if e.api.genCalls != 0 {
		t.Fatal("generation called with no work")
	}
}

func TestAlreadyCompletedConsumedWithoutRegeneration(t *testing.T) {
	t.Parallel()
	e := setup(t)
	_ = e.in.Push(queue.Item{ID: 42, Score: 0.7})
	if err := e.agent.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	// A duplicate item slipped in upstream: consumed, not regenerated.
	_ = e.in.Push(queue.Item{ID: 42, Score: 0.7})
	if err := e.agent.Step(context.Background()); err != nil {
		t.Fatalf("second Step: %v", err)
	}
	if e.api.genCalls != 1 {
		t.Fatalf("generation called %d times, want 1", e.api.genCalls)
	}
	if n := e.in.Len(); n != 0 {
		t.Fatalf("duplicate item not consumed: queue len %d", n)
	}
	if n := e.next.Len(); n != 1 {
		t.Fatalf("follow-up queue len = %d, want 1", n)
	}
}

func TestGenerationFailureLosesItemButNotAgent(t *testing.T) {
	t.Parallel()
	e := setup(t)
	e.api.genErr = errors.New("model unavailable")
	_ = e.in.Push(queue.Item{ID: 42, Score: 0.7})

	if err := e.agent.Step(context.Background()); err == nil {
		t.Fatal("expected step error on generation failure")
	}
	if _, done := e.agent.completed["42"]; done {
		t.Fatal("failed candidate marked completed")
	}
	// At-most-once: the item was consumed and is not redelivered.
	if n := e.in.Len(); n != 0 {
		t.Fatalf("queue len = %d, want 0", n)
	}
}

func TestMalformedItemDropped(t *testing.T) {
	t.Parallel()
	e := setup(t)
	_ = e.in.Push(queue.Item{Title: "no id"})
	if err := e.agent.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if e.api.genCalls != 0 {
		t.Fatal("generation called for malformed item")
	}
}

func TestCompletionSurvivesRestart(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in, _ := queue.Open(filepath.Join(dir, "in.json"), logx.Nop())
	api := &fakeBackend{
		cand:    backend.Candidate{ID: 7, Title: "T", Company: "C", Description: "d"},
		genText: "text",
	}
	statePath := filepath.Join(dir, "cover.json")

	a := NewCoverLetter(Config{OutputDir: filepath.Join(dir, "out")}, api, in, nil, state.Load(statePath, logx.Nop()), logx.Nop())
	_ = in.Push(queue.Item{ID: 7, Score: 0.5})
	if err := a.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	a2 := NewCoverLetter(Config{OutputDir: filepath.Join(dir, "out")}, api, in, nil, state.Load(statePath, logx.Nop()), logx.Nop())
	_ = in.Push(queue.Item{ID: 7, Score: 0.5})
	if err := a2.Step(context.Background()); err != nil {
		t.Fatalf("Step after restart: %v", err)
	}
	if api.genCalls != 1 {
		t.Fatalf("generation called %d times across restart, want 1", api.genCalls)
	}
}
