// Package backend is the client boundary to the pipeline's collaborators:
// the candidate catalog, the scoring endpoint, the text-generation
// endpoints, and candidate submission. All calls return explicit results
// and errors; nothing downstream inspects raw response maps.
package backend

import "context"

// Candidate is an upstream record with a stable numeric id and the
// free-text fields scoring runs against.
type Candidate struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description"`
	SourceURL   string `json:"source_url,omitempty"`
}

// MatchRequest asks the scoring collaborator to evaluate one candidate
// against the reference corpus.
type MatchRequest struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description"`
	TopK        int    `json:"top_k"`
}

// ReferenceMatch is one corpus entry's similarity to the candidate.
// CombinedScore folds in attribute overlap where the collaborator
// computed it; Similarity is the plain semantic score.
type ReferenceMatch struct {
	Artifact      string  `json:"artifact,omitempty"`
	Similarity    float64 `json:"similarity"`
	CombinedScore float64 `json:"combined_score,omitempty"`
}

// MatchResponse carries the per-reference matches for one candidate.
type MatchResponse struct {
	Matches []ReferenceMatch `json:"matches"`
}

// GenerateRequest asks for artifact text tailored to one candidate.
type GenerateRequest struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description"`
	TopK        int    `json:"top_k"`
}

// ArtifactKind selects which generation endpoint to call.
type ArtifactKind string

const (
	ArtifactResume      ArtifactKind = "resume"
	ArtifactCoverLetter ArtifactKind = "cover_letter"
)

// Submission is a new candidate being handed to the catalog.
type Submission struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Description string `json:"description"`
	SourceURL   string `json:"source_url"`
}

// SubmitResult reports whether the catalog accepted the submission or
// recognized it as a duplicate it already holds.
type SubmitResult struct {
	ID        int64 `json:"id"`
	Duplicate bool  `json:"duplicate"`
}

// Client is the collaborator surface the agents consume. Implementations
// must confine failures to the returned error so callers can apply their
// skip/retry policy.
type Client interface {
	FetchCandidates(ctx context.Context) ([]Candidate, error)
	GetCandidate(ctx context.Context, id int64) (Candidate, error)
	Match(ctx context.Context, req MatchRequest) (MatchResponse, error)
	Generate(ctx context.Context, kind ArtifactKind, req GenerateRequest) (string, error)
	SubmitCandidate(ctx context.Context, sub Submission) (SubmitResult, error)
}
