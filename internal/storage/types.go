package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the record store.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// PackageRecord is one generated application package: which candidate it
// targets, which artifact was produced, and where the text landed.
// Keep it compact and schema-stable.
type PackageRecord struct {
	ID           string    `json:"id"`
	CandidateID  int64     `json:"candidate_id"`
	Title        string    `json:"title"`
	Company      string    `json:"company"`
	Score        float64   `json:"score"`
	Kind         string    `json:"kind"` // "resume" | "cover_letter"
	ArtifactPath string    `json:"artifact_path"`
	CreatedAt    time.Time `json:"created_at"`
	Agent        string    `json:"agent,omitempty"`
}
