// Package fetcher is the ingestion agent: it pulls the current window of
// postings from the external feed and submits new ones to the catalog,
// deduplicating by content fingerprint so a posting is never resubmitted
// even when its transient fields (redirect URL) change between fetches.
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/DW8888/alfred/internal/backend"
	"github.com/DW8888/alfred/internal/feed"
	"github.com/DW8888/alfred/internal/state"
	logx "github.com/DW8888/alfred/pkg/logx"
)

const (
	keySeen = "seen_fingerprints"

	// Cap the dedup list; when it overflows, keep the newest half.
	seenMax  = 2000
	seenKeep = 1000

	// Catalog descriptions are bounded; the feed can be much longer.
	maxDescLen = 4000
)

// Fingerprint hashes the normalized identity fields of a posting. It is
// stable across runs and across redirect-URL churn.
func Fingerprint(title, company, description string) string {
	key := strings.ToLower(strings.TrimSpace(title + "|" + company + "|" + description))
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Agent ingests feed postings into the candidate catalog.
type Agent struct {
	log logx.Logger
	src feed.Source
	api backend.Client
	st  *state.State

	seen    []string
	seenSet map[string]bool
}

func New(src feed.Source, api backend.Client, st *state.State, log logx.Logger) *Agent {
	a := &Agent{log: log, src: src, api: api, st: st, seenSet: map[string]bool{}}
	st.Get(keySeen, &a.seen)
	for _, fp := range a.seen {
		a.seenSet[fp] = true
	}
	return a
}

func (a *Agent) Name() string { return "fetcher" }

func (a *Agent) FlushState() error {
	if err := a.st.Set(keySeen, a.seen); err != nil {
		return err
	}
	return a.st.Flush()
}

// Step fetches one feed window and submits unseen postings. A single
// posting's failure is logged and skipped; the fingerprint is recorded
// only after a successful submit so failures retry on the next window.
func (a *Agent) Step(ctx context.Context) error {
	postings, err := a.src.Fetch(ctx)
	if err != nil {
		return err
	}
	if len(postings) == 0 {
		a.log.Info("feed window empty")
		return nil
	}
	a.log.Info("feed window fetched", logx.Int("postings", len(postings)))

	submitted := 0
	for _, p := range postings {
		if a.submit(ctx, p) {
			submitted++
		}
	}
	a.log.Info("ingestion pass complete", logx.Int("submitted", submitted))
	return nil
}

func (a *Agent) submit(ctx context.Context, p feed.Posting) bool {
	fp := Fingerprint(p.Title, p.Company.DisplayName, p.Description)
	if a.seenSet[fp] {
		a.log.Debug("posting already seen", logx.String("title", p.Title))
		return false
	}

	desc := p.Description
	if len(desc) > maxDescLen {
		desc = desc[:maxDescLen]
	}
	res, err := a.api.SubmitCandidate(ctx, backend.Submission{
		Title:       p.Title,
		Company:     p.Company.DisplayName,
		Location:    p.Location.DisplayName,
		Description: desc,
		SourceURL:   p.RedirectURL,
	})
	if err != nil {
		a.log.Warn("candidate submit failed", logx.String("title", p.Title), logx.Err(err))
		return false
	}
	if res.Duplicate {
		a.log.Info("catalog already holds posting", logx.String("title", p.Title))
	} else {
		a.log.Info("candidate submitted", logx.Int64("id", res.ID), logx.String("title", p.Title))
	}

	// Record only after a successful round trip.
	a.remember(fp)
	if err := a.FlushState(); err != nil {
		a.log.Error("state flush failed", logx.Err(err))
	}
	return !res.Duplicate
}

func (a *Agent) remember(fp string) {
	a.seen = append(a.seen, fp)
	a.seenSet[fp] = true
	if len(a.seen) > seenMax {
		drop := a.seen[:len(a.seen)-seenKeep]
		for _, old := range drop {
			delete(a.seenSet, old)
		}
		a.seen = append([]string(nil), a.seen[len(a.seen)-seenKeep:]...)
	}
}
