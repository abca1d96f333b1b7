package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "github.com/DW8888/alfred/pkg/logx"
)

// Timeouts differ by call shape: reads are quick catalog lookups,
// writes may sit behind slow generation models.
const (
	readTimeout  = 30 * time.Second
	writeTimeout = 180 * time.Second
)

// HTTPClient talks JSON over HTTP to the backend service.
type HTTPClient struct {
	base string
	hc   *http.Client
	log  logx.Logger
}

func NewHTTPClient(baseURL string, log logx.Logger) *HTTPClient {
	return &HTTPClient{
		base: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		hc:   &http.Client{},
		log:  log,
	}
}

func (c *HTTPClient) FetchCandidates(ctx context.Context) ([]Candidate, error) {
	// The catalog may answer either a bare array or {"jobs": [...]}.
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/jobs/", &raw); err != nil {
		return nil, err
	}
	var list []Candidate
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Jobs []Candidate `json:"jobs"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("unexpected candidate list shape: %w", err)
	}
	return wrapped.Jobs, nil
}

func (c *HTTPClient) GetCandidate(ctx context.Context, id int64) (Candidate, error) {
	var cand Candidate
	if err := c.getJSON(ctx, fmt.Sprintf("/jobs/%d", id), &cand); err != nil {
		return Candidate{}, err
	}
	return cand, nil
}

func (c *HTTPClient) Match(ctx context.Context, req MatchRequest) (MatchResponse, error) {
	var resp MatchResponse
	if err := c.postJSON(ctx, "/jobs/match", req, &resp); err != nil {
		return MatchResponse{}, err
	}
	return resp, nil
}

func (c *HTTPClient) Generate(ctx context.Context, kind ArtifactKind, req GenerateRequest) (string, error) {
	var path string
	switch kind {
	case ArtifactResume:
		path = "/jobs/generate_resume"
	case ArtifactCoverLetter:
		path = "/jobs/generate_cover_letter"
	default:
		return "", fmt.Errorf("unknown artifact kind %q", kind)
	}
	var resp struct {
		GeneratedResume      string `json:"generated_resume,omitempty"`
		GeneratedCoverLetter string `json:"generated_cover_letter,omitempty"`
	}
	if err := c.postJSON(ctx, path, req, &resp); err != nil {
		return "", err
	}
	text := resp.GeneratedResume
	if kind == ArtifactCoverLetter {
		text = resp.GeneratedCoverLetter
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: empty generation result", path)
	}
	return text, nil
}

func (c *HTTPClient) SubmitCandidate(ctx context.Context, sub Submission) (SubmitResult, error) {
	var res SubmitResult
	if err := c.postJSON(ctx, "/jobs/", sub, &res); err != nil {
		return SubmitResult{}, err
	}
	return res, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little of the body for the log line, then discard.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
