// Package feed adapts the external candidate source (a paginated
// third-party listing API) to the shape the ingestion agent consumes.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	logx "github.com/DW8888/alfred/pkg/logx"
)

type Config struct {
	BaseURL  string
	AppID    string
	APIKey   string
	Query    string
	Location string
	PerPage  int // default 20
	MaxPages int // default 3
}

// Posting is one raw listing from the source. RedirectURL is mutable
// across fetches and must never be used for identity.
type Posting struct {
	Title       string      `json:"title"`
	Company     DisplayName `json:"company"`
	Location    DisplayName `json:"location"`
	Description string      `json:"description"`
	RedirectURL string      `json:"redirect_url"`
}

type DisplayName struct {
	DisplayName string `json:"display_name"`
}

// Source yields the current page-window of postings.
type Source interface {
	Fetch(ctx context.Context) ([]Posting, error)
}

// HTTPSource pages through the listing API. A failing page ends the
// window early; pages fetched so far are still returned.
type HTTPSource struct {
	cfg Config
	hc  *http.Client
	log logx.Logger
}

func NewHTTPSource(cfg Config, log logx.Logger) *HTTPSource {
	if cfg.PerPage <= 0 {
		cfg.PerPage = 20
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	return &HTTPSource{
		cfg: cfg,
		hc:  &http.Client{Timeout: 30 * time.Second},
		log: log,
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]Posting, error) {
	if strings.TrimSpace(s.cfg.AppID) == "" || strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, fmt.Errorf("feed credentials missing")
	}

	var all []Posting
	for page := 1; page <= s.cfg.MaxPages; page++ {
		results, err := s.fetchPage(ctx, page)
		if err != nil {
			s.log.Warn("feed page failed, stopping window", logx.Int("page", page), logx.Err(err))
			break
		}
		if len(results) == 0 {
			break
		}
		all = append(all, results...)
	}
	return all, nil
}

func (s *HTTPSource) fetchPage(ctx context.Context, page int) ([]Posting, error) {
	u, err := url.Parse(strings.TrimRight(s.cfg.BaseURL, "/") + "/" + strconv.Itoa(page))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("app_id", s.cfg.AppID)
	q.Set("app_key", s.cfg.APIKey)
	q.Set("what", s.cfg.Query)
	q.Set("where", s.cfg.Location)
	q.Set("results_per_page", strconv.Itoa(s.cfg.PerPage))
	q.Set("content-type", "application/json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed page %d: status %d", page, resp.StatusCode)
	}

	var body struct {
		Results []Posting `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("feed page %d: decode: %w", page, err)
	}
	return body.Results, nil
}
