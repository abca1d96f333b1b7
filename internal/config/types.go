package config

import (
	"fmt"
	"strings"
)

// Config is the single on-disk configuration document (YAML or JSON).
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
type Config struct {
	Logging      LoggingConfig      `json:"logging"`
	Backend      BackendConfig      `json:"backend"`
	Feed         FeedConfig         `json:"feed"`
	Matcher      MatcherConfig      `json:"matcher"`
	Generator    GeneratorConfig    `json:"generator"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Storage      *StorageConfig     `json:"storage,omitempty"`
	Paths        PathsConfig        `json:"paths"`
}

type LoggingConfig struct {
	Level       string         `json:"level,omitempty"`
	Console     bool           `json:"console"`
	File        LogFileConfig  `json:"file,omitempty"`
	BurstPerSec int            `json:"burst_per_sec,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// BackendConfig points at the catalog/scoring/generation service.
type BackendConfig struct {
	BaseURL string `json:"base_url"`
}

// FeedConfig configures the external posting source. Credentials may be
// left empty here and supplied via FEED_APP_ID / FEED_API_KEY instead.
type FeedConfig struct {
	BaseURL  string `json:"base_url"`
	AppID    string `json:"app_id,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	Query    string `json:"query"`
	Location string `json:"location,omitempty"`
	PerPage  int    `json:"per_page,omitempty"`
	MaxPages int    `json:"max_pages,omitempty"`
}

type MatcherConfig struct {
	Threshold  float64     `json:"threshold,omitempty"`
	MinDescLen int         `json:"min_desc_len,omitempty"`
	Workers    int         `json:"workers,omitempty"`
	TopK       int         `json:"top_k,omitempty"`
	Skip       []SkipEntry `json:"skip,omitempty"`
}

// SkipEntry names a known low-value posting by title+company.
type SkipEntry struct {
	Title   string `json:"title"`
	Company string `json:"company"`
}

type GeneratorConfig struct {
	OutputDir string `json:"output_dir,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
}

// OrchestratorConfig holds the control-loop tick and per-task schedules.
//
// Task keys are the fixed pipeline stage names: "fetcher", "matcher",
// "resume", "cover_letter". Omitted tasks use their default cadence;
// set disabled to take a stage out of the rotation.
type OrchestratorConfig struct {
	Tick        string                `json:"tick,omitempty"`
	HistorySize int                   `json:"history_size,omitempty"`
	Tasks       map[string]TaskConfig `json:"tasks,omitempty"`
}

type TaskConfig struct {
	// Schedule is a Go duration ("5m") or a cron expression
	// ("cron:0 * * * *", "@hourly").
	Schedule string `json:"schedule,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// StorageConfig controls the optional package-record store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./alfred.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// PathsConfig holds the data directory where queue and state files live.
type PathsConfig struct {
	DataDir string `json:"data_dir,omitempty"`
}

// TaskNames are the pipeline stages the orchestrator knows about.
var TaskNames = []string{"fetcher", "matcher", "resume", "cover_letter"}

// DefaultSchedules mirrors the production cadences: ingest hourly,
// match and generate every five minutes.
var DefaultSchedules = map[string]string{
	"fetcher":      "1h",
	"matcher":      "5m",
	"resume":       "5m",
	"cover_letter": "5m",
}

// Validate rejects configs the app cannot start with. Schedule strings
// are validated where they are parsed.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Matcher.Threshold < 0 || c.Matcher.Threshold > 1 {
		return fmt.Errorf("matcher.threshold must be in [0,1]")
	}
	for name := range c.Orchestrator.Tasks {
		known := false
		for _, n := range TaskNames {
			if n == name {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("orchestrator.tasks: unknown task %q", name)
		}
	}
	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
	}
	return nil
}

// DataDir returns the configured data directory or the default.
func (c *Config) DataDir() string {
	if strings.TrimSpace(c.Paths.DataDir) != "" {
		return c.Paths.DataDir
	}
	return "./data"
}
