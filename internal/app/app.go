// Package app wires config, logging, storage, queues, and the four
// pipeline agents into one supervised process.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DW8888/alfred/internal/backend"
	"github.com/DW8888/alfred/internal/config"
	"github.com/DW8888/alfred/internal/feed"
	"github.com/DW8888/alfred/internal/fetcher"
	"github.com/DW8888/alfred/internal/generator"
	"github.com/DW8888/alfred/internal/matcher"
	"github.com/DW8888/alfred/internal/orchestrator"
	"github.com/DW8888/alfred/internal/queue"
	"github.com/DW8888/alfred/internal/state"
	"github.com/DW8888/alfred/internal/storage"
	logx "github.com/DW8888/alfred/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	store storage.Store
	orch  *orchestrator.Orchestrator

	// resume/cover queues are kept so Snapshot-style introspection and
	// tests can see backlog depth.
	resumeQ *queue.Queue
	coverQ  *queue.Queue

	watchCancel context.CancelFunc
	watchDone   chan struct{}
	updates     chan *config.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		BurstPerSec: cfg.Logging.BurstPerSec,
	})
	log = log.With(logx.String("comp", "app"))

	a, err := build(cfgm, cfg, logSvc, log)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	return a, nil
}

func build(cfgm *config.Manager, cfg *config.Config, logSvc *logx.Service, log logx.Logger) (*App, error) {
	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	store, err := openStore(cfg, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	qlog := logSvc.Logger().With(logx.String("comp", "queue"))
	resumeQ, err := queue.Open(filepath.Join(dataDir, "resume_queue.json"), qlog)
	if err != nil {
		return nil, err
	}
	coverQ, err := queue.Open(filepath.Join(dataDir, "cover_letter_queue.json"), qlog)
	if err != nil {
		return nil, err
	}

	slog := logSvc.Logger().With(logx.String("comp", "state"))
	fetchSt := state.Load(filepath.Join(dataDir, "fetcher_state.json"), slog)
	matchSt := state.Load(filepath.Join(dataDir, "matcher_state.json"), slog)
	resumeSt := state.Load(filepath.Join(dataDir, "resume_state.json"), slog)
	coverSt := state.Load(filepath.Join(dataDir, "cover_letter_state.json"), slog)

	api := backend.NewHTTPClient(cfg.Backend.BaseURL, logSvc.Logger().With(logx.String("comp", "backend")))
	src := feed.NewHTTPSource(feedConfig(cfg), logSvc.Logger().With(logx.String("comp", "feed")))

	fetchAgent := fetcher.New(src, api, fetchSt, logSvc.Logger().With(logx.String("comp", "fetcher")))
	matchAgent := matcher.New(matcher.Config{
		Threshold:  cfg.Matcher.Threshold,
		MinDescLen: cfg.Matcher.MinDescLen,
		Workers:    cfg.Matcher.Workers,
		TopK:       cfg.Matcher.TopK,
		Skip:       skipEntries(cfg.Matcher.Skip),
	}, api, resumeQ, matchSt, logSvc.Logger().With(logx.String("comp", "matcher")))

	genCfg := generator.Config{
		OutputDir: cfg.Generator.OutputDir,
		TopK:      cfg.Generator.TopK,
	}
	if genCfg.OutputDir == "" {
		genCfg.OutputDir = filepath.Join(dataDir, "packages")
	}
	resumeAgent := generator.NewResume(genCfg, api, resumeQ, coverQ, store, resumeSt,
		logSvc.Logger().With(logx.String("comp", "resume")))
	coverAgent := generator.NewCoverLetter(genCfg, api, coverQ, store, coverSt,
		logSvc.Logger().With(logx.String("comp", "cover")))

	tick, err := config.ParseDurationOrDefault("orchestrator.tick", cfg.Orchestrator.Tick, 5*time.Second)
	if err != nil {
		return nil, err
	}
	orch := orchestrator.New(orchestrator.Config{
		Tick:        tick,
		HistorySize: cfg.Orchestrator.HistorySize,
	}, logSvc.Logger().With(logx.String("comp", "orchestrator")))

	tasks := []orchestrator.Task{
		{Name: "fetcher", Agent: fetchAgent},
		{Name: "matcher", Agent: matchAgent},
		{Name: "resume", Agent: resumeAgent, Ready: func() bool { return resumeQ.Len() > 0 }},
		{Name: "cover_letter", Agent: coverAgent, Ready: func() bool { return coverQ.Len() > 0 }},
	}
	for _, t := range tasks {
		tc := cfg.Orchestrator.Tasks[t.Name]
		if tc.Disabled {
			log.Info("task disabled", logx.String("task", t.Name))
			continue
		}
		sched, err := taskSchedule(t.Name, tc.Schedule)
		if err != nil {
			return nil, err
		}
		t.Schedule = sched
		if err := orch.Register(t); err != nil {
			return nil, err
		}
	}

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		orch:    orch,
		resumeQ: resumeQ,
		coverQ:  coverQ,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.cfgm.SetLogger(a.logs.Logger().With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := config.ParseDurationOrDefault("orchestrator.tick", cfg.Orchestrator.Tick, 5*time.Second); err != nil {
			return err
		}
		for name, tc := range cfg.Orchestrator.Tasks {
			if _, err := taskSchedule(name, tc.Schedule); err != nil {
				return err
			}
		}
		return nil
	})

	wctx, cancel := context.WithCancel(context.Background())
	a.watchCancel = cancel
	a.watchDone = make(chan struct{})
	a.updates = a.cfgm.Subscribe(1)
	go func() {
		defer close(a.watchDone)
		if err := a.cfgm.Watch(wctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	go a.applyLoop()

	a.orch.Start(ctx)
	a.log.Info("started", logx.Int("tasks", len(a.orch.Snapshot())))
	return nil
}

// applyLoop consumes hot reloads. Only logging knobs take effect live;
// pipeline wiring (queues, schedules, backend endpoints) needs a
// restart, which the log line says explicitly.
func (a *App) applyLoop() {
	for cfg := range a.updates {
		a.logs.Apply(logx.Config{
			Level:   cfg.Logging.Level,
			Console: cfg.Logging.Console,
			File: logx.FileConfig{
				Enabled: cfg.Logging.File.Enabled,
				Path:    cfg.Logging.File.Path,
			},
			BurstPerSec: cfg.Logging.BurstPerSec,
		})
		a.log.Info("logging config applied; pipeline changes take effect on restart")
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.orch.Stop()
	if a.watchCancel != nil {
		a.watchCancel()
		select {
		case <-a.watchDone:
		case <-ctx.Done():
		}
	}
	if a.updates != nil {
		a.cfgm.Unsubscribe(a.updates)
		a.updates = nil
	}
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	a.log.Info("stopped", logx.Int64("dropped_log_bursts", int64(a.logs.DroppedBursts())))
	a.logs.Close()
	return err
}

// Tasks reports the orchestrator's current view, for status surfaces.
func (a *App) Tasks() []orchestrator.TaskStatus { return a.orch.Snapshot() }

// History reports recent launches, newest last.
func (a *App) History() []orchestrator.HistoryItem { return a.orch.History() }

func openStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	if cfg.Storage == nil {
		return nil, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	return storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log)
}

func feedConfig(cfg *config.Config) feed.Config {
	fc := feed.Config{
		BaseURL:  cfg.Feed.BaseURL,
		AppID:    cfg.Feed.AppID,
		APIKey:   cfg.Feed.APIKey,
		Query:    cfg.Feed.Query,
		Location: cfg.Feed.Location,
		PerPage:  cfg.Feed.PerPage,
		MaxPages: cfg.Feed.MaxPages,
	}
	if fc.AppID == "" {
		fc.AppID = strings.TrimSpace(os.Getenv("FEED_APP_ID"))
	}
	if fc.APIKey == "" {
		fc.APIKey = strings.TrimSpace(os.Getenv("FEED_API_KEY"))
	}
	return fc
}

func skipEntries(in []config.SkipEntry) []matcher.SkipEntry {
	if len(in) == 0 {
		return nil
	}
	out := make([]matcher.SkipEntry, len(in))
	for i, e := range in {
		out[i] = matcher.SkipEntry{Title: e.Title, Company: e.Company}
	}
	return out
}

func taskSchedule(name, raw string) (orchestrator.Schedule, error) {
	if strings.TrimSpace(raw) == "" {
		raw = config.DefaultSchedules[name]
	}
	sched, err := orchestrator.ParseSchedule(raw)
	if err != nil {
		return orchestrator.Schedule{}, fmt.Errorf("orchestrator.tasks.%s: %w", name, err)
	}
	return sched, nil
}
