// Package app assembles the pipeline: store, classifier, extractors,
// injection driver, router handlers, the HTTP bridge and the cleanup
// schedule. Everything downstream receives its dependencies from here;
// there are no package-level singletons.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/gumob/AISummarizer-sub000/internal/bridge"
	"github.com/gumob/AISummarizer-sub000/internal/classify"
	"github.com/gumob/AISummarizer-sub000/internal/extract"
	"github.com/gumob/AISummarizer-sub000/internal/fetch"
	"github.com/gumob/AISummarizer-sub000/internal/inject"
	"github.com/gumob/AISummarizer-sub000/internal/pdftext"
	"github.com/gumob/AISummarizer-sub000/internal/pipeline"
	"github.com/gumob/AISummarizer-sub000/internal/router"
	"github.com/gumob/AISummarizer-sub000/internal/services"
	"github.com/gumob/AISummarizer-sub000/internal/store"
	"github.com/gumob/AISummarizer-sub000/internal/youtube"
)

type Config struct {
	ListenAddr   string
	DBPath       string
	ServicesPath string
	DenylistPath string

	CacheMaxAge   time.Duration
	CacheMaxCount int
	CacheClear    bool

	// ChromeURL is the DevTools websocket of a running browser. Empty
	// means injection actions answer with a failure instead of driving a
	// page.
	ChromeURL string

	PreferredLang string
	UserAgent     string
}

type App struct {
	cfg Config

	Store      *store.Store
	Services   *services.Registry
	Classifier *classify.Classifier
	Pipeline   *pipeline.Orchestrator
	Injector   *inject.Orchestrator
	Router     *router.Router

	bridge      *bridge.Server
	cron        *cron.Cron
	driverClose func()
}

func New(ctx context.Context, cfg Config) (*App, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if cfg.CacheMaxAge > 0 {
		st.MaxAge = cfg.CacheMaxAge
	}
	if cfg.CacheMaxCount > 0 {
		st.MaxCount = cfg.CacheMaxCount
	}
	if cfg.CacheClear {
		if err := st.Clear(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("clear cache: %w", err)
		}
		log.Info().Msg("article cache cleared")
	}

	reg := services.Defaults()
	if cfg.ServicesPath != "" {
		reg, err = services.Load(cfg.ServicesPath)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	denylist := classify.ParseDenylist("")
	if cfg.DenylistPath != "" {
		b, err := os.ReadFile(cfg.DenylistPath)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("read denylist: %w", err)
		}
		denylist = classify.ParseDenylist(string(b))
	} else if saved, err := st.Setting(ctx, settingDenylist); err == nil && saved != "" {
		denylist = classify.ParseDenylist(saved)
	}
	classifier := classify.New(denylist, reg)

	pageClient := &fetch.Client{UserAgent: cfg.UserAgent, MaxAttempts: 3,
		PerRequestTimeout: 20 * time.Second}
	// Caption payloads can require session cookies.
	captionClient := &fetch.Client{UserAgent: cfg.UserAgent, MaxAttempts: 3,
		PerRequestTimeout: 20 * time.Second, WithCookies: true}

	pipe := &pipeline.Orchestrator{
		Classifier: classifier,
		Store:      st,
		Page:       &extract.Page{Fetcher: pageClient},
		YouTube:    &youtube.Extractor{Fetcher: captionClient, PreferredLang: cfg.PreferredLang},
		PDF:        &pdftext.Extractor{Fetcher: pageClient},
		Timeout:    45 * time.Second,
	}
	pipe.Subscribe(pipeline.SubscriberFunc(func(ev pipeline.Event) {
		log.Info().Int("tab", ev.TabID).Str("url", ev.URL).
			Bool("success", ev.Result.IsSuccess).Msg("extraction completed")
	}))

	a := &App{
		cfg:        cfg,
		Store:      st,
		Services:   reg,
		Classifier: classifier,
		Pipeline:   pipe,
		Router:     router.New(),
	}

	if cfg.ChromeURL != "" {
		driver, cleanup, err := inject.NewCDPDriver(ctx, cfg.ChromeURL)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("attach browser: %w", err)
		}
		a.driverClose = cleanup
		a.Injector = &inject.Orchestrator{
			Services:  reg,
			Driver:    driver,
			Templates: settingsTemplates{store: st},
		}
	}

	a.registerHandlers()
	a.bridge = bridge.New(a.Router, st)

	a.cron = cron.New()
	if _, err := a.cron.AddFunc("@hourly", a.sweep); err != nil {
		a.Close()
		return nil, fmt.Errorf("schedule cleanup: %w", err)
	}

	return a, nil
}

func (a *App) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	stats, err := a.Store.Cleanup(ctx, time.Now())
	if err != nil {
		log.Warn().Err(err).Msg("cache cleanup failed")
		return
	}
	if stats.Ran {
		log.Info().Int("age_deleted", stats.AgeDeleted).
			Int("cap_deleted", stats.CapDeleted).Msg("cache cleanup")
	}
}

// Run serves the bridge until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	a.cron.Start()
	a.sweep()

	errCh := make(chan error, 1)
	go func() { errCh <- a.bridge.Start(a.cfg.ListenAddr) }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.bridge.Shutdown(shutCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (a *App) Close() {
	if a.cron != nil {
		a.cron.Stop()
	}
	if a.driverClose != nil {
		a.driverClose()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
