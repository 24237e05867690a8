package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gumob/AISummarizer-sub000/internal/app"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		listenAddr    string
		dbPath        string
		servicesPath  string
		denylistPath  string
		cacheMaxAge   time.Duration
		cacheMaxCount int
		cacheClear    bool
		chromeURL     string
		lang          string
		userAgent     string
		verbose       bool
	)

	flag.StringVar(&listenAddr, "listen", "127.0.0.1:8787", "Bridge listen address")
	flag.StringVar(&dbPath, "db", "aisummarizer.db", "Path to the article cache database")
	flag.StringVar(&servicesPath, "services", os.Getenv("AIS_SERVICES"), "Path to YAML services file (empty uses built-in defaults)")
	flag.StringVar(&denylistPath, "denylist", os.Getenv("AIS_DENYLIST"), "Path to URL denylist file (newline-separated regexes)")
	flag.DurationVar(&cacheMaxAge, "cache.maxAge", 24*time.Hour, "Max age for cached articles before the sweep removes them")
	flag.IntVar(&cacheMaxCount, "cache.maxCount", 200, "Max number of cached articles kept after the age phase")
	flag.BoolVar(&cacheClear, "cache.clear", false, "Clear the article cache on startup")
	flag.StringVar(&chromeURL, "chrome.url", os.Getenv("AIS_CHROME_URL"), "DevTools URL of a running browser for prompt injection (empty disables injection)")
	flag.StringVar(&lang, "lang", "", "Preferred caption language hint, e.g. 'en' or 'ja'")
	flag.StringVar(&userAgent, "ua", "aisummarizer/1.0", "User-Agent for page fetches")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg := app.Config{
		ListenAddr:    listenAddr,
		DBPath:        dbPath,
		ServicesPath:  servicesPath,
		DenylistPath:  denylistPath,
		CacheMaxAge:   cacheMaxAge,
		CacheMaxCount: cacheMaxCount,
		CacheClear:    cacheClear,
		ChromeURL:     chromeURL,
		PreferredLang: lang,
		UserAgent:     userAgent,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}
