// Package main is the tracker CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/briefly/tracker/internal/collector"
	"github.com/briefly/tracker/internal/config"
	"github.com/briefly/tracker/internal/fetch"
	"github.com/briefly/tracker/internal/inference"
	"github.com/briefly/tracker/internal/kvstore"
	"github.com/briefly/tracker/internal/learner"
	"github.com/briefly/tracker/internal/server"
	"github.com/briefly/tracker/internal/signallog"
	"github.com/briefly/tracker/internal/store"
	"github.com/briefly/tracker/internal/summarycache"
	"github.com/briefly/tracker/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/tracker/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "tracker server" from the project dir uses the project's
// config (including debug).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "analyze":
		runAnalyze()
	case "track":
		runTrack()
	case "summarize":
		runSummarize()
	case "version", "--version", "-v":
		fmt.Printf("tracker version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (signal batches, cache hits, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components := initializeComponents(cfg, logger)

	srv := server.NewServer(
		components.SignalLog,
		components.Learner,
		components.Cache,
		components.Fetcher,
		components.Inference,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components := initializeComponents(cfg, logger)

	report, err := components.Learner.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
		os.Exit(1)
	}
	if report.Skipped {
		fmt.Println("No signals to analyze")
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}

func runTrack() {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	articleID := fs.Int("id", 0, "article id")
	title := fs.String("title", "", "article title")
	articleURL := fs.String("url", "", "article URL")
	category := fs.String("category", "", "article category")
	source := fs.String("source", "", "article source")
	date := fs.String("date", "", "viewing date (YYYY-MM-DD, default today)")
	dislike := fs.Bool("dislike", false, "toggle a negative signal instead of a click")
	_ = fs.Parse(os.Args[2:])

	if *articleID == 0 || *title == "" {
		fmt.Println("Usage: tracker track -id <article-id> -title <title> [flags]")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	keys, err := kvstore.Open(cfg.Paths.CollectorDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open collector store: %v\n", err)
		os.Exit(1)
	}
	defer keys.Close()

	opts := []collector.Option{collector.WithLogger(logger)}
	if *date != "" {
		opts = append(opts, collector.WithViewingDate(*date))
	}
	sender := collector.NewHTTPSender(*serverURL, collector.WithSenderLogger(logger))
	col, err := collector.New(keys, sender, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create collector: %v\n", err)
		os.Exit(1)
	}

	article := collector.Article{
		ID:       *articleID,
		Title:    *title,
		URL:      *articleURL,
		Category: *category,
		Source:   *source,
	}
	if *dislike {
		if col.TrackDislike(article) {
			fmt.Printf("Disliked: %s\n", *title)
		} else {
			fmt.Printf("Dislike removed: %s\n", *title)
		}
	} else {
		col.TrackClick(article)
		if col.Pending() == 0 {
			fmt.Printf("Already tracked: %s\n", *title)
			return
		}
		fmt.Printf("Tracked: %s\n", *title)
	}

	if err := col.FlushAndWait(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Flush failed: %v\n", err)
		os.Exit(1)
	}
}

func runSummarize() {
	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	articleID := fs.Int("id", 0, "article id")
	title := fs.String("title", "", "article title")
	articleURL := fs.String("url", "", "article URL")
	date := fs.String("date", "", "viewing date (YYYY-MM-DD, default today)")
	_ = fs.Parse(os.Args[2:])

	if *articleURL == "" {
		fmt.Println("Usage: tracker summarize -url <article-url> [flags]")
		os.Exit(1)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"url":        *articleURL,
		"title":      *title,
		"article_id": *articleID,
		"date":       *date,
	})
	resp, err := http.Post(*serverURL+"/api/summarize", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Summarize failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	out, _ := io.ReadAll(resp.Body)
	fmt.Println(string(out))
}

// Components holds initialized services.
type Components struct {
	Store     *store.Client
	SignalLog *signallog.Log
	Inference *inference.Client
	Fetcher   *fetch.Fetcher
	Cache     *summarycache.Cache
	Learner   *learner.Learner
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) *Components {
	storeOpts := []store.Option{store.WithLogger(logger)}
	if cfg.GitHub.BaseURL != "" {
		storeOpts = append(storeOpts, store.WithBaseURL(cfg.GitHub.BaseURL))
	}
	client := store.NewClient(cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.GitHub.Token, storeOpts...)

	log := signallog.NewLog(client,
		signallog.WithPath(cfg.Paths.ClicksFile),
		signallog.WithLogger(logger),
	)

	inferenceOpts := []inference.Option{inference.WithLogger(logger)}
	if cfg.Inference.BaseURL != "" {
		inferenceOpts = append(inferenceOpts, inference.WithBaseURL(cfg.Inference.APIKey, cfg.Inference.BaseURL))
	}
	ai := inference.NewClient(cfg.Inference.APIKey, cfg.Inference.Model, inferenceOpts...)

	fetcher := fetch.NewFetcher(
		fetch.WithTimeout(time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second),
		fetch.WithMaxChars(cfg.Fetch.MaxContentChars),
		fetch.WithLogger(logger),
	)

	cache := summarycache.NewCache(client,
		summarycache.WithPrefix(cfg.Paths.SummariesDir),
		summarycache.WithLogger(logger),
	)

	lr := learner.NewLearner(log, ai, client,
		learner.WithProfilePath(cfg.Paths.PreferencesFile),
		learner.WithLogger(logger),
	)

	return &Components{
		Store:     client,
		SignalLog: log,
		Inference: ai,
		Fetcher:   fetcher,
		Cache:     cache,
		Learner:   lr,
	}
}

func printUsage() {
	fmt.Println(`tracker - news reading-signal tracker and preference learner

Usage:
  tracker server [flags]      Start the HTTP API server
  tracker analyze [flags]     Run one preference-learning cycle
  tracker track [flags]       Record a click or dislike and flush it
  tracker summarize [flags]   Request an article summary from the server
  tracker version             Show version
  tracker help                Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/tracker/config.yaml)
  --debug            Enable debug logging (signal batches, cache hits, etc.)

Analyze Flags:
  --config string    Config file path

Track Flags:
  --config string    Config file path
  --server string    Server URL (default: http://localhost:8080)
  --id int           Article id (required)
  --title string     Article title (required)
  --url string       Article URL
  --category string  Article category
  --source string    Article source
  --date string      Viewing date YYYY-MM-DD (default: today)
  --dislike          Toggle a negative signal instead of a click

Summarize Flags:
  --server string    Server URL (default: http://localhost:8080)
  --url string       Article URL (required)
  --id int           Article id
  --title string     Article title
  --date string      Viewing date YYYY-MM-DD (default: today)

Examples:
  tracker server
  tracker track -id 3 -title "New chips announced" -category ai
  tracker track -id 3 -title "New chips announced" -dislike
  tracker summarize -url https://example.com/story -id 3
  tracker analyze`)
}
