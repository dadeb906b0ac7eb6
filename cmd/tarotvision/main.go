// Package main is the tarotvision CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tarotvision/tarotvision/internal/adapter"
	"github.com/tarotvision/tarotvision/internal/cli"
	"github.com/tarotvision/tarotvision/internal/config"
	"github.com/tarotvision/tarotvision/internal/deck"
	"github.com/tarotvision/tarotvision/internal/embedding"
	"github.com/tarotvision/tarotvision/internal/index"
	"github.com/tarotvision/tarotvision/internal/server"
	"github.com/tarotvision/tarotvision/internal/watcher"
	"github.com/tarotvision/tarotvision/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/tarotvision/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if neither exists the
// built-in defaults are used, matching the original working-directory artifact
// layout.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				return config.Load(fallback)
			}
		}
		if _, statErr := os.Stat(path); statErr != nil {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "build":
		runBuild()
	case "query":
		runQuery()
	case "train":
		runTrain()
	case "serve":
		runServe()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("tarotvision version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	deckName := fs.String("deck", "", "deck name (required, e.g. rws, thoth)")
	adapterPath := fs.String("adapter", "", "adapter directory (default: the deck's conventional adapter dir)")
	exportPath := fs.String("export", "", "export merged prototypes JSON to this path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if *deckName == "" {
		fmt.Println("build requires -deck (e.g. tarotvision build -deck rws)")
		os.Exit(1)
	}
	cfg, logger := mustSetup(*configPath, *debug)
	defer logger.Sync()

	embedder := mustEmbedder(cfg, resolveAdapterDir(cfg, *deckName, *adapterPath), logger)
	defer embedder.Close()

	builder := index.NewBuilder(embedder, deckPaths(cfg), logger)
	result, err := builder.Build(context.Background(), *deckName, *exportPath)
	if err != nil {
		fmt.Printf("Build failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Built index for deck %s: %d vectors (%d skipped)\n",
		*deckName, result.Index.Size(), result.Skipped)
	fmt.Printf("  index:    %s\n  metadata: %s\n", result.IndexPath, result.MetadataPath)
}

func runQuery() {
	args := queryArgsReorder(os.Args[2:])
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	deckName := fs.String("deck", "", "deck name (default: the configured sample deck)")
	k := fs.Int("k", 0, "number of results (default from config)")
	output := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, logger := mustSetup(*configPath, *debug)
	defer logger.Sync()

	if *deckName == "" {
		*deckName = cfg.Search.DefaultDeck
	}
	if *k <= 0 {
		*k = cfg.Search.DefaultTopK
	}
	text := buildQueryText(fs.Args())
	if text == "" {
		text = cfg.Search.DefaultQuery
	}

	// Adapter resolution mirrors the builder: the deck's conventional directory,
	// falling back to the base model with a warning when absent.
	embedder := mustEmbedder(cfg, resolveAdapterDir(cfg, *deckName, ""), logger)
	defer embedder.Close()

	query := index.NewQuery(embedder, deckPaths(cfg), logger)
	matches, err := query.Run(context.Background(), *deckName, text, *k)
	if err != nil {
		fmt.Printf("Query failed: %v\n", err)
		os.Exit(1)
	}
	response := &cli.QueryResponse{Deck: *deckName, Query: text, Matches: matches}
	if err := cli.WriteMatches(os.Stdout, response, cli.OutputFormat(*output)); err != nil {
		fmt.Printf("Failed to write results: %v\n", err)
		os.Exit(1)
	}
}

func runTrain() {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	deckName := fs.String("deck", "", "deck name (default: the configured sample deck)")
	epochs := fs.Int("epochs", 0, "epoch count (default from config)")
	batchSize := fs.Int("batch-size", 0, "batch size (default from config)")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := mustSetup(*configPath, *debug)
	defer logger.Sync()

	if *deckName == "" {
		*deckName = cfg.Search.DefaultDeck
	}
	if *epochs > 0 {
		cfg.Train.Epochs = *epochs
	}
	if *batchSize > 0 {
		cfg.Train.BatchSize = *batchSize
	}

	// Training starts from the frozen base model; no adapter is composed.
	embedder := mustEmbedder(cfg, "", logger)
	defer embedder.Close()

	trainer := adapter.NewTrainer(embedder, adapter.TrainConfig{
		Epochs:       cfg.Train.Epochs,
		BatchSize:    cfg.Train.BatchSize,
		Rank:         cfg.Train.Rank,
		Alpha:        cfg.Train.Alpha,
		LearningRate: cfg.Train.LearningRate,
	}, logger)
	paths := deckPaths(cfg)
	if err := trainer.Train(context.Background(), paths.ImagesDir(*deckName), paths.AdapterDir(*deckName)); err != nil {
		fmt.Printf("Training failed: %v\n", err)
		os.Exit(1)
	}
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	adapterPath := fs.String("adapter", "", "adapter directory composed with the base model for all queries")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := mustSetup(*configPath, *debug)
	defer logger.Sync()

	embedder := mustEmbedder(cfg, *adapterPath, logger)
	defer embedder.Close()

	query := index.NewQuery(embedder, deckPaths(cfg), logger)
	srv := server.NewServer(query, &cfg.Search, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	waitForSignal()
	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	deckName := fs.String("deck", "", "deck name (default: the configured sample deck)")
	exportPath := fs.String("export", "", "export merged prototypes JSON to this path on each rebuild")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := mustSetup(*configPath, *debug)
	defer logger.Sync()

	if *deckName == "" {
		*deckName = cfg.Search.DefaultDeck
	}
	embedder := mustEmbedder(cfg, resolveAdapterDir(cfg, *deckName, ""), logger)
	defer embedder.Close()

	builder := index.NewBuilder(embedder, deckPaths(cfg), logger)
	rebuild := func() {
		if _, err := builder.Build(context.Background(), *deckName, *exportPath); err != nil {
			logger.Warn("rebuild failed", zap.String("deck", *deckName), zap.Error(err))
		}
	}
	rebuild()

	w := watcher.NewWatcher(deckPaths(cfg).ImagesDir(*deckName), rebuild, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		fmt.Printf("Failed to start watcher: %v\n", err)
		os.Exit(1)
	}
	waitForSignal()
	w.Stop()
}

// mustSetup loads config and constructs the logger, exiting on failure.
func mustSetup(configPath string, debug bool) (*config.Config, *zap.Logger) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger
}

// mustEmbedder resolves the compute device once and constructs the CLIP embedder,
// exiting on failure.
func mustEmbedder(cfg *config.Config, adapterDir string, logger *zap.Logger) embedding.Embedder {
	device := embedding.ResolveDevice()
	embedder, err := embedding.NewCLIPEmbedder(embedding.ModelConfig{
		ImageModelPath: cfg.Embedding.ImageModelPath,
		TextModelPath:  cfg.Embedding.TextModelPath,
		Dimensions:     cfg.Embedding.Dimensions,
		ImageSize:      cfg.Embedding.ImageSize,
		MaxTokens:      cfg.Embedding.MaxTokens,
		CacheSize:      cfg.Embedding.CacheSize,
	}, adapterDir, device, logger)
	if err != nil {
		fmt.Printf("Failed to initialize embedder: %v\n", err)
		os.Exit(1)
	}
	return embedder
}

func deckPaths(cfg *config.Config) deck.Paths {
	return deck.Paths{
		ImagesRoot:   cfg.Paths.ImagesRoot,
		IndicesRoot:  cfg.Paths.IndicesRoot,
		AdaptersRoot: cfg.Paths.AdaptersRoot,
	}
}

// resolveAdapterDir returns the explicit adapter path when given, else the deck's
// conventional adapter directory.
func resolveAdapterDir(cfg *config.Config, deckName, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return deckPaths(cfg).AdapterDir(deckName)
}

// buildQueryText joins all positional args with spaces so multi-word queries work
// the same with or without shell quoting.
func buildQueryText(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// queryArgsReorder moves any flags (and their values) that appear after the query
// text to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "tarotvision query magician -k 3" would
// otherwise leave -k unparsed.
func queryArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
}

func printUsage() {
	fmt.Println(`tarotvision - tarot card embedding index pipeline

Usage:
  tarotvision build -deck <name> [-adapter <dir>] [-export <path>]
  tarotvision query [-deck <name>] [-k <n>] [-output text|json] <query text...>
  tarotvision train [-deck <name>] [-epochs <n>] [-batch-size <n>]
  tarotvision serve [-adapter <dir>]
  tarotvision watch [-deck <name>] [-export <path>]
  tarotvision version
  tarotvision help

Commands:
  build   Embed a deck's card images and build its similarity index
  query   Search a deck's index with a text description
  train   Fine-tune a low-rank adapter for a deck's artistic style
  serve   Expose deck queries over HTTP
  watch   Rebuild a deck's index whenever its source images change

All commands accept -config <path> and -debug.`)
}
