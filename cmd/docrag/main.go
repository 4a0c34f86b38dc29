package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"docrag/internal/answer"
	"docrag/internal/chunker"
	"docrag/internal/config"
	"docrag/internal/domain"
	"docrag/internal/embedding/hashing"
	embopenai "docrag/internal/embedding/openai"
	"docrag/internal/extract"
	"docrag/internal/generation/extractive"
	genopenai "docrag/internal/generation/openai"
	"docrag/internal/logging"
	"docrag/internal/retrieval"
	"docrag/internal/service"
	"docrag/internal/vectorstore"
)

const usage = `Usage: docrag <command> [flags] [args]

Commands:
  ingest   index files matching glob patterns (supports **)
  ask      answer one question
  chat     interactive console
  eval     run an evaluation dataset and print the JSON report
  watch    index files as they appear in directories

Run "docrag <command> -h" for command flags.
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd(ctx, os.Args[2:]); err != nil {
		slog.Error("command failed", "command", os.Args[1], "error", err)
		stop()
		os.Exit(1)
	}
}

// app is the wired object graph shared by the commands.
type app struct {
	cfg    *config.AppConfig
	logger *slog.Logger
	svc    *service.Service
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(path)
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.Configure(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}
	ch, err := newChunker(cfg)
	if err != nil {
		return nil, err
	}
	policy, err := answer.ParsePolicy(cfg.Answer.RefusalPolicy)
	if err != nil {
		return nil, err
	}

	registry := vectorstore.NewRegistry(cfg.Index.Dir, logger)
	svc := service.New(service.Deps{
		Chunker:    ch,
		Embedder:   emb,
		Extractor:  extract.New(),
		Store:      registry,
		Generator:  gen,
		Detector:   answer.NewRefusalDetector(cfg.Answer.RefusalPhrases, policy),
		Normalizer: retrieval.NewNormalizer(cfg.Retrieval.NormalizePhrases),
	}, retrieval.Options{
		TopK:                cfg.Retrieval.TopK,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		ConfidenceThreshold: cfg.Retrieval.ConfidenceThreshold,
	}, logger)

	logger.Debug("wired", "embedder", emb.Name(), "generator", gen.Name(), "index_dir", cfg.Index.Dir)
	return &app{cfg: cfg, logger: logger, svc: svc}, nil
}

func newEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "openai":
		oc := cfg.Embedder.OpenAI
		return embopenai.New(embopenai.Config{
			BaseURL:    oc.BaseURL,
			APIKey:     oc.APIKey(),
			Model:      oc.Model,
			Timeout:    time.Duration(oc.TimeoutSecs) * time.Second,
			BatchSize:  oc.BatchSize,
			Dimensions: oc.Dimensions,
			MaxRetries: oc.MaxRetries,
		})
	default:
		return hashing.NewEmbedder(cfg.Embedder.Dimension), nil
	}
}

func newGenerator(cfg *config.AppConfig) (domain.Generator, error) {
	switch cfg.Generator.Type {
	case "openai":
		oc := cfg.Generator.OpenAI
		return genopenai.New(genopenai.Config{
			BaseURL:     oc.BaseURL,
			APIKey:      oc.APIKey(),
			Model:       oc.Model,
			Timeout:     time.Duration(oc.TimeoutSecs) * time.Second,
			Temperature: oc.Temperature,
		})
	default:
		return extractive.New(cfg.Generator.MaxSentences), nil
	}
}

func newChunker(cfg *config.AppConfig) (domain.Chunker, error) {
	switch cfg.Chunker.Type {
	case "sentence":
		return chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences), nil
	default:
		return chunker.NewWindowChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	}
}
