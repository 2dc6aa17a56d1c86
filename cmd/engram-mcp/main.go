// cmd/engram-mcp is the entry point for the Engram MCP (Model Context
// Protocol) server. It wires a vector store backend, the LLM providers, and
// the memory orchestrator behind JSON-RPC 2.0 tools served over stdio.
//
// Startup sequence:
//  1. Load configuration from environment variables (plus an optional YAML
//     file given with -config).
//  2. Open the selected storage backend (sqlite, postgres, or chromem).
//  3. Build the text-generation and embedding clients, with the embedding
//     cache in front.
//  4. Assemble the orchestrator and, if enabled, the mutation event writer.
//  5. Serve JSON-RPC 2.0 requests from stdin, writing responses to stdout.
//
// CRITICAL: ALL logging MUST go to stderr. Any bytes written to stdout that
// are not valid JSON-RPC 2.0 response frames will corrupt the protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/scrypster/engram/internal/api/mcp"
	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/internal/extract"
	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/notify"
	"github.com/scrypster/engram/internal/reconcile"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/internal/storage/chromem"
	"github.com/scrypster/engram/internal/storage/postgres"
	"github.com/scrypster/engram/internal/storage/sqlite"
)

func main() {
	// Redirect the default logger to stderr so that any incidental log calls
	// (e.g. from imported packages) never pollute the stdout JSON-RPC stream.
	log.SetOutput(os.Stderr)
	log.SetPrefix("engram-mcp: ")
	log.SetFlags(log.LstdFlags)

	configPath := flag.String("config", "", "optional YAML config file overlaying the environment")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadConfigFile(*configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, history, err := openStorage(cfg)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer store.Close()

	// Set up a root context that is cancelled on SIGINT / SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	generator, err := llm.NewTextGenerator(cfg.LLM)
	if err != nil {
		log.Fatalf("failed to create text generator: %v", err)
	}

	embedder, err := llm.NewEmbeddingGenerator(cfg.LLM, cfg.Memory.EmbeddingDimension)
	if err != nil {
		log.Fatalf("failed to create embedding generator: %v", err)
	}
	if embedder == nil {
		log.Fatalf("provider %q does not offer embeddings; set ENGRAM_LLM_PROVIDER to ollama or openai", cfg.LLM.Provider)
	}
	embedder = llm.BatchLimitEmbeddingGenerator(embedder, cfg.Memory.BatchSize)
	embedder, err = llm.NewCachedEmbeddingGenerator(embedder, cfg.Memory.CacheTTL)
	if err != nil {
		log.Fatalf("failed to create embedding cache: %v", err)
	}

	extractor := extract.New(generator, extract.Options{
		MaxMessages:      cfg.Memory.MaxMessages,
		MinMessageLength: cfg.Memory.MinMessageLength,
		Temperature:      cfg.Memory.ExtractionTemperature,
	})
	decider := reconcile.NewLLMDecider(generator)

	orchestrator, err := engine.New(store, history, extractor, embedder, decider, cfg.Memory)
	if err != nil {
		log.Fatalf("failed to create orchestrator: %v", err)
	}
	if cfg.Notify.Enabled {
		orchestrator.SetNotifier(notify.NewEventWriter(cfg.Storage.DataPath))
		log.Printf("mutation events enabled under %s", filepath.Join(cfg.Storage.DataPath, "events"))
	}

	srv := mcp.NewServer(orchestrator)
	transport := mcp.NewStdioTransport(srv, os.Stdin, os.Stdout)

	log.Printf("serving (storage=%s provider=%s model=%s)", cfg.Storage.Engine, cfg.LLM.Provider, generator.GetModel())
	if err := transport.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("transport error: %v", err)
	}
	log.Println("shutdown complete")
}

// openStorage builds the configured backend. The sqlite and postgres stores
// implement both the vector store and the history log on one handle; chromem
// does the same in process.
func openStorage(cfg *config.Config) (storage.VectorStore, storage.HistoryStore, error) {
	switch cfg.Storage.Engine {
	case "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create data directory %q: %w", cfg.Storage.DataPath, err)
		}
		dbPath := filepath.Join(cfg.Storage.DataPath, "engram.db")
		store, err := sqlite.NewStore(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case "postgres":
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN, cfg.Memory.EmbeddingDimension)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case "chromem":
		store := chromem.NewStore()
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}
