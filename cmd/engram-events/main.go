// cmd/engram-events tails the mutation event directory written by the MCP
// server when notifications are enabled (ENGRAM_NOTIFY_ENABLED=true). Each
// memory.added, memory.updated, and memory.deleted event is printed to stdout
// as one JSON line, so downstream automations can pipe the stream into their
// own tooling without touching the database.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/notify"
)

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("engram-events: ")
	log.SetFlags(log.LstdFlags)

	dataPath := flag.String("data", "", "data directory shared with the MCP server (default: ENGRAM_DATA_PATH)")
	flag.Parse()

	dir := *dataPath
	if dir == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		dir = cfg.Storage.DataPath
	}

	enc := json.NewEncoder(os.Stdout)
	watcher := notify.NewEventWatcher(dir, func(event notify.Event) {
		if err := enc.Encode(event); err != nil {
			log.Printf("failed to write event for %s: %v", event.MemoryID, err)
		}
	})
	if err := watcher.Start(); err != nil {
		log.Fatalf("failed to watch %s: %v", dir, err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	watcher.Stop()
}
