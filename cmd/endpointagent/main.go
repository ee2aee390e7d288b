package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sentrywatch/endpointagent/internal/agentlog"
	"github.com/sentrywatch/endpointagent/internal/config"
	"github.com/sentrywatch/endpointagent/internal/engine"
	"github.com/sentrywatch/endpointagent/internal/queue"
)

const queueFileName = "agent_queue.sqlite3"

func main() {
	configPath := flag.String("config", "config/agent.local.yaml", "Path to the agent config file")
	logLevel := flag.String("log-level", "INFO", "Log verbosity (INFO or DEBUG)")
	flag.Parse()

	agentlog.SetLevel(*logLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// The queue is the agent's durability guarantee; if it cannot be
	// opened there is nothing useful the agent can do.
	q, err := queue.Open(filepath.Join(cfg.Runtime.StateDir, queueFileName))
	if err != nil {
		log.Fatalf("Failed to open offline queue: %v", err)
	}
	defer q.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.New(cfg, q).Run(ctx); err != nil {
		log.Fatalf("Agent exited with error: %v", err)
	}
	log.Printf("Agent shut down cleanly")
}
