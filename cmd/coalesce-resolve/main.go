// cmd/coalesce-resolve loads a batch of entity records, runs the resolution
// pipeline over them, and commits the resulting merges to the graph.
//
// Run sequence:
//  1. Load process configuration from environment variables.
//  2. Load and validate the resolution configuration (YAML).
//  3. Build the engine, restoring any persisted snapshot.
//  4. Push the input batch through the pipeline and coordinator.
//  5. Write merge records to stdout as JSON, one object per line.
//  6. Optionally keep serving merge events over WebSocket (-serve).
//
// Logging goes to stderr; stdout carries only the merge records so the
// output can be piped into downstream tooling.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/coalesce/internal/config"
	"github.com/scrypster/coalesce/internal/engine"
	"github.com/scrypster/coalesce/pkg/types"
)

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("coalesce-resolve: ")
	log.SetFlags(log.LstdFlags)

	var (
		recordsPath    = flag.String("records", "", "path to a JSON array of entity records (required)")
		resolutionPath = flag.String("resolution", "resolution.yaml", "path to the resolution configuration")
		serve          = flag.Bool("serve", false, "keep running and serve merge events over WebSocket")
	)
	flag.Parse()

	if *recordsPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()

	resolution, err := config.LoadResolution(*resolutionPath)
	if err != nil {
		log.Fatalf("resolution config: %v", err)
	}

	batch, err := loadRecords(*recordsPath)
	if err != nil {
		log.Fatalf("records: %v", err)
	}

	eng, err := engine.New(cfg, resolution)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("start: %v", err)
	}

	result, records, err := eng.ResolveBatch(ctx, batch)
	if err != nil {
		_ = eng.Shutdown(context.Background())
		log.Fatalf("resolve: %v", err)
	}

	log.Printf("resolved %d records: %d clusters committed, %d possible matches flagged",
		len(batch), len(result.Clusters), len(result.PossibleMatches))

	out := json.NewEncoder(os.Stdout)
	for _, record := range records {
		if err := out.Encode(record); err != nil {
			log.Fatalf("write record: %v", err)
		}
	}
	for _, possible := range result.PossibleMatches {
		log.Printf("possible match %s / %s at %.3f, review required",
			possible.EntityA, possible.EntityB, possible.Score)
	}

	if *serve {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		http.Handle("/ws/merges", eng.Hub())
		server := &http.Server{Addr: addr, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			log.Printf("serving merge events on ws://%s/ws/merges", addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("serve: %v", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}

	if err := eng.Shutdown(context.Background()); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}

// loadRecords reads a JSON array of entities from path.
func loadRecords(path string) ([]*types.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var batch []*types.Entity
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("%s contains no records", path)
	}
	return batch, nil
}
