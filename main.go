package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"datakraken/internal/config"
	"datakraken/internal/coordinator"
	"datakraken/internal/fcafirds"
	"datakraken/internal/justetf"
	"datakraken/internal/runlog"
	"datakraken/internal/snapshot"
	"datakraken/internal/snapshot/fsstore"
	"datakraken/internal/snapshot/sqlstore"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	// Open the snapshot store
	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open snapshot store: %v", err)
	}
	defer closeStore()

	session := snapshot.NewSession(store)

	// Build jobs dynamically from configuration
	var jobs []coordinator.Job

	justetfPolicy, err := cfg.PolicyFor("justetf")
	if err != nil {
		log.Fatalf("Invalid justetf policy: %v", err)
	}
	for _, isin := range cfg.ISINs {
		jobs = append(jobs, coordinator.Job{
			Fetcher: justetf.NewProfileFetcher(isin, cfg.JustETFBaseURL),
			Policy:  justetfPolicy,
		})
	}
	if cfg.DiscoverProfiles {
		jobs = append(jobs, coordinator.Job{
			Fetcher: justetf.NewSitemapFetcher(cfg.JustETFBaseURL),
			Policy:  justetfPolicy,
		})
	}

	firdsPolicy, err := cfg.PolicyFor("fca_firds")
	if err != nil {
		log.Fatalf("Invalid fca_firds policy: %v", err)
	}
	for _, q := range cfg.FirdsQueries {
		jobs = append(jobs, coordinator.Job{
			Fetcher: fcafirds.NewFileIndexFetcher(q.FileType, q.PublicationDate, cfg.FCAFirdsBaseURL),
			Policy:  firdsPolicy,
		})
	}

	// Record per-resource progress for this run
	runLog, err := runlog.New(cfg.RunsDir(), "")
	if err != nil {
		log.Fatalf("Failed to open run log: %v", err)
	}
	defer runLog.Close()

	coord := coordinator.New(session, jobs).
		SetWorkers(cfg.Workers).
		SetRunLog(runLog)

	// Add timeout to prevent hanging indefinitely
	fetchCtx, fetchCancel := context.WithTimeout(ctx, 10*time.Minute)
	defer fetchCancel()

	fmt.Printf("Collecting raw snapshots (run %s)...\n", runLog.RunID())
	fmt.Println("================================================")
	results, err := coord.Run(fetchCtx)
	if err != nil {
		log.Fatalf("Coordinator failed: %v", err)
	}

	failures := 0
	for _, res := range results {
		if res.Err != nil {
			failures++
			fmt.Printf("%s: ERROR - %v\n", res.Key, res.Err)
			continue
		}
		status := "fetched"
		if res.CacheHit {
			status = "cached"
		}
		fmt.Printf("%s: %s bucket=%s (%d bytes)\n", res.Key, status, res.Bucket, res.Length)
	}

	fmt.Println("================================================")
	fmt.Printf("Run %s complete: %d ok, %d failed\n", runLog.RunID(), len(results)-failures, failures)
	if failures > 0 {
		os.Exit(1)
	}
}

// openStore builds the configured snapshot store backend.
func openStore(cfg *config.Config) (snapshot.Store, func(), error) {
	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		return nil, nil, err
	}
	switch cfg.StoreBackend {
	case "sqlite":
		store, err := sqlstore.Open(cfg.SnapshotDBPath(), sqlstore.Options{})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return fsstore.New(cfg.DataRoot), func() {}, nil
	}
}
