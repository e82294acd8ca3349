package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/nicktill/tracedump/pkg/config"
	"github.com/nicktill/tracedump/pkg/storage"
	"github.com/nicktill/tracedump/pkg/storage/badger"
	"github.com/nicktill/tracedump/pkg/storage/memory"
	"github.com/nicktill/tracedump/pkg/storage/sqlite"
)

// openStore opens the configured bucket store.
func openStore(cfg config.StoreConfig) (storage.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "badger":
		store, err := badger.New(badger.Config{Path: cfg.Path, MaxMemoryMB: cfg.MaxMemoryMB})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return store, nil
	case "sqlite":
		store, err := sqlite.New(sqlite.Config{Path: cfg.Path})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("%w: %q", storage.ErrUnknownBackend, cfg.Backend)
}

func closeStore(store storage.Storage) {
	if err := store.Close(); err != nil {
		log.Printf("❌ Failed to close store: %v", err)
	}
}

// runBadgerGC reclaims value log space until ctx is done. Other backends
// return immediately.
func runBadgerGC(ctx context.Context, store storage.Storage) {
	badgerStore, ok := store.(*badger.Storage)
	if !ok {
		return
	}

	ticker := time.NewTicker(config.BadgerGCInterval)
	defer ticker.Stop()
	log.Printf("🗑️  BadgerDB GC scheduler started (runs every %s)", config.BadgerGCInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 Stopping BadgerDB GC scheduler")
			return
		case <-ticker.C:
			start := time.Now()
			err := badgerStore.RunGC(0.5)
			switch {
			case errors.Is(err, badgerdb.ErrNoRewrite):
				log.Printf("🗑️  GC completed in %v (no rewrite needed)", time.Since(start).Round(time.Millisecond))
			case err != nil:
				log.Printf("❌ GC failed: %v", err)
			default:
				log.Printf("✅ GC completed in %v (disk space reclaimed)", time.Since(start).Round(time.Millisecond))
			}
		}
	}
}
