package retention

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nicktill/tracedump/pkg/storage"
)

// Pruner deletes buckets that fall out of the retention window.
type Pruner struct {
	storage storage.Storage
	window  time.Duration
}

// New creates a pruner keeping window worth of seconds.
func New(store storage.Storage, window time.Duration) *Pruner {
	return &Pruner{
		storage: store,
		window:  window,
	}
}

// Result describes one pruning pass.
type Result struct {
	Cutoff  int64  `json:"cutoff"` // buckets before this second were removed
	Removed uint64 `json:"removed"`
	Kept    uint64 `json:"kept"`
}

// Prune removes every bucket older than the newest stored second minus
// the window. An empty store or a window below one second is a no-op.
func (p *Pruner) Prune(ctx context.Context) (*Result, error) {
	before, err := p.storage.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read store stats: %w", err)
	}
	window := int64(p.window / time.Second)
	if before.TotalBuckets == 0 || window <= 0 {
		return &Result{Kept: before.TotalBuckets}, nil
	}

	cutoff := before.Newest - window
	if before.Oldest >= cutoff {
		return &Result{Cutoff: cutoff, Kept: before.TotalBuckets}, nil
	}
	if err := p.storage.Delete(ctx, cutoff); err != nil {
		return nil, fmt.Errorf("failed to delete buckets before %d: %w", cutoff, err)
	}

	after, err := p.storage.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read store stats: %w", err)
	}
	return &Result{
		Cutoff:  cutoff,
		Removed: before.TotalBuckets - after.TotalBuckets,
		Kept:    after.TotalBuckets,
	}, nil
}

// Run prunes every interval until ctx is done.
func (p *Pruner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("🔄 Retention scheduler started (window %s, runs every %s)", p.window, interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 Stopping retention scheduler")
			return
		case <-ticker.C:
			start := time.Now()
			res, err := p.Prune(ctx)
			if err != nil {
				log.Printf("❌ Pruning failed: %v", err)
				continue
			}
			if res.Removed > 0 {
				log.Printf("✅ Pruned %d buckets before %d in %v", res.Removed, res.Cutoff, time.Since(start).Round(time.Millisecond))
			}
		}
	}
}
