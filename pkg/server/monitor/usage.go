package monitor

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DiskUsage reports the on-disk size of a store path, cached to avoid
// walking a badger directory on every request.
type DiskUsage struct {
	path          string
	cachedUsage   int64
	lastCheck     time.Time
	cacheDuration time.Duration
	mu            sync.Mutex
}

// NewDiskUsage measures path, a file or a directory.
func NewDiskUsage(path string) *DiskUsage {
	return &DiskUsage{
		path:          path,
		cacheDuration: 10 * time.Second,
	}
}

// Path returns the measured path.
func (d *DiskUsage) Path() string {
	return d.path
}

// GetUsage returns the disk usage in bytes, refreshed at most every 10s.
func (d *DiskUsage) GetUsage() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.lastCheck.IsZero() && time.Since(d.lastCheck) < d.cacheDuration {
		return d.cachedUsage, nil
	}

	usage, err := pathSize(d.path)
	if err != nil {
		return 0, err
	}
	d.cachedUsage = usage
	d.lastCheck = time.Now()
	return usage, nil
}

// pathSize sums the allocated size of every file under path.
func pathSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if actual, err := allocatedSize(filePath, info); err == nil {
			size += actual
		} else {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
