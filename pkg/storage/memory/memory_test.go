package memory

import (
	"testing"

	"github.com/nicktill/tracedump/pkg/storage"
	"github.com/nicktill/tracedump/pkg/storage/storagetest"
)

func TestMemoryStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return New()
	})
}
