package memory

import (
	"testing"

	"github.com/cory-johannsen/covey/internal/storage"
	"github.com/cory-johannsen/covey/internal/storage/storagetest"
)

func TestStoreConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return New() })
}
