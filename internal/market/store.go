package market

import (
	"sync/atomic"

	"github.com/seenimoa/marketpulse/pkg/models"
)

// Store holds the published snapshot. Readers always see a complete
// snapshot; a publish replaces it with a single pointer swap.
type Store struct {
	current atomic.Pointer[models.MarketSnapshot]
}

// NewStore returns a store holding the empty initial snapshot.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(models.EmptySnapshot())
	return s
}

// Load returns the current snapshot. Callers must not modify it.
func (s *Store) Load() *models.MarketSnapshot {
	return s.current.Load()
}

// Publish makes snap the current snapshot and returns the one it replaced.
func (s *Store) Publish(snap *models.MarketSnapshot) *models.MarketSnapshot {
	return s.current.Swap(snap)
}
