package service

import (
	"context"
	"sync"

	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/domain"
)

// MemoryStateStore keeps the latest snapshot of each station in process.
// A snapshot older than the one held is ignored, so a late Save cannot
// roll a station back.
type MemoryStateStore struct {
	mu       sync.RWMutex
	stations map[string]domain.ScannerState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{stations: make(map[string]domain.ScannerState)}
}

func (s *MemoryStateStore) Save(ctx context.Context, state domain.ScannerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held, ok := s.stations[state.StationID]; ok && state.UpdatedAt.Before(held.UpdatedAt) {
		return nil
	}
	s.stations[state.StationID] = state.Clone()
	return nil
}

// Get returns a copy of the station's snapshot, or nil when the station
// has none.
func (s *MemoryStateStore) Get(ctx context.Context, stationID string) (*domain.ScannerState, error) {
	s.mu.RLock()
	held, ok := s.stations[stationID]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	snap := held.Clone()
	return &snap, nil
}

func (s *MemoryStateStore) Delete(ctx context.Context, stationID string) error {
	s.mu.Lock()
	delete(s.stations, stationID)
	s.mu.Unlock()
	return nil
}

var _ StateStore = (*MemoryStateStore)(nil)
