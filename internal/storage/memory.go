package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/bingolead-stack/levelbot/internal/models"
)

// MemoryStore implements Interface without a database. Used by tests and
// backtests where durability is not needed. Snapshots are deep-copied on
// both save and load so callers cannot alias stored state.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]*models.StrategySnapshot
	updated   map[string]time.Time

	// SaveErr, when set, is returned by every SaveState call. Lets tests
	// exercise the save-failure path.
	SaveErr error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]*models.StrategySnapshot),
		updated:   make(map[string]time.Time),
	}
}

func copySnapshot(snap *models.StrategySnapshot) *models.StrategySnapshot {
	out := *snap
	out.TradeHistory = append([]models.HistoryRecord(nil), snap.TradeHistory...)
	out.OpenTrades = append([]models.OpenTrade(nil), snap.OpenTrades...)
	out.Retraces = append([]models.RetraceDirection(nil), snap.Retraces...)
	out.CumulativePnL = append([]float64(nil), snap.CumulativePnL...)
	out.StaticLevels = append([]float64(nil), snap.StaticLevels...)
	out.EntriesThisBar = append([]int(nil), snap.EntriesThisBar...)
	return &out
}

// SaveState implements Interface.
func (m *MemoryStore) SaveState(name string, snap *models.StrategySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.snapshots[name] = copySnapshot(snap)
	m.updated[name] = time.Now().UTC()
	return nil
}

// LoadState implements Interface.
func (m *MemoryStore) LoadState(name string) (*models.StrategySnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[name]
	if !ok {
		return nil, false, nil
	}
	return copySnapshot(snap), true, nil
}

// DeleteState implements Interface.
func (m *MemoryStore) DeleteState(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, name)
	delete(m.updated, name)
	return nil
}

// ListStrategies implements Interface.
func (m *MemoryStore) ListStrategies() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.snapshots))
	for name := range m.snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// LastUpdated implements Interface.
func (m *MemoryStore) LastUpdated(name string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.updated[name]
	if !ok {
		return time.Time{}, ErrUnknownStrategy
	}
	return t, nil
}

// Close implements Interface.
func (m *MemoryStore) Close() error { return nil }
