package storage

import (
	"time"

	"github.com/bingolead-stack/levelbot/internal/models"
)

// Interface defines the contract for durable per-strategy state.
//
// Implementations must be safe for concurrent use - the dispatcher saves
// state after every bar while the inspection CLI may read concurrently.
// The provided SQLite implementation serializes all operations behind a
// mutex and runs every save in a single transaction.
type Interface interface {
	// SaveState persists the complete snapshot for the named strategy.
	// History and cumulative PnL are appended incrementally; open trades
	// and retrace annotations are replaced; static levels are written once.
	SaveState(name string, snap *models.StrategySnapshot) error

	// LoadState returns the stored snapshot for the named strategy.
	// found is false when the strategy has never been saved.
	LoadState(name string) (snap *models.StrategySnapshot, found bool, err error)

	// DeleteState removes every row belonging to the named strategy.
	DeleteState(name string) error

	// ListStrategies returns the names of all stored strategies.
	ListStrategies() ([]string, error)

	// LastUpdated returns the time of the most recent save for a strategy.
	LastUpdated(name string) (time.Time, error)

	// Close releases the underlying database handle.
	Close() error
}

// Ensure both implementations satisfy Interface.
var (
	_ Interface = (*SQLiteStore)(nil)
	_ Interface = (*MemoryStore)(nil)
)
