// Package storage persists strategy state to a relational SQLite database.
// One scalar row per strategy plus five child tables: append-only trade
// history and cumulative PnL, replace-on-write open trades and retrace
// annotations, and write-once static levels.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bingolead-stack/levelbot/internal/models"
)

// strategyStateRow is the main scalar table, keyed by unique strategy name.
type strategyStateRow struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	StrategyName     string `gorm:"uniqueIndex;not null"`
	CurrentCashValue float64
	OpenTradeCount   int
	TotalPnL         float64
	Price            *float64
	LastPrice        *float64
	HighPrice        *float64
	LowPrice         *float64
	BarTime          *time.Time
	WinRate          float64
	AvgWinner        float64
	AvgLoser         float64
	TotalTrades      int
	RewardToRisk     float64
	MaxLosingStreak  int
	LastEntryTime    *time.Time
	LastBarTime      *time.Time
	EntriesThisBar   string // JSON array of ladder indices
	FlattenedToday   bool
	FlattenDate      string
	LastUpdated      time.Time `gorm:"autoUpdateTime"`
}

func (strategyStateRow) TableName() string { return "strategy_state" }

// tradeHistoryRow is append-only; the autoincrement id preserves insertion
// order across saves.
type tradeHistoryRow struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	StrategyName string `gorm:"index;not null"`
	TradeTime    time.Time
	TradeType    string
	Price        float64
	PnL          float64
}

func (tradeHistoryRow) TableName() string { return "trade_history" }

// openTradeRow rows are deleted and reinserted on every save.
type openTradeRow struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	StrategyName    string `gorm:"index;not null"`
	TradeID         string
	Side            string
	EntryTime       time.Time
	EntryPrice      float64
	StopLevel       float64
	TrailingStop    *float64
	TradedLevel     float64
	TakeProfitLevel float64
}

func (openTradeRow) TableName() string { return "open_trades" }

// retraceLevelRow is upserted on the (strategy, level index) composite key.
type retraceLevelRow struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	StrategyName string `gorm:"not null;uniqueIndex:idx_retrace_strategy_level"`
	LevelIndex   int    `gorm:"not null;uniqueIndex:idx_retrace_strategy_level"`
	Direction    string
}

func (retraceLevelRow) TableName() string { return "retrace_levels" }

// cumulativePnLRow is append-only, one row per closing event.
type cumulativePnLRow struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	StrategyName   string `gorm:"index;not null"`
	SequenceNumber int
	PnLValue       float64
}

func (cumulativePnLRow) TableName() string { return "cumulative_pnl" }

// staticLevelRow is written on the first save only; the ladder is immutable.
type staticLevelRow struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	StrategyName string `gorm:"not null;uniqueIndex:idx_static_strategy_level"`
	LevelIndex   int    `gorm:"not null;uniqueIndex:idx_static_strategy_level"`
	LevelValue   float64
}

func (staticLevelRow) TableName() string { return "static_levels" }

// SQLiteStore implements Interface on a single SQLite database file.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *gorm.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens (creating if necessary) the database at path and
// migrates the schema.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	if err := db.AutoMigrate(
		&strategyStateRow{},
		&tradeHistoryRow{},
		&openTradeRow{},
		&retraceLevelRow{},
		&cumulativePnLRow{},
		&staticLevelRow{},
	); err != nil {
		return nil, fmt.Errorf("migrating state database: %w", err)
	}
	logger.WithField("path", path).Info("state database initialized")
	return &SQLiteStore{db: db, logger: logger}, nil
}

// SaveState implements Interface. The whole save is one transaction; on any
// error the transaction rolls back and the error is returned to the caller.
func (s *SQLiteStore) SaveState(name string, snap *models.StrategySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := json.Marshal(snap.EntriesThisBar)
	if err != nil {
		return fmt.Errorf("encoding entries_this_bar: %w", err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		row := strategyStateRow{
			StrategyName:     name,
			CurrentCashValue: snap.CurrentCashValue,
			OpenTradeCount:   snap.OpenTradeCount,
			TotalPnL:         snap.TotalPnL,
			Price:            snap.Price,
			LastPrice:        snap.LastPrice,
			HighPrice:        snap.HighPrice,
			LowPrice:         snap.LowPrice,
			BarTime:          snap.BarTime,
			WinRate:          snap.Stats.WinRate,
			AvgWinner:        snap.Stats.AvgWinner,
			AvgLoser:         snap.Stats.AvgLoser,
			TotalTrades:      snap.Stats.TotalTrades,
			RewardToRisk:     snap.Stats.RewardToRisk,
			MaxLosingStreak:  snap.Stats.MaxLosingStreak,
			LastEntryTime:    snap.LastEntryTime,
			LastBarTime:      snap.LastBarTime,
			EntriesThisBar:   string(entries),
			FlattenedToday:   snap.FlattenedToday,
			FlattenDate:      snap.FlattenDate,
			LastUpdated:      time.Now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "strategy_name"}},
			UpdateAll: true,
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("upserting strategy state: %w", err)
		}

		// Append only the history suffix that is not yet stored.
		var historyCount int64
		if err := tx.Model(&tradeHistoryRow{}).
			Where("strategy_name = ?", name).Count(&historyCount).Error; err != nil {
			return fmt.Errorf("counting trade history: %w", err)
		}
		if int(historyCount) > len(snap.TradeHistory) {
			return fmt.Errorf("stored history (%d rows) longer than snapshot (%d) for %s",
				historyCount, len(snap.TradeHistory), name)
		}
		for _, rec := range snap.TradeHistory[historyCount:] {
			if err := tx.Create(&tradeHistoryRow{
				StrategyName: name,
				TradeTime:    rec.Timestamp,
				TradeType:    string(rec.Action),
				Price:        rec.Price,
				PnL:          rec.PnL,
			}).Error; err != nil {
				return fmt.Errorf("appending trade history: %w", err)
			}
		}

		// Open trades: delete and reinsert.
		if err := tx.Where("strategy_name = ?", name).
			Delete(&openTradeRow{}).Error; err != nil {
			return fmt.Errorf("clearing open trades: %w", err)
		}
		for _, ot := range snap.OpenTrades {
			if err := tx.Create(&openTradeRow{
				StrategyName:    name,
				TradeID:         ot.ID,
				Side:            string(ot.Side),
				EntryTime:       ot.EntryTime,
				EntryPrice:      ot.EntryPrice,
				StopLevel:       ot.StopLevel,
				TrailingStop:    ot.TrailingStop,
				TradedLevel:     ot.TriggeringLevel,
				TakeProfitLevel: ot.TakeProfitLevel,
			}).Error; err != nil {
				return fmt.Errorf("inserting open trade: %w", err)
			}
		}

		// Retrace annotations: upsert on (strategy, level index).
		for i, dir := range snap.Retraces {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "strategy_name"}, {Name: "level_index"}},
				DoUpdates: clause.AssignmentColumns([]string{"direction"}),
			}).Create(&retraceLevelRow{
				StrategyName: name,
				LevelIndex:   i,
				Direction:    string(dir),
			}).Error; err != nil {
				return fmt.Errorf("upserting retrace level %d: %w", i, err)
			}
		}

		// Cumulative PnL: append the new suffix.
		var pnlCount int64
		if err := tx.Model(&cumulativePnLRow{}).
			Where("strategy_name = ?", name).Count(&pnlCount).Error; err != nil {
			return fmt.Errorf("counting cumulative pnl: %w", err)
		}
		if int(pnlCount) > len(snap.CumulativePnL) {
			return fmt.Errorf("stored cumulative pnl (%d rows) longer than snapshot (%d) for %s",
				pnlCount, len(snap.CumulativePnL), name)
		}
		for i, v := range snap.CumulativePnL[pnlCount:] {
			if err := tx.Create(&cumulativePnLRow{
				StrategyName:   name,
				SequenceNumber: int(pnlCount) + i,
				PnLValue:       v,
			}).Error; err != nil {
				return fmt.Errorf("appending cumulative pnl: %w", err)
			}
		}

		// Static levels are immutable: write on the first save only.
		if len(snap.StaticLevels) > 0 {
			var staticCount int64
			if err := tx.Model(&staticLevelRow{}).
				Where("strategy_name = ?", name).Count(&staticCount).Error; err != nil {
				return fmt.Errorf("counting static levels: %w", err)
			}
			if staticCount == 0 {
				for i, lv := range snap.StaticLevels {
					if err := tx.Create(&staticLevelRow{
						StrategyName: name,
						LevelIndex:   i,
						LevelValue:   lv,
					}).Error; err != nil {
						return fmt.Errorf("inserting static level %d: %w", i, err)
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("strategy", name).Error("state save failed")
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"strategy":    name,
		"open_trades": len(snap.OpenTrades),
		"history":     len(snap.TradeHistory),
	}).Debug("state saved")
	return nil
}

// LoadState implements Interface.
func (s *SQLiteStore) LoadState(name string) (*models.StrategySnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap *models.StrategySnapshot
	found := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var row strategyStateRow
		if err := tx.Where("strategy_name = ?", name).First(&row).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return fmt.Errorf("loading strategy state: %w", err)
		}
		found = true

		snap = &models.StrategySnapshot{
			CurrentCashValue: row.CurrentCashValue,
			OpenTradeCount:   row.OpenTradeCount,
			TotalPnL:         row.TotalPnL,
			Price:            row.Price,
			LastPrice:        row.LastPrice,
			HighPrice:        row.HighPrice,
			LowPrice:         row.LowPrice,
			BarTime:          row.BarTime,
			Stats: models.SummaryStats{
				TotalPnL:        row.TotalPnL,
				WinRate:         row.WinRate,
				AvgWinner:       row.AvgWinner,
				AvgLoser:        row.AvgLoser,
				TotalTrades:     row.TotalTrades,
				RewardToRisk:    row.RewardToRisk,
				MaxLosingStreak: row.MaxLosingStreak,
			},
			LastEntryTime:  row.LastEntryTime,
			LastBarTime:    row.LastBarTime,
			FlattenedToday: row.FlattenedToday,
			FlattenDate:    row.FlattenDate,
		}
		if row.EntriesThisBar != "" {
			if err := json.Unmarshal([]byte(row.EntriesThisBar), &snap.EntriesThisBar); err != nil {
				return fmt.Errorf("decoding entries_this_bar: %w", err)
			}
		}

		var history []tradeHistoryRow
		if err := tx.Where("strategy_name = ?", name).
			Order("id").Find(&history).Error; err != nil {
			return fmt.Errorf("loading trade history: %w", err)
		}
		for _, h := range history {
			snap.TradeHistory = append(snap.TradeHistory, models.HistoryRecord{
				Timestamp: h.TradeTime,
				Action:    models.TradeAction(h.TradeType),
				Price:     h.Price,
				PnL:       h.PnL,
			})
		}

		var open []openTradeRow
		if err := tx.Where("strategy_name = ?", name).
			Order("id").Find(&open).Error; err != nil {
			return fmt.Errorf("loading open trades: %w", err)
		}
		for _, ot := range open {
			snap.OpenTrades = append(snap.OpenTrades, models.OpenTrade{
				ID:              ot.TradeID,
				Side:            models.TradeSide(ot.Side),
				EntryTime:       ot.EntryTime,
				EntryPrice:      ot.EntryPrice,
				StopLevel:       ot.StopLevel,
				TrailingStop:    ot.TrailingStop,
				TriggeringLevel: ot.TradedLevel,
				TakeProfitLevel: ot.TakeProfitLevel,
			})
		}

		var retraces []retraceLevelRow
		if err := tx.Where("strategy_name = ?", name).
			Order("level_index").Find(&retraces).Error; err != nil {
			return fmt.Errorf("loading retrace levels: %w", err)
		}
		for _, r := range retraces {
			for len(snap.Retraces) < r.LevelIndex {
				snap.Retraces = append(snap.Retraces, models.RetraceNone)
			}
			snap.Retraces = append(snap.Retraces, models.RetraceDirection(r.Direction))
		}

		var pnls []cumulativePnLRow
		if err := tx.Where("strategy_name = ?", name).
			Order("sequence_number").Find(&pnls).Error; err != nil {
			return fmt.Errorf("loading cumulative pnl: %w", err)
		}
		for _, p := range pnls {
			snap.CumulativePnL = append(snap.CumulativePnL, p.PnLValue)
		}

		var statics []staticLevelRow
		if err := tx.Where("strategy_name = ?", name).
			Order("level_index").Find(&statics).Error; err != nil {
			return fmt.Errorf("loading static levels: %w", err)
		}
		for _, lv := range statics {
			snap.StaticLevels = append(snap.StaticLevels, lv.LevelValue)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		s.logger.WithField("strategy", name).Info("no saved state found")
		return nil, false, nil
	}
	return snap, true, nil
}

// DeleteState implements Interface.
func (s *SQLiteStore) DeleteState(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{
			&tradeHistoryRow{}, &openTradeRow{}, &retraceLevelRow{},
			&cumulativePnLRow{}, &staticLevelRow{}, &strategyStateRow{},
		} {
			if err := tx.Where("strategy_name = ?", name).Delete(model).Error; err != nil {
				return fmt.Errorf("deleting strategy rows: %w", err)
			}
		}
		return nil
	})
}

// ListStrategies implements Interface.
func (s *SQLiteStore) ListStrategies() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	if err := s.db.Model(&strategyStateRow{}).
		Order("strategy_name").Pluck("strategy_name", &names).Error; err != nil {
		return nil, fmt.Errorf("listing strategies: %w", err)
	}
	return names, nil
}

// LastUpdated implements Interface.
func (s *SQLiteStore) LastUpdated(name string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row strategyStateRow
	if err := s.db.Where("strategy_name = ?", name).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return time.Time{}, ErrUnknownStrategy
		}
		return time.Time{}, fmt.Errorf("loading last update time: %w", err)
	}
	return row.LastUpdated, nil
}

// Close implements Interface.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
