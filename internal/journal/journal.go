package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"parity/internal/risk"
)

// TradeModel is the persisted shape of one settled trade. Append-only: rows
// are never updated or deleted.
type TradeModel struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	SessionID         string    `gorm:"index;size:36"`
	Side              string    `gorm:"size:16"`
	Stake             float64   `gorm:"not null"`
	Outcome           string    `gorm:"size:8"`
	Profit            float64   `gorm:"not null"`
	BalanceAfter      float64   `gorm:"not null"`
	ConsecutiveLosses int       `gorm:"not null"`
	Mode              string    `gorm:"size:8"`
	ExecutedAt        time.Time `gorm:"index"`
	CreatedAt         time.Time
}

func (TradeModel) TableName() string { return "trades" }

// Journal is a write-only trade log backed by SQLite. It is observability,
// not state: nothing reads it back at runtime.
type Journal struct {
	db        *gorm.DB
	sessionID string
}

func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	if err := db.AutoMigrate(&TradeModel{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	return &Journal{db: db, sessionID: uuid.NewString()}, nil
}

func (j *Journal) SessionID() string {
	if j == nil {
		return ""
	}
	return j.sessionID
}

// Record persists one settled trade. Nil journals are a no-op so callers
// don't need to branch on whether journaling is enabled.
func (j *Journal) Record(rec risk.TradeRecord, mode string) error {
	if j == nil {
		return nil
	}
	row := TradeModel{
		SessionID:         j.sessionID,
		Side:              rec.Side,
		Stake:             rec.Stake,
		Outcome:           string(rec.Outcome),
		Profit:            rec.Profit,
		BalanceAfter:      rec.BalanceAfter,
		ConsecutiveLosses: rec.ConsecutiveLosses,
		Mode:              mode,
		ExecutedAt:        rec.Timestamp,
	}
	return j.db.Create(&row).Error
}

// SessionTrades returns everything recorded under the given session id,
// oldest first. Used by tests and the status API, never by the trading loop.
func (j *Journal) SessionTrades(sessionID string) ([]TradeModel, error) {
	if j == nil {
		return nil, nil
	}
	var rows []TradeModel
	err := j.db.Where("session_id = ?", sessionID).Order("id asc").Find(&rows).Error
	return rows, err
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
