package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"exchange_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	// MemoryDSN keeps the journal in process memory only.
	MemoryDSN = ":memory:"

	defaultListLimit = 100
	maxListLimit     = 1000
)

// Storage is the SQLite-backed trade journal.
type Storage struct {
	db *gorm.DB
}

var (
	_ domain.TradeJournal = (*Storage)(nil)
	_ domain.TradeHistory = (*Storage)(nil)
)

// NewStorage opens (or creates) the journal at dsn and migrates it.
func NewStorage(dsn string) (*Storage, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}

	if dsn != MemoryDSN {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// Every :memory: connection is a separate database.
	sqlDB.SetMaxOpenConns(1)

	// Auto Migration
	if err := db.AutoMigrate(&domain.TradeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// SaveTrade appends a settled trade to the journal.
func (s *Storage) SaveTrade(ctx context.Context, trade domain.Trade) error {
	return s.db.WithContext(ctx).Create(domain.NewTradeRecord(trade)).Error
}

// ListTrades returns the newest trades first. A non-empty user limits the
// result to trades where they were buyer or seller.
func (s *Storage) ListTrades(ctx context.Context, user string, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	q := s.db.WithContext(ctx).Order("seq DESC").Limit(limit)
	if user != "" {
		q = q.Where("buyer = ? OR seller = ?", user, user)
	}

	var records []domain.TradeRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountTrades returns the number of journaled trades for product, or all
// trades when product is empty.
func (s *Storage) CountTrades(ctx context.Context, product string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&domain.TradeRecord{})
	if product != "" {
		q = q.Where("product = ?", product)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
