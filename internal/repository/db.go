package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/pkg/logger"
)

// Sentinel errors surfaced by the repositories.
var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicateMessage = errors.New("gateway message already processed")
	ErrReplyExists      = errors.New("reply already recorded for inbound message")
)

// Manager bundles the repositories behind one database handle.
type Manager interface {
	Conversations() ConversationRepository
	Catalog() CatalogRepository
	Pauses() PauseRepository
	SyncLogs() SyncLogRepository

	Ping(ctx context.Context) error
	Close() error
}

// GormManager implements Manager over a single SQLite database.
type GormManager struct {
	db            *gorm.DB
	conversations *GormConversationRepository
	catalog       *GormCatalogRepository
	pauses        *GormPauseRepository
	syncLogs      *GormSyncLogRepository
}

// Open opens (creating if needed) the SQLite database at path with WAL
// journaling and a busy timeout, runs migrations and returns the manager.
// All writes in the process must go through the returned repositories.
func Open(path string) (*GormManager, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(logger.NewGORMWriter(), gormlogger.Config{
			SlowThreshold: 500 * time.Millisecond,
			LogLevel:      gormlogger.Warn,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.User{},
		&domain.InboundMessage{},
		&domain.BotReply{},
		&domain.Complaint{},
		&domain.Suggestion{},
		&domain.ConversationPause{},
		&domain.City{},
		&domain.Brand{},
		&domain.CityBrand{},
		&domain.Product{},
		&domain.District{},
		&domain.SyncLog{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return NewGormManager(db), nil
}

// NewGormManager wraps an already-open gorm handle. Used by tests.
func NewGormManager(db *gorm.DB) *GormManager {
	return &GormManager{
		db:            db,
		conversations: NewGormConversationRepository(db),
		catalog:       NewGormCatalogRepository(db),
		pauses:        NewGormPauseRepository(db),
		syncLogs:      NewGormSyncLogRepository(db),
	}
}

func (m *GormManager) Conversations() ConversationRepository { return m.conversations }
func (m *GormManager) Catalog() CatalogRepository            { return m.catalog }
func (m *GormManager) Pauses() PauseRepository               { return m.pauses }
func (m *GormManager) SyncLogs() SyncLogRepository           { return m.syncLogs }

// Ping checks the underlying connection.
func (m *GormManager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection.
func (m *GormManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
