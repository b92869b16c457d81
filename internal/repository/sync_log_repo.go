package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/saqiah/waterbot/internal/domain"
)

// SyncLogRepository records one row per sync attempt per resource kind.
type SyncLogRepository interface {
	Start(ctx context.Context, resource domain.SyncResource) (*domain.SyncLog, error)
	Finish(ctx context.Context, id uint, status domain.SyncStatus, records int, errMsg string) error
	Latest(ctx context.Context, limit int) ([]domain.SyncLog, error)
}

// GormSyncLogRepository is the SQLite-backed implementation.
type GormSyncLogRepository struct {
	db *gorm.DB
}

func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

func (r *GormSyncLogRepository) Start(ctx context.Context, resource domain.SyncResource) (*domain.SyncLog, error) {
	row := domain.SyncLog{
		Resource:  resource,
		Status:    domain.SyncStatusStarted,
		StartedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *GormSyncLogRepository) Finish(ctx context.Context, id uint, status domain.SyncStatus, records int, errMsg string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&domain.SyncLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":            status,
			"records_processed": records,
			"error_message":     errMsg,
			"finished_at":       &now,
		}).Error
}

func (r *GormSyncLogRepository) Latest(ctx context.Context, limit int) ([]domain.SyncLog, error) {
	var rows []domain.SyncLog
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
