package domain

import "time"

// SyncResource is the resource kind a sync log row covers.
type SyncResource string

const (
	SyncResourceCities   SyncResource = "cities"
	SyncResourceBrands   SyncResource = "brands"
	SyncResourceProducts SyncResource = "products"
)

// SyncStatus is the outcome of one sync attempt for one resource.
type SyncStatus string

const (
	SyncStatusStarted SyncStatus = "started"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncLog records one sync attempt per resource kind.
type SyncLog struct {
	ID               uint         `json:"id" gorm:"column:id;primaryKey"`
	Resource         SyncResource `json:"resource" gorm:"column:resource;index"`
	Status           SyncStatus   `json:"status" gorm:"column:status"`
	RecordsProcessed int          `json:"records_processed" gorm:"column:records_processed"`
	ErrorMessage     string       `json:"error_message" gorm:"column:error_message"`
	StartedAt        time.Time    `json:"started_at" gorm:"column:started_at"`
	FinishedAt       *time.Time   `json:"finished_at" gorm:"column:finished_at"`
}

func (SyncLog) TableName() string { return "sync_logs" }
