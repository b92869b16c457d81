package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	syncsvc "github.com/saqiah/waterbot/internal/services/sync"
	"github.com/saqiah/waterbot/pkg/logger"
)

// syncRunTimeout bounds one manually triggered refresh.
const syncRunTimeout = 30 * time.Minute

// SyncController is the slice of the sync worker the control API drives.
type SyncController interface {
	RunOnce(ctx context.Context) error
	StartSchedule(dailyTime string) error
	StopSchedule()
	Status() syncsvc.Status
}

// SyncHandler exposes the sync-control endpoints.
type SyncHandler struct {
	worker           SyncController
	defaultDailyTime string
}

func NewSyncHandler(worker SyncController, defaultDailyTime string) *SyncHandler {
	return &SyncHandler{worker: worker, defaultDailyTime: defaultDailyTime}
}

// Trigger kicks off a refresh in the background. A refresh already in
// flight is reported as a conflict instead of queueing a second one.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.worker.Status().IsRunning {
		respondError(w, http.StatusConflict, "sync already running")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncRunTimeout)
		defer cancel()
		if err := h.worker.RunOnce(ctx); err != nil && !errors.Is(err, syncsvc.ErrSyncRunning) {
			logger.Base().Error("manual catalog sync failed", zap.Error(err))
		}
	}()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "success", "message": "sync started"})
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondData(w, h.worker.Status())
}

// StartSchedule installs the daily schedule, optionally at a new time
// (?daily_time=HH:MM).
func (h *SyncHandler) StartSchedule(w http.ResponseWriter, r *http.Request) {
	dailyTime := r.URL.Query().Get("daily_time")
	if dailyTime == "" {
		dailyTime = h.defaultDailyTime
	}
	if err := h.worker.StartSchedule(dailyTime); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondData(w, map[string]string{"daily_time": dailyTime})
}

func (h *SyncHandler) StopSchedule(w http.ResponseWriter, r *http.Request) {
	h.worker.StopSchedule()
	respondData(w, map[string]string{"message": "schedule stopped"})
}
