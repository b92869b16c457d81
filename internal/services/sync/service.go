// Package sync mirrors the upstream catalog into the local store with a
// clean-slate refresh: delete everything, repopulate from two language
// passes merged by upstream id.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saqiah/waterbot/internal/adapters/upstream"
	"github.com/saqiah/waterbot/internal/config"
	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/internal/repository"
	"github.com/saqiah/waterbot/pkg/language"
	"github.com/saqiah/waterbot/pkg/logger"
)

// ErrSyncRunning rejects a second concurrent invocation.
var ErrSyncRunning = errors.New("sync already running")

// Source is the slice of the upstream client the worker consumes.
type Source interface {
	GetCities(ctx context.Context, lang string) ([]upstream.City, error)
	GetBrandsByCity(ctx context.Context, cityID int, lang string) ([]upstream.Brand, error)
	GetBrandProducts(ctx context.Context, brandID int, lang string) ([]upstream.Product, error)
}

// Status is the sync-control API view.
type Status struct {
	IsRunning     bool       `json:"is_running"`
	ScheduledJobs int        `json:"scheduled_jobs"`
	NextSync      *time.Time `json:"next_sync,omitempty"`
}

// Worker runs the refresh. One worker exists per process; RunOnce is
// rejected while another run is in flight.
type Worker struct {
	source   Source
	catalog  repository.CatalogRepository
	syncLogs repository.SyncLogRepository
	excluded map[int]bool

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	entryID cron.EntryID
}

// NewWorker builds the worker. excludedCityIDs are upstream city ids never
// mirrored locally.
func NewWorker(source Source, catalog repository.CatalogRepository, syncLogs repository.SyncLogRepository, excludedCityIDs []int) *Worker {
	excluded := make(map[int]bool, len(excludedCityIDs))
	for _, id := range excludedCityIDs {
		excluded[id] = true
	}
	return &Worker{
		source:   source,
		catalog:  catalog,
		syncLogs: syncLogs,
		excluded: excluded,
	}
}

// RunOnce performs one full clean-slate sync. Returns ErrSyncRunning when a
// run is already in flight.
func (w *Worker) RunOnce(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrSyncRunning
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	logger.Base().Info("catalog sync started")

	if err := w.catalog.ResetCatalog(ctx); err != nil {
		return fmt.Errorf("reset catalog: %w", err)
	}

	cities, err := w.syncCities(ctx)
	if err != nil {
		return err
	}
	brands, err := w.syncBrands(ctx, cities)
	if err != nil {
		return err
	}
	if err := w.syncProducts(ctx, brands); err != nil {
		return err
	}

	logger.Base().Info("catalog sync finished",
		zap.Int("cities", len(cities)), zap.Int("brands", len(brands)))
	return nil
}

// syncCities fetches both language passes, merges by id, applies name
// normalization and the exclusion set, and inserts with upstream ids.
func (w *Worker) syncCities(ctx context.Context) ([]domain.City, error) {
	row, err := w.syncLogs.Start(ctx, domain.SyncResourceCities)
	if err != nil {
		return nil, err
	}

	arCities, err := w.source.GetCities(ctx, "ar")
	if err != nil {
		_ = w.syncLogs.Finish(ctx, row.ID, domain.SyncStatusFailed, 0, err.Error())
		return nil, fmt.Errorf("fetch cities (ar): %w", err)
	}
	enCities, err := w.source.GetCities(ctx, "en")
	if err != nil {
		_ = w.syncLogs.Finish(ctx, row.ID, domain.SyncStatusFailed, 0, err.Error())
		return nil, fmt.Errorf("fetch cities (en): %w", err)
	}

	enByID := make(map[int]upstream.City, len(enCities))
	for _, c := range enCities {
		enByID[c.ID] = c
	}

	merged := make([]domain.City, 0, len(arCities))
	for _, c := range arCities {
		if w.excluded[c.ID] {
			continue
		}
		city := domain.City{
			ID:        c.ID,
			NameAr:    language.NormalizeArabic(c.Name),
			Latitude:  c.Latitude,
			Longitude: c.Longitude,
			CreatedAt: time.Now(),
		}
		if en, ok := enByID[c.ID]; ok {
			city.NameEn = en.Name
		}
		merged = append(merged, city)
	}

	if err := w.catalog.InsertCities(ctx, merged); err != nil {
		_ = w.syncLogs.Finish(ctx, row.ID, domain.SyncStatusFailed, 0, err.Error())
		return nil, fmt.Errorf("insert cities: %w", err)
	}
	_ = w.syncLogs.Finish(ctx, row.ID, domain.SyncStatusSuccess, len(merged), "")
	return merged, nil
}

// syncBrands walks every retained city, merges the two language passes per
// brand, upserts each brand once and bulk-inserts the availability pairs.
func (w *Worker) syncBrands(ctx context.Context, cities []domain.City) ([]domain.Brand, error) {
	row, err := w.syncLogs.Start(ctx, domain.SyncResourceBrands)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]*domain.Brand)
	var pairs []domain.CityBrand
	var failures int

	for _, city := range cities {
		arBrands, err := w.source.GetBrandsByCity(ctx, city.ID, "ar")
		if err != nil {
			logger.Base().Warn("brand fetch failed, skipping city",
				zap.Int("city_id", city.ID), zap.Error(err))
			failures++
			continue
		}
		enBrands, err := w.source.GetBrandsByCity(ctx, city.ID, "en")
		if err != nil {
			logger.Base().Warn("brand fetch (en) failed, continuing with Arabic only",
				zap.Int("city_id", city.ID), zap.Error(err))
		}
		enByID := make(map[int]upstream.Brand, len(enBrands))
		for _, b := range enBrands {
			enByID[b.ID] = b
		}

		for _, b := range arBrands {
			if _, ok := seen[b.ID]; !ok {
				brand := &domain.Brand{
					ID:        b.ID,
					TitleAr:   language.NormalizeBrandTitle(b.Title),
					ImageURL:  b.ImageURL,
					CreatedAt: time.Now(),
				}
				if en, ok := enByID[b.ID]; ok {
					brand.TitleEn = language.NormalizeBrandTitle(en.Title)
				}
				if err := w.catalog.UpsertBrand(ctx, brand); err != nil {
					_ = w.syncLogs.Finish(ctx, row.ID, domain.SyncStatusFailed, len(seen), err.Error())
					return nil, fmt.Errorf("upsert brand %d: %w", b.ID, err)
				}
				seen[b.ID] = brand
			}
			pairs = append(pairs, domain.CityBrand{CityID: city.ID, BrandID: b.ID})
		}
	}

	if err := w.catalog.InsertCityBrands(ctx, pairs); err != nil {
		_ = w.syncLogs.Finish(ctx, row.ID, domain.SyncStatusFailed, len(seen), err.Error())
		return nil, fmt.Errorf("insert city-brand pairs: %w", err)
	}

	brands := make([]domain.Brand, 0, len(seen))
	for _, b := range seen {
		brands = append(brands, *b)
	}
	status := domain.SyncStatusSuccess
	var msg string
	if failures > 0 {
		status = domain.SyncStatusPartial
		msg = fmt.Sprintf("%d city brand fetches failed", failures)
	}
	_ = w.syncLogs.Finish(ctx, row.ID, status, len(brands), msg)
	return brands, nil
}

// syncProducts fetches each brand's products in both languages, merges by
// external id and inserts under the (external_id, brand_id) uniqueness.
func (w *Worker) syncProducts(ctx context.Context, brands []domain.Brand) error {
	row, err := w.syncLogs.Start(ctx, domain.SyncResourceProducts)
	if err != nil {
		return err
	}

	var inserted, failures int
	for _, brand := range brands {
		arProducts, err := w.source.GetBrandProducts(ctx, brand.ID, "ar")
		if err != nil {
			logger.Base().Warn("product fetch failed, skipping brand",
				zap.Int("brand_id", brand.ID), zap.Error(err))
			failures++
			continue
		}
		enProducts, err := w.source.GetBrandProducts(ctx, brand.ID, "en")
		if err != nil {
			logger.Base().Warn("product fetch (en) failed, continuing with Arabic only",
				zap.Int("brand_id", brand.ID), zap.Error(err))
		}
		enByID := make(map[int]upstream.Product, len(enProducts))
		for _, p := range enProducts {
			enByID[p.ID] = p
		}

		for _, p := range arProducts {
			product := &domain.Product{
				ExternalID:    p.ID,
				BrandID:       brand.ID,
				TitleAr:       p.Title,
				Packing:       p.Packing,
				ContractPrice: p.ContractPrice,
				CreatedAt:     time.Now(),
			}
			if en, ok := enByID[p.ID]; ok {
				product.TitleEn = en.Title
			}
			ok, err := w.catalog.InsertProduct(ctx, product)
			if err != nil {
				_ = w.syncLogs.Finish(ctx, row.ID, domain.SyncStatusFailed, inserted, err.Error())
				return fmt.Errorf("insert product %d/%d: %w", p.ID, brand.ID, err)
			}
			if !ok {
				logger.Base().Warn("duplicate product within brand skipped",
					zap.Int("external_id", p.ID), zap.Int("brand_id", brand.ID))
				continue
			}
			inserted++
		}
	}

	status := domain.SyncStatusSuccess
	var msg string
	if failures > 0 {
		status = domain.SyncStatusPartial
		msg = fmt.Sprintf("%d brand product fetches failed", failures)
	}
	return w.syncLogs.Finish(ctx, row.ID, status, inserted, msg)
}

// StartSchedule arranges a daily run at dailyTime ("HH:MM" local). Any
// previous schedule is replaced.
func (w *Worker) StartSchedule(dailyTime string) error {
	hour, minute, err := config.ParseDailyTime(dailyTime)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		w.cron.Stop()
	}
	w.cron = cron.New()
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	w.entryID, err = w.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := w.RunOnce(ctx); err != nil && !errors.Is(err, ErrSyncRunning) {
			logger.Base().Error("scheduled catalog sync failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	w.cron.Start()
	logger.Base().Info("catalog sync scheduled", zap.String("daily_time", dailyTime))
	return nil
}

// StopSchedule cancels the daily schedule if one is set.
func (w *Worker) StopSchedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		w.cron.Stop()
		w.cron = nil
	}
}

// Status reports whether a run is in flight and when the next one fires.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := Status{IsRunning: w.running}
	if w.cron != nil {
		entries := w.cron.Entries()
		st.ScheduledJobs = len(entries)
		for _, e := range entries {
			if e.ID == w.entryID && !e.Next.IsZero() {
				next := e.Next
				st.NextSync = &next
			}
		}
	}
	return st
}
