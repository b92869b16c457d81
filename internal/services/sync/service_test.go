package sync

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saqiah/waterbot/internal/adapters/upstream"
	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/internal/repository"
)

// fakeSource serves a fixed upstream snapshot in both languages.
type fakeSource struct {
	mu         sync.Mutex
	brandErrs  map[int]error // city id -> error on the Arabic pass
	blockUntil chan struct{} // when set, GetCities blocks until closed
}

func (f *fakeSource) GetCities(ctx context.Context, lang string) ([]upstream.City, error) {
	if f.blockUntil != nil {
		<-f.blockUntil
	}
	if lang == "en" {
		return []upstream.City{
			{ID: 1, Name: "Riyadh"},
			{ID: 2, Name: "Jeddah"},
			{ID: 6, Name: "Industrial Zone"},
		}, nil
	}
	return []upstream.City{
		{ID: 1, Name: "الرياض", Latitude: 24.7, Longitude: 46.7},
		{ID: 2, Name: "جدة"},
		{ID: 6, Name: "المنطقة الصناعية"},
	}, nil
}

func (f *fakeSource) GetBrandsByCity(ctx context.Context, cityID int, lang string) ([]upstream.Brand, error) {
	f.mu.Lock()
	err := f.brandErrs[cityID]
	f.mu.Unlock()
	if err != nil && lang == "ar" {
		return nil, err
	}
	switch cityID {
	case 1:
		if lang == "en" {
			return []upstream.Brand{{ID: 10, Title: "Nova Water"}, {ID: 20, Title: "Manhal Water"}}, nil
		}
		return []upstream.Brand{{ID: 10, Title: "مياه نوفا"}, {ID: 20, Title: "مياه المنهل"}}, nil
	case 2:
		if lang == "en" {
			return []upstream.Brand{{ID: 10, Title: "Nova Water"}}, nil
		}
		return []upstream.Brand{{ID: 10, Title: "مياه نوفا"}}, nil
	}
	return nil, nil
}

func (f *fakeSource) GetBrandProducts(ctx context.Context, brandID int, lang string) ([]upstream.Product, error) {
	switch brandID {
	case 10:
		if lang == "en" {
			return []upstream.Product{
				{ID: 100, Title: "Small bottle", Packing: "330ml", ContractPrice: 18},
				{ID: 100, Title: "Small bottle dup", Packing: "330ml", ContractPrice: 18},
			}, nil
		}
		return []upstream.Product{
			{ID: 100, Title: "قارورة صغيرة", Packing: "330ml", ContractPrice: 18},
			{ID: 100, Title: "قارورة مكررة", Packing: "330ml", ContractPrice: 18},
		}, nil
	case 20:
		return []upstream.Product{{ID: 100, Title: "قارورة", Packing: "330ml", ContractPrice: 15}}, nil
	}
	return nil, nil
}

func newTestWorker(t *testing.T, source Source) (*Worker, *repository.GormManager) {
	t.Helper()
	db, err := repository.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWorker(source, db.Catalog(), db.SyncLogs(), []int{6, 7, 8, 9}), db
}

func latestLog(t *testing.T, db *repository.GormManager, resource domain.SyncResource) domain.SyncLog {
	t.Helper()
	rows, err := db.SyncLogs().Latest(context.Background(), 20)
	require.NoError(t, err)
	for _, row := range rows {
		if row.Resource == resource {
			return row
		}
	}
	t.Fatalf("no sync log for resource %q", resource)
	return domain.SyncLog{}
}

func TestRunOnceMirrorsSnapshot(t *testing.T) {
	worker, db := newTestWorker(t, &fakeSource{})
	ctx := context.Background()

	require.NoError(t, worker.RunOnce(ctx))

	cities, err := db.Catalog().ListCities(ctx, "")
	require.NoError(t, err)
	require.Len(t, cities, 2, "excluded city 6 never lands")
	assert.Equal(t, "الرياض", cities[0].NameAr)
	assert.Equal(t, "Riyadh", cities[0].NameEn)
	// taa marbuta folded by normalization
	assert.Equal(t, "جده", cities[1].NameAr)

	brands, err := db.Catalog().ListBrands(ctx, "")
	require.NoError(t, err)
	require.Len(t, brands, 2)
	// water prefixes stripped on ingest
	assert.Equal(t, "نوفا", brands[0].TitleAr)
	assert.Equal(t, "Nova", brands[0].TitleEn)

	riyadhBrands, err := db.Catalog().GetBrandsByCity(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, riyadhBrands, 2)
	jeddahBrands, err := db.Catalog().GetBrandsByCity(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, jeddahBrands, 1)

	products, err := db.Catalog().ListProducts(ctx, "")
	require.NoError(t, err)
	// brand 10 carries one product (the in-brand duplicate is skipped),
	// brand 20 carries the same external id independently
	assert.Len(t, products, 2)
}

func TestRunOnceIsCleanSlate(t *testing.T) {
	worker, db := newTestWorker(t, &fakeSource{})
	ctx := context.Background()

	// stale row that upstream no longer returns
	require.NoError(t, db.Catalog().InsertCities(ctx, []domain.City{{ID: 99, NameAr: "مدينة قديمة"}}))

	require.NoError(t, worker.RunOnce(ctx))

	cities, err := db.Catalog().ListCities(ctx, "")
	require.NoError(t, err)
	for _, city := range cities {
		assert.NotEqual(t, 99, city.ID, "stale rows must not survive a refresh")
	}
	assert.Len(t, cities, 2)
}

func TestRunOncePartialOnBrandFetchFailure(t *testing.T) {
	source := &fakeSource{brandErrs: map[int]error{2: errors.New("upstream down")}}
	worker, db := newTestWorker(t, source)
	ctx := context.Background()

	require.NoError(t, worker.RunOnce(ctx))

	// city 2 is skipped but city 1 still lands
	riyadhBrands, err := db.Catalog().GetBrandsByCity(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, riyadhBrands, 2)
	jeddahBrands, err := db.Catalog().GetBrandsByCity(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, jeddahBrands)

	log := latestLog(t, db, domain.SyncResourceBrands)
	assert.Equal(t, domain.SyncStatusPartial, log.Status)
}

func TestRunOnceWritesSyncLogs(t *testing.T) {
	worker, db := newTestWorker(t, &fakeSource{})
	ctx := context.Background()

	require.NoError(t, worker.RunOnce(ctx))

	for _, resource := range []domain.SyncResource{
		domain.SyncResourceCities, domain.SyncResourceBrands, domain.SyncResourceProducts,
	} {
		log := latestLog(t, db, resource)
		assert.Equal(t, domain.SyncStatusSuccess, log.Status, string(resource))
		assert.NotZero(t, log.RecordsProcessed, string(resource))
		assert.NotNil(t, log.FinishedAt, string(resource))
	}
}

func TestRunOnceRejectsConcurrentRun(t *testing.T) {
	gate := make(chan struct{})
	source := &fakeSource{blockUntil: gate}
	worker, _ := newTestWorker(t, source)

	done := make(chan error, 1)
	go func() { done <- worker.RunOnce(context.Background()) }()

	// wait for the first run to take the flag
	require.Eventually(t, func() bool { return worker.Status().IsRunning },
		2*time.Second, 5*time.Millisecond)

	err := worker.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrSyncRunning)

	close(gate)
	require.NoError(t, <-done)
	assert.False(t, worker.Status().IsRunning)
}

func TestScheduleStatus(t *testing.T) {
	worker, _ := newTestWorker(t, &fakeSource{})

	st := worker.Status()
	assert.Zero(t, st.ScheduledJobs)
	assert.Nil(t, st.NextSync)

	require.NoError(t, worker.StartSchedule("02:30"))
	st = worker.Status()
	assert.Equal(t, 1, st.ScheduledJobs)
	require.NotNil(t, st.NextSync)
	assert.Equal(t, 30, st.NextSync.Minute())
	assert.Equal(t, 2, st.NextSync.Hour())

	worker.StopSchedule()
	assert.Zero(t, worker.Status().ScheduledJobs)

	assert.Error(t, worker.StartSchedule("25:00"))
}