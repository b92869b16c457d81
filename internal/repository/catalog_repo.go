package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/pkg/language"
)

// CatalogRepository is the typed read/write interface over cities, brands,
// products and their associations. All name matching happens on the
// normalized Arabic form (names are stored normalized by the sync worker);
// English comparisons are case-insensitive.
type CatalogRepository interface {
	ListCities(ctx context.Context, search string) ([]domain.City, error)
	GetCity(ctx context.Context, id int) (*domain.City, error)
	SearchCities(ctx context.Context, query string) ([]domain.City, error)
	GetCityIDByName(ctx context.Context, name string) (int, bool, error)

	ListBrands(ctx context.Context, search string) ([]domain.Brand, error)
	GetBrand(ctx context.Context, id int) (*domain.Brand, error)
	GetBrandsByCity(ctx context.Context, cityID int) ([]domain.Brand, error)
	SearchBrandsInCity(ctx context.Context, brandName, cityName string) ([]domain.Brand, error)

	ListProducts(ctx context.Context, search string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id uint) (*domain.Product, error)
	GetProductsByBrand(ctx context.Context, brandID int) ([]domain.Product, error)

	// ProductsByBrandAndCityName runs the cascading search: exact city +
	// exact brand, exact city + partial brand, partial city + exact brand,
	// partial city + partial brand. The first non-empty tier wins.
	ProductsByBrandAndCityName(ctx context.Context, brandName, cityName string) ([]domain.Product, error)

	// CheapestProductsByCityName returns the cheapest product per packing
	// size among brands available in the city.
	CheapestProductsByCityName(ctx context.Context, cityName string) ([]domain.Product, error)

	// DistrictCity resolves a district name to its city name.
	DistrictCity(ctx context.Context, districtName string) (string, bool, error)
	ListDistricts(ctx context.Context) ([]domain.District, error)

	// Clean-slate sync writes.
	ResetCatalog(ctx context.Context) error
	InsertCities(ctx context.Context, cities []domain.City) error
	UpsertBrand(ctx context.Context, brand *domain.Brand) error
	InsertCityBrands(ctx context.Context, pairs []domain.CityBrand) error
	// InsertProduct reports false when (external_id, brand_id) is already
	// present; duplicates within a brand are skipped, across brands allowed.
	InsertProduct(ctx context.Context, product *domain.Product) (bool, error)
	ReplaceDistricts(ctx context.Context, districts []domain.District) error
}

// GormCatalogRepository is the SQLite-backed implementation.
type GormCatalogRepository struct {
	db *gorm.DB
}

func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

func (r *GormCatalogRepository) ListCities(ctx context.Context, search string) ([]domain.City, error) {
	q := r.db.WithContext(ctx).Model(&domain.City{}).Order("id")
	if search != "" {
		n := language.NormalizeArabic(search)
		q = q.Where("name_ar LIKE ? OR LOWER(name_en) LIKE LOWER(?)", like(n), like(search))
	}
	var cities []domain.City
	return cities, q.Find(&cities).Error
}

func (r *GormCatalogRepository) GetCity(ctx context.Context, id int) (*domain.City, error) {
	var city domain.City
	if err := r.db.WithContext(ctx).First(&city, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &city, nil
}

// SearchCities returns exact matches first, then partial matches.
func (r *GormCatalogRepository) SearchCities(ctx context.Context, query string) ([]domain.City, error) {
	n := language.NormalizeArabic(query)

	var exact []domain.City
	if err := r.db.WithContext(ctx).
		Where("name_ar = ? OR LOWER(name_en) = LOWER(?)", n, query).
		Order("id").Find(&exact).Error; err != nil {
		return nil, err
	}

	var partial []domain.City
	if err := r.db.WithContext(ctx).
		Where("(name_ar LIKE ? OR LOWER(name_en) LIKE LOWER(?)) AND name_ar <> ? AND LOWER(name_en) <> LOWER(?)",
			like(n), like(query), n, query).
		Order("id").Find(&partial).Error; err != nil {
		return nil, err
	}
	return append(exact, partial...), nil
}

func (r *GormCatalogRepository) GetCityIDByName(ctx context.Context, name string) (int, bool, error) {
	n := language.NormalizeArabic(name)
	var city domain.City
	err := r.db.WithContext(ctx).
		Where("name_ar = ? OR LOWER(name_en) = LOWER(?)", n, name).
		First(&city).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return city.ID, true, nil
}

func (r *GormCatalogRepository) ListBrands(ctx context.Context, search string) ([]domain.Brand, error) {
	q := r.db.WithContext(ctx).Model(&domain.Brand{}).Order("id")
	if search != "" {
		n := language.NormalizeBrandTitle(search)
		q = q.Where("title_ar LIKE ? OR LOWER(title_en) LIKE LOWER(?)", like(n), like(search))
	}
	var brands []domain.Brand
	return brands, q.Find(&brands).Error
}

func (r *GormCatalogRepository) GetBrand(ctx context.Context, id int) (*domain.Brand, error) {
	var brand domain.Brand
	if err := r.db.WithContext(ctx).First(&brand, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &brand, nil
}

func (r *GormCatalogRepository) GetBrandsByCity(ctx context.Context, cityID int) ([]domain.Brand, error) {
	var brands []domain.Brand
	err := r.db.WithContext(ctx).
		Joins("JOIN city_brands ON city_brands.brand_id = brands.id").
		Where("city_brands.city_id = ?", cityID).
		Order("brands.id").
		Find(&brands).Error
	return brands, err
}

// SearchBrandsInCity returns exact-in-city matches first, then partial.
func (r *GormCatalogRepository) SearchBrandsInCity(ctx context.Context, brandName, cityName string) ([]domain.Brand, error) {
	cityID, ok, err := r.GetCityIDByName(ctx, cityName)
	if err != nil || !ok {
		return nil, err
	}
	n := language.NormalizeBrandTitle(brandName)

	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&domain.Brand{}).
			Joins("JOIN city_brands ON city_brands.brand_id = brands.id").
			Where("city_brands.city_id = ?", cityID).
			Order("brands.id")
	}

	var exact []domain.Brand
	if err := base().
		Where("title_ar = ? OR LOWER(title_en) = LOWER(?)", n, brandName).
		Find(&exact).Error; err != nil {
		return nil, err
	}
	var partial []domain.Brand
	if err := base().
		Where("(title_ar LIKE ? OR LOWER(title_en) LIKE LOWER(?)) AND title_ar <> ? AND LOWER(title_en) <> LOWER(?)",
			like(n), like(brandName), n, brandName).
		Find(&partial).Error; err != nil {
		return nil, err
	}
	return append(exact, partial...), nil
}

func (r *GormCatalogRepository) ListProducts(ctx context.Context, search string) ([]domain.Product, error) {
	q := r.db.WithContext(ctx).Model(&domain.Product{}).Order("id")
	if search != "" {
		n := language.NormalizeArabic(search)
		q = q.Where("title_ar LIKE ? OR LOWER(title_en) LIKE LOWER(?)", like(n), like(search))
	}
	var products []domain.Product
	return products, q.Find(&products).Error
}

func (r *GormCatalogRepository) GetProduct(ctx context.Context, id uint) (*domain.Product, error) {
	var product domain.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (r *GormCatalogRepository) GetProductsByBrand(ctx context.Context, brandID int) ([]domain.Product, error) {
	var products []domain.Product
	err := r.db.WithContext(ctx).
		Where("brand_id = ?", brandID).
		Order("id").
		Find(&products).Error
	return products, err
}

func (r *GormCatalogRepository) ProductsByBrandAndCityName(ctx context.Context, brandName, cityName string) ([]domain.Product, error) {
	nCity := language.NormalizeArabic(cityName)
	nBrand := language.NormalizeBrandTitle(brandName)

	type match struct{ exactCity, exactBrand bool }
	tiers := []match{
		{true, true},
		{true, false},
		{false, true},
		{false, false},
	}
	for _, tier := range tiers {
		q := r.db.WithContext(ctx).Model(&domain.Product{}).
			Joins("JOIN brands ON brands.id = products.brand_id").
			Joins("JOIN city_brands ON city_brands.brand_id = brands.id").
			Joins("JOIN cities ON cities.id = city_brands.city_id").
			Order("products.id")
		if tier.exactCity {
			q = q.Where("cities.name_ar = ? OR LOWER(cities.name_en) = LOWER(?)", nCity, cityName)
		} else {
			q = q.Where("cities.name_ar LIKE ? OR LOWER(cities.name_en) LIKE LOWER(?)", like(nCity), like(cityName))
		}
		if tier.exactBrand {
			q = q.Where("brands.title_ar = ? OR LOWER(brands.title_en) = LOWER(?)", nBrand, brandName)
		} else {
			q = q.Where("brands.title_ar LIKE ? OR LOWER(brands.title_en) LIKE LOWER(?)", like(nBrand), like(brandName))
		}
		var products []domain.Product
		if err := q.Find(&products).Error; err != nil {
			return nil, err
		}
		if len(products) > 0 {
			return products, nil
		}
	}
	return nil, nil
}

func (r *GormCatalogRepository) CheapestProductsByCityName(ctx context.Context, cityName string) ([]domain.Product, error) {
	cityID, ok, err := r.GetCityIDByName(ctx, cityName)
	if err != nil || !ok {
		return nil, err
	}
	var products []domain.Product
	err = r.db.WithContext(ctx).Raw(`
		SELECT p.* FROM products p
		JOIN city_brands cb ON cb.brand_id = p.brand_id
		WHERE cb.city_id = ?
		  AND p.contract_price = (
			SELECT MIN(p2.contract_price) FROM products p2
			JOIN city_brands cb2 ON cb2.brand_id = p2.brand_id
			WHERE cb2.city_id = cb.city_id AND p2.packing = p.packing
		  )
		GROUP BY p.packing
		ORDER BY p.packing`, cityID).Scan(&products).Error
	return products, err
}

func (r *GormCatalogRepository) DistrictCity(ctx context.Context, districtName string) (string, bool, error) {
	n := language.NormalizeArabic(districtName)
	var district domain.District
	err := r.db.WithContext(ctx).Where("name = ?", n).First(&district).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return district.CityName, true, nil
}

func (r *GormCatalogRepository) ListDistricts(ctx context.Context) ([]domain.District, error) {
	var districts []domain.District
	err := r.db.WithContext(ctx).Order("id").Find(&districts).Error
	return districts, err
}

// ResetCatalog deletes the catalog tables in one transaction, children
// before parents. The schema declares no FK constraints, so plain deletes
// in reverse dependency order suffice.
func (r *GormCatalogRepository) ResetCatalog(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"products", "city_brands", "brands", "cities"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *GormCatalogRepository) InsertCities(ctx context.Context, cities []domain.City) error {
	if len(cities) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(cities, 100).Error
}

func (r *GormCatalogRepository) UpsertBrand(ctx context.Context, brand *domain.Brand) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title_ar", "title_en", "image_url"}),
		}).
		Create(brand).Error
}

func (r *GormCatalogRepository) InsertCityBrands(ctx context.Context, pairs []domain.CityBrand) error {
	if len(pairs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(pairs, 200).Error
}

func (r *GormCatalogRepository) InsertProduct(ctx context.Context, product *domain.Product) (bool, error) {
	err := r.db.WithContext(ctx).Create(product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReplaceDistricts swaps the whole district table. Names are stored
// normalized; lookups run against normalized message text.
func (r *GormCatalogRepository) ReplaceDistricts(ctx context.Context, districts []domain.District) error {
	rows := make([]domain.District, 0, len(districts))
	for _, d := range districts {
		d.ID = 0
		d.Name = language.NormalizeArabic(d.Name)
		if d.Name == "" {
			continue
		}
		rows = append(rows, d)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM districts").Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 200).Error
	})
}

func like(s string) string {
	return "%" + strings.TrimSpace(s) + "%"
}
