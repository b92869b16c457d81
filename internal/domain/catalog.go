package domain

import "time"

// City mirrors an upstream city; the primary key equals the upstream id.
type City struct {
	ID        int       `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	NameAr    string    `json:"name_ar" gorm:"column:name_ar;index"`
	NameEn    string    `json:"name_en" gorm:"column:name_en;index"`
	Latitude  float64   `json:"latitude" gorm:"column:latitude"`
	Longitude float64   `json:"longitude" gorm:"column:longitude"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (City) TableName() string { return "cities" }

// Brand mirrors an upstream brand; titles are stored normalized (water
// prefixes stripped, Arabic letters folded).
type Brand struct {
	ID        int       `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	TitleAr   string    `json:"title_ar" gorm:"column:title_ar;index"`
	TitleEn   string    `json:"title_en" gorm:"column:title_en;index"`
	ImageURL  string    `json:"image_url" gorm:"column:image_url"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Brand) TableName() string { return "brands" }

// CityBrand is the availability association: a brand serves a city iff the
// pair exists.
type CityBrand struct {
	ID      uint `json:"id" gorm:"column:id;primaryKey"`
	CityID  int  `json:"city_id" gorm:"column:city_id;uniqueIndex:idx_city_brand"`
	BrandID int  `json:"brand_id" gorm:"column:brand_id;uniqueIndex:idx_city_brand"`
}

func (CityBrand) TableName() string { return "city_brands" }

// Product belongs to one brand. ExternalID may repeat across brands with
// independent prices; (external_id, brand_id) is unique.
type Product struct {
	ID            uint      `json:"id" gorm:"column:id;primaryKey"`
	ExternalID    int       `json:"external_id" gorm:"column:external_id;uniqueIndex:idx_product_brand"`
	BrandID       int       `json:"brand_id" gorm:"column:brand_id;uniqueIndex:idx_product_brand;index"`
	TitleAr       string    `json:"title_ar" gorm:"column:title_ar"`
	TitleEn       string    `json:"title_en" gorm:"column:title_en"`
	Packing       string    `json:"packing" gorm:"column:packing"`
	ContractPrice float64   `json:"contract_price" gorm:"column:contract_price"`
	CreatedAt     time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Product) TableName() string { return "products" }

// District maps a district name to the city it belongs to. Read-only at
// runtime; used to infer a city when the user names a neighborhood.
type District struct {
	ID       uint   `json:"id" gorm:"column:id;primaryKey"`
	Name     string `json:"name" gorm:"column:name;index"`
	CityName string `json:"city_name" gorm:"column:city_name"`
}

func (District) TableName() string { return "districts" }
