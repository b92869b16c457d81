package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/pkg/language"
)

// CatalogReader is the slice of the catalog store the agent tools use.
type CatalogReader interface {
	ListCities(ctx context.Context, search string) ([]domain.City, error)
	SearchCities(ctx context.Context, query string) ([]domain.City, error)
	GetCityIDByName(ctx context.Context, name string) (int, bool, error)
	GetBrandsByCity(ctx context.Context, cityID int) ([]domain.Brand, error)
	SearchBrandsInCity(ctx context.Context, brandName, cityName string) ([]domain.Brand, error)
	ProductsByBrandAndCityName(ctx context.Context, brandName, cityName string) ([]domain.Product, error)
	CheapestProductsByCityName(ctx context.Context, cityName string) ([]domain.Product, error)
	ListProducts(ctx context.Context, search string) ([]domain.Product, error)
	DistrictCity(ctx context.Context, districtName string) (string, bool, error)
	ListDistricts(ctx context.Context) ([]domain.District, error)
}

func stringProp(desc string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.String, Description: desc}
}

func toolDef(name, description string, props map[string]jsonschema.Definition, required []string) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters: jsonschema.Definition{
				Type:       jsonschema.Object,
				Properties: props,
				Required:   required,
			},
		},
	}
}

// toolset is the agent's complete tool surface.
func toolset() []openai.Tool {
	return []openai.Tool{
		toolDef("get_all_cities",
			"List every city we deliver to, with Arabic and English names.",
			map[string]jsonschema.Definition{}, nil),
		toolDef("search_cities",
			"Search cities by name, exact matches first then partial.",
			map[string]jsonschema.Definition{
				"query": stringProp("City name or fragment, Arabic or English."),
			}, []string{"query"}),
		toolDef("get_city_id_by_name",
			"Resolve a city name (Arabic or English) to its id. Returns null when unknown.",
			map[string]jsonschema.Definition{
				"name": stringProp("Exact city name."),
			}, []string{"name"}),
		toolDef("get_brands_by_city",
			"List the water brands available in a city.",
			map[string]jsonschema.Definition{
				"city_id": {Type: jsonschema.Integer, Description: "City id from get_city_id_by_name."},
			}, []string{"city_id"}),
		toolDef("search_brands_in_city",
			"Search for a brand within a city, exact matches first then partial.",
			map[string]jsonschema.Definition{
				"brand_name": stringProp("Brand name or fragment."),
				"city_name":  stringProp("City name."),
			}, []string{"brand_name", "city_name"}),
		toolDef("get_products_by_brand_and_city_name",
			"List a brand's products available in a city, with packing and price.",
			map[string]jsonschema.Definition{
				"brand_name": stringProp("Brand name."),
				"city_name":  stringProp("City name."),
			}, []string{"brand_name", "city_name"}),
		toolDef("get_cheapest_products_by_city_name",
			"The cheapest product per packing size among all brands in a city.",
			map[string]jsonschema.Definition{
				"city_name": stringProp("City name."),
			}, []string{"city_name"}),
		toolDef("check_city_availability",
			"Check whether a brand or a product is available in a city.",
			map[string]jsonschema.Definition{
				"city_name": stringProp("City name."),
				"kind":      {Type: jsonschema.String, Enum: []string{"brand", "product"}, Description: "What to check."},
				"name":      stringProp("Brand or product name."),
			}, []string{"city_name", "kind", "name"}),
	}
}

type cityView struct {
	ID     int    `json:"id"`
	NameAr string `json:"name_ar"`
	NameEn string `json:"name_en"`
}

type brandView struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

type productView struct {
	ID      uint    `json:"id"`
	Title   string  `json:"title"`
	Packing string  `json:"packing"`
	Price   float64 `json:"price"`
}

func cityViews(cities []domain.City) []cityView {
	out := make([]cityView, 0, len(cities))
	for _, c := range cities {
		out = append(out, cityView{ID: c.ID, NameAr: c.NameAr, NameEn: c.NameEn})
	}
	return out
}

func brandViews(brands []domain.Brand) []brandView {
	out := make([]brandView, 0, len(brands))
	for _, b := range brands {
		title := b.TitleAr
		if title == "" {
			title = b.TitleEn
		}
		out = append(out, brandView{ID: b.ID, Title: title})
	}
	return out
}

func productViews(products []domain.Product) []productView {
	out := make([]productView, 0, len(products))
	for _, p := range products {
		title := p.TitleAr
		if title == "" {
			title = p.TitleEn
		}
		out = append(out, productView{ID: p.ID, Title: title, Packing: p.Packing, Price: p.ContractPrice})
	}
	return out
}

// callTool dispatches one tool call and returns its JSON result.
func (a *Agent) callTool(ctx context.Context, name string, arguments string) (string, error) {
	var args struct {
		Query     string `json:"query"`
		Name      string `json:"name"`
		CityID    int    `json:"city_id"`
		BrandName string `json:"brand_name"`
		CityName  string `json:"city_name"`
		Kind      string `json:"kind"`
	}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("decode tool arguments for %s: %w", name, err)
		}
	}

	switch name {
	case "get_all_cities":
		cities, err := a.catalog.ListCities(ctx, "")
		if err != nil {
			return "", err
		}
		return marshal(cityViews(cities))

	case "search_cities":
		cities, err := a.catalog.SearchCities(ctx, args.Query)
		if err != nil {
			return "", err
		}
		return marshal(cityViews(cities))

	case "get_city_id_by_name":
		id, ok, err := a.catalog.GetCityIDByName(ctx, args.Name)
		if err != nil {
			return "", err
		}
		if !ok {
			return marshal(map[string]interface{}{"id": nil})
		}
		return marshal(map[string]interface{}{"id": id})

	case "get_brands_by_city":
		brands, err := a.catalog.GetBrandsByCity(ctx, args.CityID)
		if err != nil {
			return "", err
		}
		return marshal(brandViews(brands))

	case "search_brands_in_city":
		brands, err := a.catalog.SearchBrandsInCity(ctx, args.BrandName, args.CityName)
		if err != nil {
			return "", err
		}
		return marshal(brandViews(brands))

	case "get_products_by_brand_and_city_name":
		products, err := a.catalog.ProductsByBrandAndCityName(ctx, args.BrandName, args.CityName)
		if err != nil {
			return "", err
		}
		return marshal(productViews(products))

	case "get_cheapest_products_by_city_name":
		products, err := a.catalog.CheapestProductsByCityName(ctx, args.CityName)
		if err != nil {
			return "", err
		}
		return marshal(productViews(products))

	case "check_city_availability":
		return a.checkAvailability(ctx, args.CityName, args.Kind, args.Name)

	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}

func (a *Agent) checkAvailability(ctx context.Context, cityName, kind, name string) (string, error) {
	type verdict struct {
		Available bool   `json:"available"`
		Rationale string `json:"rationale"`
	}

	cityID, ok, err := a.catalog.GetCityIDByName(ctx, cityName)
	if err != nil {
		return "", err
	}
	if !ok {
		return marshal(verdict{Available: false, Rationale: "city is not served"})
	}

	switch kind {
	case "brand":
		brands, err := a.catalog.SearchBrandsInCity(ctx, name, cityName)
		if err != nil {
			return "", err
		}
		if len(brands) == 0 {
			return marshal(verdict{Available: false, Rationale: "brand not available in this city"})
		}
		return marshal(verdict{Available: true, Rationale: "brand is available in this city"})

	case "product":
		products, err := a.catalog.ListProducts(ctx, name)
		if err != nil {
			return "", err
		}
		if len(products) == 0 {
			return marshal(verdict{Available: false, Rationale: "no such product"})
		}
		cityBrands, err := a.catalog.GetBrandsByCity(ctx, cityID)
		if err != nil {
			return "", err
		}
		served := make(map[int]bool, len(cityBrands))
		for _, b := range cityBrands {
			served[b.ID] = true
		}
		for _, p := range products {
			if served[p.BrandID] {
				return marshal(verdict{Available: true, Rationale: "product is carried by a brand serving this city"})
			}
		}
		return marshal(verdict{Available: false, Rationale: "product exists but no brand carrying it serves this city"})

	default:
		return "", fmt.Errorf("unknown availability kind %q", kind)
	}
}

func marshal(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// resolveDistrict scans the message for a known district name and resolves
// it to a city. Matching is on the normalized form.
func (a *Agent) resolveDistrict(ctx context.Context, text string) (cityName string, found bool, err error) {
	districts, err := a.catalog.ListDistricts(ctx)
	if err != nil {
		return "", false, err
	}
	normalized := language.NormalizeArabic(text)
	for _, d := range districts {
		if d.Name != "" && containsWord(normalized, d.Name) {
			return d.CityName, true, nil
		}
	}
	return "", false, nil
}

// containsWord reports whether needle occurs in haystack on space
// boundaries, so a district name never matches inside a longer word.
func containsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for idx := 0; idx < len(haystack); {
		j := strings.Index(haystack[idx:], needle)
		if j < 0 {
			return false
		}
		j += idx
		end := j + len(needle)
		before := j == 0 || haystack[j-1] == ' '
		after := end == len(haystack) || haystack[end] == ' '
		if before && after {
			return true
		}
		idx = j + 1
	}
	return false
}
