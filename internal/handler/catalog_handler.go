package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/internal/repository"
)

// CatalogHandler serves the read-only catalog API.
type CatalogHandler struct {
	catalog repository.CatalogRepository
}

func NewCatalogHandler(catalog repository.CatalogRepository) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// cityFull is the /cities/{id}/full view: the city with its brands and
// each brand's products.
type cityFull struct {
	domain.City
	Brands []brandFull `json:"brands"`
}

type brandFull struct {
	domain.Brand
	Products []domain.Product `json:"products"`
}

func (h *CatalogHandler) ListCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.catalog.ListCities(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list cities")
		return
	}
	respondData(w, cities)
}

func (h *CatalogHandler) GetCity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	city, err := h.catalog.GetCity(r.Context(), id)
	if err != nil {
		respondNotFoundOrError(w, err, "city not found")
		return
	}
	respondData(w, city)
}

func (h *CatalogHandler) GetCityBrands(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	brands, err := h.catalog.GetBrandsByCity(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list city brands")
		return
	}
	respondData(w, brands)
}

func (h *CatalogHandler) GetCityFull(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	city, err := h.catalog.GetCity(r.Context(), id)
	if err != nil {
		respondNotFoundOrError(w, err, "city not found")
		return
	}
	brands, err := h.catalog.GetBrandsByCity(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list city brands")
		return
	}

	full := cityFull{City: *city, Brands: make([]brandFull, 0, len(brands))}
	for _, brand := range brands {
		products, err := h.catalog.GetProductsByBrand(r.Context(), brand.ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list brand products")
			return
		}
		full.Brands = append(full.Brands, brandFull{Brand: brand, Products: products})
	}
	respondData(w, full)
}

func (h *CatalogHandler) ListBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.catalog.ListBrands(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list brands")
		return
	}
	respondData(w, brands)
}

func (h *CatalogHandler) GetBrand(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	brand, err := h.catalog.GetBrand(r.Context(), id)
	if err != nil {
		respondNotFoundOrError(w, err, "brand not found")
		return
	}
	respondData(w, brand)
}

func (h *CatalogHandler) GetBrandFull(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	brand, err := h.catalog.GetBrand(r.Context(), id)
	if err != nil {
		respondNotFoundOrError(w, err, "brand not found")
		return
	}
	products, err := h.catalog.GetProductsByBrand(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list brand products")
		return
	}
	respondData(w, brandFull{Brand: *brand, Products: products})
}

func (h *CatalogHandler) GetBrandProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	products, err := h.catalog.GetProductsByBrand(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list brand products")
		return
	}
	respondData(w, products)
}

func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	respondData(w, products)
}

func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	product, err := h.catalog.GetProduct(r.Context(), uint(id))
	if err != nil {
		respondNotFoundOrError(w, err, "product not found")
		return
	}
	respondData(w, product)
}

func pathInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)[key])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func respondNotFoundOrError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, repository.ErrNotFound) {
		respondError(w, http.StatusNotFound, notFoundMsg)
		return
	}
	respondError(w, http.StatusInternalServerError, "internal error")
}
