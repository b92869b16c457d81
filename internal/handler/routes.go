package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/saqiah/waterbot/internal/services/knowledge"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Webhook   *WebhookHandler
	Catalog   *CatalogHandler
	Sync      *SyncHandler
	Pause     *PauseHandler
	Knowledge *knowledge.Index
}

// NewRouter builds the full route table.
func NewRouter(h Handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthCheck).Methods(http.MethodGet)

	// WATI webhook
	r.HandleFunc("/webhook", h.Webhook.Receive).Methods(http.MethodPost)
	r.HandleFunc("/webhook", h.Webhook.Verify).Methods(http.MethodGet)

	// read-only catalog API
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/cities", h.Catalog.ListCities).Methods(http.MethodGet)
	api.HandleFunc("/cities/{id:[0-9]+}", h.Catalog.GetCity).Methods(http.MethodGet)
	api.HandleFunc("/cities/{id:[0-9]+}/brands", h.Catalog.GetCityBrands).Methods(http.MethodGet)
	api.HandleFunc("/cities/{id:[0-9]+}/full", h.Catalog.GetCityFull).Methods(http.MethodGet)
	api.HandleFunc("/brands", h.Catalog.ListBrands).Methods(http.MethodGet)
	api.HandleFunc("/brands/{id:[0-9]+}", h.Catalog.GetBrand).Methods(http.MethodGet)
	api.HandleFunc("/brands/{id:[0-9]+}/products", h.Catalog.GetBrandProducts).Methods(http.MethodGet)
	api.HandleFunc("/brands/{id:[0-9]+}/full", h.Catalog.GetBrandFull).Methods(http.MethodGet)
	api.HandleFunc("/products", h.Catalog.ListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id:[0-9]+}", h.Catalog.GetProduct).Methods(http.MethodGet)

	if h.Knowledge != nil {
		api.HandleFunc("/knowledge/stats", func(w http.ResponseWriter, r *http.Request) {
			respondData(w, h.Knowledge.Stats())
		}).Methods(http.MethodGet)
	}

	// catalog sync control
	r.HandleFunc("/data/sync", h.Sync.Trigger).Methods(http.MethodPost)
	r.HandleFunc("/data/sync/status", h.Sync.Status).Methods(http.MethodGet)
	r.HandleFunc("/data/sync/start", h.Sync.StartSchedule).Methods(http.MethodPost)
	r.HandleFunc("/data/sync/stop", h.Sync.StopSchedule).Methods(http.MethodPost)

	// conversation pause registry
	r.HandleFunc("/conversations/{id}/pause", h.Pause.Create).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/pause", h.Pause.Get).Methods(http.MethodGet)

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
