package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pharmaflow/pharmacy-assistant/internal/catalog"
	"github.com/pharmaflow/pharmacy-assistant/pkg/logging"
)

// AdminCatalogHandler exposes inventory management for pharmacy staff.
type AdminCatalogHandler struct {
	store             *catalog.Store
	lowStockThreshold int
	logger            *logging.Logger
}

// NewAdminCatalogHandler creates a catalog admin handler.
func NewAdminCatalogHandler(store *catalog.Store, lowStockThreshold int, logger *logging.Logger) *AdminCatalogHandler {
	if store == nil {
		panic("handlers: catalog store cannot be nil")
	}
	if lowStockThreshold <= 0 {
		lowStockThreshold = 10
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminCatalogHandler{
		store:             store,
		lowStockThreshold: lowStockThreshold,
		logger:            logger,
	}
}

// ListMedicines handles GET /admin/catalog.
func (h *AdminCatalogHandler) ListMedicines(w http.ResponseWriter, r *http.Request) {
	medicines, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list catalog", "error", err)
		http.Error(w, "Failed to list catalog", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"medicines": medicines})
}

// LowStock handles GET /admin/catalog/low-stock.
func (h *AdminCatalogHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	medicines, err := h.store.ListLowStock(r.Context(), h.lowStockThreshold)
	if err != nil {
		h.logger.Error("failed to list low stock", "error", err)
		http.Error(w, "Failed to list low stock", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"threshold": h.lowStockThreshold,
		"medicines": medicines,
	})
}

type restockRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Restock handles POST /admin/catalog/restock.
func (h *AdminCatalogHandler) Restock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Quantity <= 0 {
		http.Error(w, "name and a positive quantity are required", http.StatusBadRequest)
		return
	}

	if err := h.store.Restock(r.Context(), req.Name, req.Quantity); err != nil {
		h.logger.Error("failed to restock", "name", req.Name, "error", err)
		http.Error(w, "Failed to restock", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"name":  req.Name,
		"added": req.Quantity,
	})
}

// Import handles POST /admin/catalog/import. The body is a JSON array of
// medicines; existing rows are updated in place with stock preserved.
func (h *AdminCatalogHandler) Import(w http.ResponseWriter, r *http.Request) {
	var medicines []catalog.Medicine
	if err := json.NewDecoder(r.Body).Decode(&medicines); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(medicines) == 0 {
		http.Error(w, "at least one medicine is required", http.StatusBadRequest)
		return
	}

	imported, err := h.store.Import(r.Context(), medicines)
	if err != nil {
		h.logger.Error("failed to import catalog", "error", err)
		http.Error(w, "Failed to import catalog", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"imported": imported})
}

func writeJSON(w http.ResponseWriter, logger *logging.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to write JSON response", "error", err)
	}
}
