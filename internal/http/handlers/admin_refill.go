package handlers

import (
	"net/http"

	"github.com/pharmaflow/pharmacy-assistant/internal/orders"
	"github.com/pharmaflow/pharmacy-assistant/pkg/logging"
)

// AdminRefillHandler triggers refill alert scans on demand.
type AdminRefillHandler struct {
	scanner *orders.Scanner
	logger  *logging.Logger
}

// NewAdminRefillHandler creates a refill admin handler.
func NewAdminRefillHandler(scanner *orders.Scanner, logger *logging.Logger) *AdminRefillHandler {
	if scanner == nil {
		panic("handlers: refill scanner cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminRefillHandler{scanner: scanner, logger: logger}
}

// Scan handles POST /admin/refills/scan. It walks every patient's purchase
// history and sends alerts for supplies about to run out.
func (h *AdminRefillHandler) Scan(w http.ResponseWriter, r *http.Request) {
	result, err := h.scanner.Scan(r.Context())
	if err != nil {
		h.logger.Error("refill scan failed", "error", err)
		http.Error(w, "Refill scan failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}
