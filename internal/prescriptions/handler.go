package prescriptions

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pharmaflow/pharmacy-assistant/pkg/logging"
)

const maxUploadBytes = 10 << 20 // 10 MiB

// Handler exposes prescription upload and review over HTTP.
type Handler struct {
	store  *Store
	files  *FileStore
	logger *logging.Logger
}

// NewHandler creates a prescription handler. Files may be nil when document
// storage is not configured; records are then kept without a file reference.
func NewHandler(store *Store, files *FileStore, logger *logging.Logger) *Handler {
	if store == nil {
		panic("prescriptions: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, files: files, logger: logger}
}

// Upload handles POST /prescriptions/{patientID}. It accepts a multipart
// form with a medicine_name field, an optional email field, and an optional
// file part holding the scanned prescription.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	if patientID == "" {
		http.Error(w, "patientID is required", http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	medicineName := strings.TrimSpace(r.FormValue("medicine_name"))
	if medicineName == "" {
		http.Error(w, "medicine_name is required", http.StatusBadRequest)
		return
	}

	if err := h.store.EnsurePatient(r.Context(), patientID, strings.TrimSpace(r.FormValue("email"))); err != nil {
		h.logger.Error("failed to ensure patient", "patient_id", patientID, "error", err)
		http.Error(w, "Failed to register patient", http.StatusInternalServerError)
		return
	}

	var fileRef string
	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		if !h.files.Enabled() {
			http.Error(w, "Document storage not configured", http.StatusServiceUnavailable)
			return
		}
		body, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			http.Error(w, "Failed to read document", http.StatusBadRequest)
			return
		}
		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		fileRef, err = h.files.Upload(r.Context(), patientID, contentType, body)
		if err != nil {
			h.logger.Error("failed to store prescription document", "patient_id", patientID, "error", err)
			http.Error(w, "Failed to store document", http.StatusInternalServerError)
			return
		}
	}

	record, err := h.store.Insert(r.Context(), Record{
		PatientID:    patientID,
		MedicineName: medicineName,
		FileRef:      fileRef,
	})
	if err != nil {
		h.logger.Error("failed to record prescription", "patient_id", patientID, "error", err)
		http.Error(w, "Failed to record prescription", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, record)
}

// List handles GET /prescriptions/{patientID}.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	if patientID == "" {
		http.Error(w, "patientID is required", http.StatusBadRequest)
		return
	}

	records, err := h.store.ListByPatient(r.Context(), patientID)
	if err != nil {
		h.logger.Error("failed to list prescriptions", "patient_id", patientID, "error", err)
		http.Error(w, "Failed to list prescriptions", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"patient_id":    patientID,
		"prescriptions": records,
	})
}

// Approve handles POST /admin/prescriptions/{id}/approve.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid prescription id", http.StatusBadRequest)
		return
	}

	if err := h.store.Approve(r.Context(), id); err != nil {
		h.logger.Error("failed to approve prescription", "id", id, "error", err)
		http.Error(w, "Failed to approve prescription", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"id": id, "approved": true})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
