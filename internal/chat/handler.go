package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pharmaflow/pharmacy-assistant/pkg/logging"
)

// Handler wires HTTP requests to the chat dispatcher.
type Handler struct {
	dispatcher Dispatcher
	history    *HistoryStore
	jobs       JobRecorder
	logger     *logging.Logger
}

// NewHandler creates a chat handler. History and jobs may be nil, in which
// case the transcript and job status endpoints return 404.
func NewHandler(dispatcher Dispatcher, history *HistoryStore, jobs JobRecorder, logger *logging.Logger) *Handler {
	if dispatcher == nil {
		panic("chat: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		dispatcher: dispatcher,
		history:    history,
		jobs:       jobs,
		logger:     logger,
	}
}

// Turn handles POST /chat.
func (h *Handler) Turn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode turn request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.PatientID) == "" || strings.TrimSpace(req.Message) == "" {
		http.Error(w, "patient_id and message are required", http.StatusBadRequest)
		return
	}

	resp, err := h.dispatcher.ProcessTurn(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to process turn", "patient_id", req.PatientID, "error", err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// History handles GET /chat/history/{patientID}.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "Transcript storage not configured", http.StatusNotFound)
		return
	}

	patientID := chi.URLParam(r, "patientID")
	if patientID == "" {
		http.Error(w, "patientID is required", http.StatusBadRequest)
		return
	}

	messages, err := h.history.Load(r.Context(), patientID)
	if err != nil {
		h.logger.Error("failed to load transcript", "patient_id", patientID, "error", err)
		http.Error(w, "Failed to load transcript", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"patient_id": patientID,
		"messages":   messages,
	})
}

// JobStatus handles GET /chat/jobs/{jobID}.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "Job tracking not configured", http.StatusNotFound)
		return
	}

	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		http.Error(w, "jobID is required", http.StatusBadRequest)
		return
	}

	record, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load job", "job_id", jobID, "error", err)
		http.Error(w, "Failed to load job", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, record)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
