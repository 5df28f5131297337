package booking

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/medbridge/voicebook/pkg/logging"
)

// Handler wires HTTP requests to the booking engine.
type Handler struct {
	engine *Engine
	slots  SlotStore
	logger *logging.Logger
}

// NewHandler creates a booking handler.
func NewHandler(engine *Engine, slots SlotStore, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("booking: engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		engine: engine,
		slots:  slots,
		logger: logger,
	}
}

// Start handles POST /booking/start.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.PatientName) == "" {
		http.Error(w, "patient_name is required", http.StatusBadRequest)
		return
	}

	resp, err := h.engine.Start(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to start booking conversation", "error", err)
		http.Error(w, "Failed to start booking", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// Message handles POST /booking/{conversationID}/message.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message cannot be empty", http.StatusBadRequest)
		return
	}

	resp, err := h.engine.ProcessTurn(r.Context(), conversationID, req.Message)
	if err != nil {
		h.writeError(w, err, "failed to process booking turn")
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Confirm handles POST /booking/{conversationID}/confirm.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	resp, err := h.engine.Confirm(r.Context(), conversationID)
	if err != nil {
		h.writeError(w, err, "failed to confirm booking")
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Cancel handles POST /booking/{conversationID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	resp, err := h.engine.Cancel(r.Context(), conversationID)
	if err != nil {
		h.writeError(w, err, "failed to cancel booking")
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /booking/{conversationID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	conv, err := h.engine.Get(r.Context(), conversationID)
	if err != nil {
		h.writeError(w, err, "failed to load booking conversation")
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

// Slots handles GET /booking/slots, listing currently available slots.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.slots.Query(r.Context(), r.URL.Query().Get("specialty"))
	if err != nil {
		h.logger.Error("failed to list slots", "error", err)
		http.Error(w, "Failed to list slots", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, slots)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, ErrConversationNotFound):
		http.Error(w, "Booking conversation not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrSlotUnavailable):
		http.Error(w, "Slot is no longer available", http.StatusConflict)
	default:
		h.logger.Error(logMsg, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
