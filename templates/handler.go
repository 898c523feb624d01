package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ComposeNotifier receives a notification for every successfully served
// compose request. Implementations must tolerate being called concurrently.
type ComposeNotifier interface {
	ComposeServed(ctx context.Context, requestID, templateID string)
}

// Handler exposes the template service over HTTP.
type Handler struct {
	composer *Composer
	notifier ComposeNotifier
	logger   *slog.Logger
}

func NewHandler(composer *Composer) *Handler {
	return &Handler{composer: composer, logger: slog.Default()}
}

// SetNotifier attaches an optional compose-event sink.
func (h *Handler) SetNotifier(notifier ComposeNotifier) {
	h.notifier = notifier
}

func (h *Handler) Mount(mux *http.ServeMux) {
	mux.HandleFunc("POST /compose", h.handleCompose)
	mux.HandleFunc("GET /workflows", h.handleSearch)
	mux.HandleFunc("GET /workflows/{id}", h.handleGetTemplate)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /health", h.handleHealth)
}

func (h *Handler) handleCompose(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(body.Description) == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	requestID := uuid.NewString()[:8]
	result, err := h.composer.Compose(body.Description)
	if err != nil {
		h.logger.Warn("compose failed", "request", requestID, "err", err)
		writeComposeError(w, err)
		return
	}

	h.logger.Info("compose served", "request", requestID, "template", result.TemplateID)
	if h.notifier != nil {
		h.notifier.ComposeServed(r.Context(), requestID, result.TemplateID)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	// Only a literally empty q serves the full index; a whitespace-only
	// query is still a query and ranks to nothing.
	query := r.URL.Query().Get("q")
	if query == "" {
		idx, err := h.composer.LoadIndex()
		if err != nil {
			writeComposeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, idx)
		return
	}

	result, err := h.composer.Search(query)
	if err != nil {
		writeComposeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing template id")
		return
	}

	detail, err := h.composer.GetTemplate(id)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeComposeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.composer.Stats()
	if err != nil {
		writeComposeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.composer.Health())
}

func writeComposeError(w http.ResponseWriter, err error) {
	var validationErr *ValidationError
	switch {
	case errors.Is(err, ErrIndexUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrNoMatch):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrIndexStale):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"%s"}`, err.Error()), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
