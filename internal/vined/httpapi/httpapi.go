package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trellisgw/trellis/internal/gatewaycfg"
	"github.com/trellisgw/trellis/internal/vined/host"
)

// revisionHeader carries the current revision on responses and the expected
// revision on replace requests.
const revisionHeader = "X-Trellis-Revision"

// Handler wires HTTP endpoints for the vined document host.
type Handler struct {
	logger *slog.Logger
	store  host.Store
}

// New constructs a router backed by the provided Store. A non-empty apiKey
// requires a matching bearer token on every /v1 request.
func New(logger *slog.Logger, store host.Store, apiKey string) http.Handler {
	h := &Handler{logger: logger, store: store}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		if apiKey != "" {
			r.Use(bearerAuth(apiKey))
		}
		r.Get("/document", h.handleGetDocument)
		r.Put("/document", h.handleReplaceDocument)
	})

	return r
}

func bearerAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) != apiKey {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	payload, revision, err := h.store.Load(r.Context())
	if err != nil {
		h.logger.Error("load document", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	w.Header().Set("Content-Type", "application/json")
	if revision != "" {
		w.Header().Set(revisionHeader, revision)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *Handler) handleReplaceDocument(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	// The host stores opaque bytes; shape-check here so a broken writer
	// cannot park garbage that every later fetch chokes on.
	if _, err := gatewaycfg.Unmarshal(payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	expected := r.Header.Get(revisionHeader)
	revision, err := h.store.Replace(r.Context(), payload, expected)
	if err != nil {
		if errors.Is(err, host.ErrRevisionConflict) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("replace document", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to replace document")
		return
	}

	w.Header().Set(revisionHeader, revision)
	writeJSON(w, http.StatusOK, map[string]string{"revision": revision})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
