package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// StatusHandler serves the local status and control endpoints of a display
type StatusHandler struct {
	session  *Session
	controls *Controls
	conn     interface{ State() ConnState }
}

// NewStatusHandler creates a status handler. Actions go through cm.
func NewStatusHandler(session *Session, cm *ConnectionManager) *StatusHandler {
	return &StatusHandler{
		session:  session,
		controls: NewControls(cm, session),
		conn:     cm,
	}
}

// RegisterRoutes registers the status routes with an HTTP mux
func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /state", h.HandleState)
	mux.HandleFunc("GET /branding", h.HandleBranding)
	mux.HandleFunc("POST /actions/{action}", h.HandleAction)
}

// HandleHealth reports OK while the display has a live socket or runs static
func (h *StatusHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	state := h.conn.State()
	if state != StateOpen && state != StateStatic {
		http.Error(w, state.String(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

// HandleState returns the current session snapshot
func (h *StatusHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// HandleBranding returns the CSS variables of the event template
func (h *StatusHandler) HandleBranding(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Branding())
}

// HandleAction forwards an operator action to the server
func (h *StatusHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("action")

	var args ActionArgs
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
			return
		}
	}

	err = h.controls.HandleAction(name, args)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, ErrNotConnected):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Warn().Err(err).Str("action", name).Msg("rejected action")
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

// NewStatusServer wraps handler with CORS and cleartext HTTP/2
func NewStatusServer(addr string, handler *StatusHandler) *http.Server {
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:         addr,
		Handler:      h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
