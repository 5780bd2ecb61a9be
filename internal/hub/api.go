// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"mediaroom/internal/discovery"
	"mediaroom/internal/logger"
	"mediaroom/internal/notify"
)

const (
	// NonceHeader carries the client's idempotency nonce on action requests
	NonceHeader = "X-Request-Nonce"

	maxActionBody  = 64 << 10
	maxDiscoverFor = time.Minute
)

// APIServer serves the hub's REST API and event stream
type APIServer struct {
	manager  *BoxManager
	registry *Registry
	scanner  *discovery.Scanner
	listener *notify.Listener
	tokens   *TokenService
	ignore   []string
	started  time.Time
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

// APIOptions wires the API server to the rest of the hub
type APIOptions struct {
	Manager  *BoxManager
	Registry *Registry
	Scanner  *discovery.Scanner
	Listener *notify.Listener
	Tokens   *TokenService // nil disables authentication
	Ignore   []string      // addresses left out of discovery results
}

// NewAPIServer creates a new API server
func NewAPIServer(opts APIOptions) *APIServer {
	return &APIServer{
		manager:  opts.Manager,
		registry: opts.Registry,
		scanner:  opts.Scanner,
		listener: opts.Listener,
		tokens:   opts.Tokens,
		ignore:   opts.Ignore,
		started:  time.Now(),
		logger:   logger.Component("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Handler builds the router
func (api *APIServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(api.loggingMiddleware)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()

	// Health check stays public
	apiRouter.HandleFunc("/health", api.handleHealth).Methods("GET")

	protected := apiRouter.NewRoute().Subrouter()
	if api.tokens != nil {
		protected.Use(api.tokens.RequireAuth)
	}

	protected.HandleFunc("/boxes", api.handleListBoxes).Methods("GET")
	protected.HandleFunc("/boxes/seen", api.handleSeenBoxes).Methods("GET")
	protected.HandleFunc("/boxes/{id}/state", api.handleBoxState).Methods("GET")
	protected.HandleFunc("/boxes/{id}/action", api.handleBoxAction).Methods("POST")
	protected.HandleFunc("/discover", api.handleDiscover).Methods("GET")
	protected.HandleFunc("/events", api.handleEvents).Methods("GET")

	return router
}

// Start starts the HTTP server in the background
func (api *APIServer) Start(address string) error {
	api.server = &http.Server{
		Addr:              address,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	api.logger.Info().
		Str("address", address).
		Bool("auth", api.tokens != nil).
		Msg("Starting API server")

	go func() {
		if err := api.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			api.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop stops the API server
func (api *APIServer) Stop(ctx context.Context) error {
	if api.server == nil {
		return nil
	}
	api.logger.Info().Msg("Stopping API server")
	return api.server.Shutdown(ctx)
}

func (api *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		api.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("API request")
	})
}

// Response helpers
func (api *APIServer) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (api *APIServer) sendError(w http.ResponseWriter, status int, message string) {
	api.sendJSON(w, status, map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (api *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"box_count": api.manager.GetBoxCount(),
		"uptime":    time.Since(api.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (api *APIServer) handleListBoxes(w http.ResponseWriter, r *http.Request) {
	boxes := api.manager.ListBoxes()
	api.sendJSON(w, http.StatusOK, map[string]interface{}{
		"boxes": boxes,
		"count": len(boxes),
	})
}

func (api *APIServer) handleSeenBoxes(w http.ResponseWriter, r *http.Request) {
	seen := api.registry.List()
	api.sendJSON(w, http.StatusOK, map[string]interface{}{
		"boxes": seen,
		"count": len(seen),
	})
}

func (api *APIServer) handleBoxState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	state, err := api.manager.GetState(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrBoxNotFound) {
			api.sendError(w, http.StatusNotFound, err.Error())
			return
		}
		api.sendError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	api.sendJSON(w, http.StatusOK, map[string]interface{}{
		"id":    id,
		"state": state,
	})
}

func (api *APIServer) handleBoxAction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	nonce := r.Header.Get(NonceHeader)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxActionBody))
	if err != nil {
		api.sendError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	response, err := api.manager.ProcessBoxAction(r.Context(), id, body, nonce)
	if err != nil {
		if errors.Is(err, ErrBoxNotFound) {
			api.sendError(w, http.StatusNotFound, err.Error())
			return
		}
		api.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if nonce != "" {
		w.Header().Set(NonceHeader, nonce)
	}
	api.sendJSON(w, http.StatusOK, response)
}

func (api *APIServer) handleDiscover(w http.ResponseWriter, r *http.Request) {
	maxWait := api.scanner.Timeout
	if raw := r.URL.Query().Get("max_wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			api.sendError(w, http.StatusBadRequest, "max_wait must be a positive duration such as 5s")
			return
		}
		maxWait = d
	}
	if maxWait > maxDiscoverFor {
		maxWait = maxDiscoverFor
	}

	boxes, err := api.scanner.Discover(r.Context(), api.ignore, maxWait)
	if err != nil {
		api.sendError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	api.sendJSON(w, http.StatusOK, map[string]interface{}{
		"boxes":    boxes,
		"count":    len(boxes),
		"max_wait": maxWait.String(),
	})
}

// handleEvents streams every NOTIFY announcement as a JSON text frame.
// An optional ?box=<ip> restricts the stream to one box.
func (api *APIServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	sub, err := api.listener.Subscribe(r.URL.Query().Get("box"))
	if err != nil {
		api.sendError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer sub.Close()

	conn, err := api.upgrader.Upgrade(w, r, nil)
	if err != nil {
		api.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	streamID := uuid.NewString()
	log := api.logger.With().Str("stream", streamID).Str("remote", r.RemoteAddr).Logger()
	log.Info().Msg("Event stream opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reading is only needed to notice the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			log.Info().Err(err).Msg("Event stream closed")
			return
		}

		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug().Err(err).Msg("Failed to write event")
			return
		}
	}
}
