package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/jobs"
	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/metrics"
	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/music"
	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/speech"
)

const maxBodyBytes = 1 << 20

// SongGenerator runs one song request to completion.
type SongGenerator interface {
	Generate(ctx context.Context, req music.SongRequest) music.Result
}

// Synthesizer turns text into a saved audio file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, baseName string) (string, error)
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port           int
	Address        string
	AllowedOrigins []string
}

// Deps are the components the HTTP API drives.
type Deps struct {
	Registry *jobs.Registry
	Songs    SongGenerator
	Speech   Synthesizer
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// HTTPServer exposes song generation and speech synthesis over HTTP
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	registry *jobs.Registry
	songs    SongGenerator
	speech   Synthesizer
	metrics  *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg HTTPServerConfig, deps Deps, logger *slog.Logger) *HTTPServer {
	h := &HTTPServer{
		logger:    logger,
		registry:  deps.Registry,
		songs:     deps.Songs,
		speech:    deps.Speech,
		metrics:   deps.Metrics,
		startTime: time.Now(),
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := mux.NewRouter()
	h.setupRoutes(router, gatherer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	h.handler = c.Handler(router)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      h.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(r *mux.Router, gatherer prometheus.Gatherer) {
	r.HandleFunc("/", h.withMetrics("/", h.handleRoot)).Methods("GET")
	r.HandleFunc("/health", h.withMetrics("/health", h.handleHealth)).Methods("GET")

	r.HandleFunc("/songs", h.withMetrics("/songs", h.handleCreateSong)).Methods("POST")
	r.HandleFunc("/songs", h.withMetrics("/songs", h.handleListSongs)).Methods("GET")
	r.HandleFunc("/songs/{id}", h.withMetrics("/songs/{id}", h.handleSongDetail)).Methods("GET")

	r.HandleFunc("/speech", h.withMetrics("/speech", h.handleSpeech)).Methods("POST")

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
}

// Handler returns the routed handler, including CORS.
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		h.metrics.RecordHTTPRequest(r.Method, endpoint, fmt.Sprintf("%d", ww.statusCode), duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

type songRequest struct {
	Lyrics string `json:"lyrics"`
	Title  string `json:"title"`
	Style  string `json:"style"`
}

type speechRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "healing-audio-service",
		"endpoints": map[string]string{
			"GET /":           "API documentation",
			"GET /health":     "Service health check",
			"POST /songs":     "Start a song generation from lyrics and title",
			"GET /songs":      "List tracked song generations",
			"GET /songs/{id}": "Get the state of one song generation",
			"POST /speech":    "Synthesize a spoken message",
			"GET /metrics":    "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"uptime":      time.Since(h.startTime).String(),
		"active_jobs": h.registry.ActiveCount(),
	})
}

// handleCreateSong implements POST /songs
func (h *HTTPServer) handleCreateSong(w http.ResponseWriter, r *http.Request) {
	var req songRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req.Lyrics = strings.TrimSpace(req.Lyrics)
	req.Title = strings.TrimSpace(req.Title)
	if req.Lyrics == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "lyrics and title are required")
		return
	}

	songReq := music.SongRequest{Lyrics: req.Lyrics, Title: req.Title, Style: req.Style}
	song, err := h.registry.Run(req.Title, func(ctx context.Context) music.Result {
		return h.songs.Generate(ctx, songReq)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	w.Header().Set("Location", "/songs/"+song.ID)
	writeJSON(w, http.StatusAccepted, song)
}

// handleListSongs implements GET /songs
func (h *HTTPServer) handleListSongs(w http.ResponseWriter, r *http.Request) {
	songs := h.registry.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_songs": len(songs),
		"timestamp":   time.Now().UTC(),
		"songs":       songs,
	})
}

// handleSongDetail implements GET /songs/{id}
func (h *HTTPServer) handleSongDetail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	song, exists := h.registry.Get(id)
	if !exists {
		writeError(w, http.StatusNotFound, "song not found")
		return
	}

	writeJSON(w, http.StatusOK, song)
}

// handleSpeech implements POST /speech
func (h *HTTPServer) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if strings.TrimSpace(req.Filename) == "" {
		req.Filename = "message"
	}
	name := music.SanitizeName(req.Filename)
	path, err := h.speech.Synthesize(r.Context(), req.Text, name)
	switch {
	case err == nil:
	case errors.Is(err, speech.ErrEmptyText):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, speech.ErrMissingCredential):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"path":   path,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
