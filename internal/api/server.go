package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	gonanoid "github.com/matoous/go-nanoid/v2"

	config "mediapipe/internal/configuration"
	"mediapipe/internal/imagegen"
	"mediapipe/internal/orchestrator"
	"mediapipe/internal/videoproc"
)

// Server wires the transcription, image-synthesis, and video
// post-processing pipelines behind an HTTP API, grounded on the
// teacher's mux-based Server.
type Server struct {
	configuration *config.Configuration
	router        *mux.Router

	orchestrator *orchestrator.Orchestrator
	enhancer     *imagegen.Enhancer
	synthesizer  *imagegen.Synthesizer
	video        *videoproc.Processor
}

// NewServer creates a new API server and registers all routes.
func NewServer(cfg *config.Configuration, orch *orchestrator.Orchestrator, enhancer *imagegen.Enhancer, synthesizer *imagegen.Synthesizer, video *videoproc.Processor) *Server {
	server := &Server{
		configuration: cfg,
		router:        mux.NewRouter(),
		orchestrator:  orch,
		enhancer:      enhancer,
		synthesizer:   synthesizer,
		video:         video,
	}
	server.setupRoutes()
	return server
}

// Handler returns the HTTP handler for this server.
func (server *Server) Handler() http.Handler {
	return server.router
}

func (server *Server) setupRoutes() {
	server.router.Use(server.corsMiddleware)
	server.router.Use(server.requestIDMiddleware)
	server.router.Use(server.loggingMiddleware)

	server.router.HandleFunc("/health", server.handleHealth).Methods("GET")

	apiRouter := server.router.PathPrefix("/").Subrouter()
	apiRouter.Use(server.authMiddleware)

	apiRouter.HandleFunc("/transcribe", server.handleTranscribe).Methods("POST")
	apiRouter.HandleFunc("/status/{jobId}", server.handleStatus).Methods("GET")
	apiRouter.HandleFunc("/images/generate", server.handleImageGenerate).Methods("POST")
	apiRouter.HandleFunc("/video/subtitles", server.handleVideoSubtitles).Methods("POST")
	apiRouter.HandleFunc("/video/zoom", server.handleVideoZoom).Methods("POST")
}

// Middleware

func (server *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (server *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, _ := gonanoid.New()
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

func (server *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("request processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(started))
	})
}

// authMiddleware enforces a static shared secret on every route except
// /health, via X-API-Key or a Bearer Authorization header. A server with
// no configured key runs the gate open, for local and test use.
func (server *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if server.configuration.Security.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if key != server.configuration.Security.APIKey {
			server.writeError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "valid API key required", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
