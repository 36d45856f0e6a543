package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jupark12/docshift/models"
	"github.com/jupark12/docshift/pipeline"
	"github.com/jupark12/docshift/store"
	"github.com/jupark12/docshift/worker"
)

// DefaultMaxUploadBytes caps the multipart body of an upload.
const DefaultMaxUploadBytes = 50 << 20

// Dispatcher hands pending documents to background workers.
type Dispatcher interface {
	Dispatch(ctx context.Context, job worker.Job) error
	Busy() int
}

// Options configures a Server. Store, Pipeline and Dispatcher are required.
type Options struct {
	Addr           string
	Store          store.Store
	Pipeline       *pipeline.Pipeline
	Dispatcher     Dispatcher
	Updates        *models.WebSocketManager
	MaxUploadBytes int64
	Logger         zerolog.Logger
}

// Server handles HTTP requests for document conversion
type Server struct {
	store          store.Store
	pipeline       *pipeline.Pipeline
	dispatcher     Dispatcher
	wsManager      *models.WebSocketManager
	ownsWSManager  bool
	maxUploadBytes int64
	upgrader       websocket.Upgrader
	logger         zerolog.Logger
	httpServer     *http.Server
}

// NewServer creates a new server instance
func NewServer(opts Options) *Server {
	s := &Server{
		store:          opts.Store,
		pipeline:       opts.Pipeline,
		dispatcher:     opts.Dispatcher,
		wsManager:      opts.Updates,
		maxUploadBytes: opts.MaxUploadBytes,
		logger:         opts.Logger.With().Str("component", "server").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = DefaultMaxUploadBytes
	}
	if s.wsManager == nil {
		s.wsManager = models.NewWebSocketManager(opts.Logger)
		s.wsManager.Start()
		s.ownsWSManager = true
	}

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		requestID,
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		accessLog(s.logger),
		cors,
	)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Post("/convert", s.handleConvert)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/status/{id}", s.handleStatus)
		r.Get("/download/{id}", s.handleDownload)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.ownsWSManager {
		s.wsManager.Stop()
	}
	return err
}

// notify pushes a document transition to websocket clients.
func (s *Server) notify(doc models.Document) {
	s.wsManager.BroadcastDocumentUpdate(doc)
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to upgrade to websocket")
		return
	}

	docs, err := s.store.List(r.Context(), "")
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load initial documents")
	}
	if err := s.wsManager.RegisterClientWithDocuments(conn, docs); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode initial documents")
		s.wsManager.RegisterClient(conn)
	}

	// Clients only listen. Reading detects disconnection.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.wsManager.UnregisterClient(conn)
				return
			}
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"busyWorkers": s.dispatcher.Busy(),
	})
}
