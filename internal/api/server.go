// Package api provides the HTTP query API over indexed auctions.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/auction-indexer/internal/logging"
	"github.com/auction-indexer/internal/models"
	"github.com/auction-indexer/internal/service"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// QueryServiceInterface defines the read operations the API serves
type QueryServiceInterface interface {
	ListAuctions(ctx context.Context, input service.AuctionListInput) (*service.AuctionListResult, error)
	GetAuction(ctx context.Context, auctionID string) (*models.AuctionView, error)
	CountAuctions(ctx context.Context) (*models.AuctionCounts, error)
	ListBids(ctx context.Context, auctionID string, page, pageSize int) (*service.BidListResult, error)
	ListTokens(ctx context.Context) ([]*models.TokenMetadata, error)
	ListNFTs(ctx context.Context) ([]*models.NFTMetadata, error)
}

// SyncStatusProvider reports the sync worker's progress
type SyncStatusProvider interface {
	Status() models.SyncStatus
}

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP API server.
type Server struct {
	router       *mux.Router
	handler      http.Handler
	httpServer   *http.Server
	queryService QueryServiceInterface
	syncStatus   SyncStatusProvider
	checks       map[string]HealthCheck
	logger       *logging.Logger
	config       *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int // per client, 0 disables rate limiting
	RequestBurst    int
	AllowedOrigins  []string
}

// NewServer creates a new API server instance. syncStatus and checks may be
// nil.
func NewServer(config *ServerConfig, queryService QueryServiceInterface, syncStatus SyncStatusProvider, checks map[string]HealthCheck, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Server{
		router:       mux.NewRouter(),
		queryService: queryService,
		syncStatus:   syncStatus,
		checks:       checks,
		logger:       logger,
		config:       config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware)
	if s.config.RequestsPerSec > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(s.config.RequestsPerSec, s.config.RequestBurst)))
	}

	s.setupRoutes()

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	// CORS wraps the router so preflight requests never reach route matching
	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         3600,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:           s.handler,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// /auctions/count is registered before /auctions/{id} so it is not taken as an id
	s.router.HandleFunc("/auctions", s.handleListAuctions).Methods(http.MethodGet)
	s.router.HandleFunc("/auctions/count", s.handleCountAuctions).Methods(http.MethodGet)
	s.router.HandleFunc("/auctions/{id}", s.handleGetAuction).Methods(http.MethodGet)
	s.router.HandleFunc("/auctions/{id}/bids", s.handleGetAuctionBids).Methods(http.MethodGet)

	s.router.HandleFunc("/tokens", s.handleListTokens).Methods(http.MethodGet)
	s.router.HandleFunc("/nfts", s.handleListNFTs).Methods(http.MethodGet)
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string             `json:"status"`
	Service string             `json:"service"`
	Checks  map[string]string  `json:"checks,omitempty"`
	Sync    *models.SyncStatus `json:"sync,omitempty"`
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Service: "auction-indexer"}
	code := http.StatusOK

	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp.Checks = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			if err := check(ctx); err != nil {
				logging.FromContext(r.Context()).WithError(err).WithField("check", name).Warn("Health check failed")
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	if s.syncStatus != nil {
		st := s.syncStatus.Status()
		resp.Sync = &st
	}

	respondJSON(w, code, resp)
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
