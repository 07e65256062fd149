package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/specimen-registry-server/internal/auditlog"
	"github.com/specimen-registry-server/internal/config"
	"github.com/specimen-registry-server/internal/domain"
	"github.com/specimen-registry-server/internal/service"
)

// Server represents the HTTP server
type Server struct {
	cfg          *config.Config
	log          *logrus.Logger
	registration *service.RegistrationService
	store        domain.Store
	audit        auditlog.Store
	router       *gin.Engine
	server       *http.Server
}

// NewServer creates a new HTTP server instance. The audit store may be
// nil, in which case the journal endpoint is not registered.
func NewServer(cfg *config.Config, logger *logrus.Logger, registration *service.RegistrationService, store domain.Store, audit auditlog.Store) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware(logger))
	router.Use(rateLimitMiddleware(cfg.RateLimit))

	server := &Server{
		cfg:          cfg,
		log:          logger,
		registration: registration,
		store:        store,
		audit:        audit,
		router:       router,
	}

	server.setupRoutes()

	return server
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/register", s.handleRegisterBlocks)
		v1.POST("/register/original", s.handleRegisterOriginalSamples)
		v1.POST("/register/sections", s.handleRegisterSections)
		v1.GET("/labware/:barcode", s.handleGetLabware)
		if s.audit != nil {
			v1.GET("/registrations/recent", s.handleRecentRegistrations)
		}
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// handleRegisterBlocks registers tissue blocks.
func (s *Server) handleRegisterBlocks(c *gin.Context) {
	var req domain.BlockRegisterRequest
	if !s.bindRequest(c, &req) {
		return
	}
	outcome, err := s.registration.RegisterBlocks(c.Request.Context(), requestUser(c), &req)
	s.writeOutcome(c, outcome, err)
}

// handleRegisterOriginalSamples registers original samples.
func (s *Server) handleRegisterOriginalSamples(c *gin.Context) {
	var req domain.OriginalSampleRegisterRequest
	if !s.bindRequest(c, &req) {
		return
	}
	outcome, err := s.registration.RegisterOriginalSamples(c.Request.Context(), requestUser(c), &req)
	s.writeOutcome(c, outcome, err)
}

// handleRegisterSections registers sections of previously sectioned
// tissue.
func (s *Server) handleRegisterSections(c *gin.Context) {
	var req domain.SectionRegisterRequest
	if !s.bindRequest(c, &req) {
		return
	}
	outcome, err := s.registration.RegisterSections(c.Request.Context(), requestUser(c), &req)
	s.writeOutcome(c, outcome, err)
}

// handleGetLabware retrieves registered labware by barcode.
func (s *Server) handleGetLabware(c *gin.Context) {
	barcode := c.Param("barcode")
	labware, err := s.store.Labware().FindByBarcode(c.Request.Context(), barcode)
	if err != nil {
		s.log.WithError(err).Error("Labware lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if labware == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no labware with barcode %q", barcode)})
		return
	}
	c.JSON(http.StatusOK, labware)
}

// handleRecentRegistrations lists the most recent journaled attempts.
func (s *Server) handleRecentRegistrations(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	entries, err := s.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Audit journal read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"registrations": entries})
}

func (s *Server) bindRequest(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

// writeOutcome maps the pipeline outcome onto the response contract:
// 200 with a result, 409 with clashes, 422 with problems.
func (s *Server) writeOutcome(c *gin.Context, outcome *service.RegistrationOutcome, err error) {
	if err != nil {
		s.log.WithError(err).WithField("request_id", c.GetString("request_id")).
			Error("Registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	switch {
	case len(outcome.Clashes) > 0:
		c.JSON(http.StatusConflict, gin.H{"clashes": outcome.Clashes})
	case len(outcome.Problems) > 0:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"problems": outcome.Problems})
	default:
		c.JSON(http.StatusOK, outcome.Result)
	}
}

// requestUser identifies the caller for the audit trail.
func requestUser(c *gin.Context) string {
	if user := c.GetHeader("X-User"); user != "" {
		return user
	}
	return "anonymous"
}
