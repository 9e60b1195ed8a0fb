package router

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"simcore/internal/authsvc"
	"simcore/internal/rpc"
	"simcore/internal/session"
	"simcore/internal/telemetry"
	"simcore/pkg/dbgateway"
)

// Dialer opens a gRPC client to a simulator pod, reusing C2's dialer so both
// components agree on transport/credentials.
type Dialer func(ctx context.Context, endpoint string) (rpc.ExchangeSimulatorClient, func() error, error)

// Server is C4: the stateless REST front door.
type Server struct {
	Engine *gin.Engine

	cfg    Config
	db     dbgateway.DatabaseGateway
	auth   authsvc.Validator
	dial   Dialer
	tracer *telemetry.Tracer
	metrics *telemetry.Metrics
	log    zerolog.Logger

	locks  *lockStore
	idempo *idempotencyCache
}

// NewServer wires C4's gin engine, middleware chain, and route table.
func NewServer(cfg Config, db dbgateway.DatabaseGateway, auth authsvc.Validator, dial Dialer, tracer *telemetry.Tracer, metrics *telemetry.Metrics, log zerolog.Logger) *Server {
	cfg = cfg.withDefaults()
	if dial == nil {
		dial = session.DialInsecure
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		Engine:  gin.New(),
		cfg:     cfg,
		db:      db,
		auth:    auth,
		dial:    dial,
		tracer:  tracer,
		metrics: metrics,
		log:     log.With().Str("component", "c4").Logger(),
		locks:   newLockStore(cfg.LockTTL),
		idempo:  newIdempotencyCache(cfg.IdempotencyTTL),
	}

	s.Engine.Use(gin.Recovery())
	s.Engine.Use(requestIDMiddleware())
	s.Engine.Use(corsMiddleware())
	s.Engine.Use(timeoutMiddleware(30 * time.Second))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Engine.GET("/health", s.health)
	s.Engine.GET("/readiness", s.readiness)

	auth := s.Engine.Group("/api/auth")
	auth.Use(rateLimitMiddleware(authLimiter))
	{
		auth.POST("/register", s.register)
		auth.POST("/login", s.login)
	}

	api := s.Engine.Group("/api")
	api.Use(rateLimitMiddleware(apiLimiter))
	api.Use(s.authMiddleware())
	{
		api.POST("/orders/submit", s.submitOrders)
		api.POST("/orders/cancel", s.cancelOrders)
		api.POST("/convictions/submit", s.submitConvictions)
		api.POST("/convictions/cancel", s.cancelConvictions)

		api.POST("/funds", s.createFund)
		api.GET("/funds", s.listFunds)
		api.POST("/books", s.createBook)
		api.GET("/books/:fundId", s.listBooks)

		api.POST("/feedback", s.createFeedback)
		api.GET("/feedback", s.listFeedback)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

func (s *Server) readiness(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ready"})
}

// resolveSimulatorEndpoint implements the "(user_id) -> C2 pod, forward" step
// of §4.4: the user's active session names a running simulator, and C4
// dials that simulator directly over the same gRPC contract C2 uses, rather
// than re-routing through C2's WS transport. See DESIGN.md's Open Question
// decision for why this edge is drawn here instead of at C2.
func (s *Server) resolveSimulatorEndpoint(ctx context.Context, userID string) (string, error) {
	sess, err := s.db.Sessions().ByUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("no active session: %w", err)
	}
	sim, err := s.db.Simulators().BySession(ctx, sess.SessionID)
	if err != nil {
		return "", fmt.Errorf("no simulator bound to session: %w", err)
	}
	if sim.Status != dbgateway.SimRunning {
		return "", fmt.Errorf("simulator not running (status=%s)", sim.Status)
	}
	return sim.Endpoint, nil
}
