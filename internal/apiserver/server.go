package apiserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crowdrank/crowdrank-backend/internal/apiserver/handlers"
	"github.com/crowdrank/crowdrank-backend/internal/apiserver/metrics"
	"github.com/crowdrank/crowdrank-backend/internal/apiserver/middleware"
	"github.com/crowdrank/crowdrank-backend/internal/apiserver/websocket"
	"github.com/crowdrank/crowdrank-backend/pkg/logging"
)

// Server wires the REST API, websocket hub and metrics endpoint behind a
// single gin router.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	hub        *websocket.Hub
	handler    *handlers.Handler
	metrics    *metrics.Metrics
	logger     logging.Logger
}

func NewServer(deps handlers.Dependencies) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	// Configure CORS
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Content-Length, Accept-Encoding, Origin, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "false")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.Use(middleware.TraceMiddleware(deps.Logger))
	router.Use(middleware.MetricsMiddleware(deps.Metrics))

	s := &Server{
		router:  router,
		hub:     deps.Hub,
		handler: handlers.NewHandler(deps),
		metrics: deps.Metrics,
		logger:  deps.Logger,
	}
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handler.HealthCheck)
	s.router.GET("/ws", s.handler.HandleWebsocket)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := s.router.Group("/api")

	api.POST("/tasks", s.handler.CreateTask)
	api.GET("/tasks/:id", s.handler.GetTask)
	api.GET("/tasks/:id/completion", s.handler.GetTaskCompletion)
	api.GET("/tasks/:id/result", s.handler.GetTaskResult)
	api.POST("/tasks/:id/submissions", s.handler.CreateSubmission)

	api.GET("/workers/:id", s.handler.GetWorker)
	api.GET("/workers/:id/stats", s.handler.GetWorkerStats)
	api.GET("/workers/:id/withdrawals", s.handler.ListWorkerWithdrawals)
	api.GET("/workers/wallet/:address", s.handler.GetWorkerByWallet)

	api.POST("/withdrawals", s.handler.CreateWithdrawal)
	api.GET("/withdrawals/:id", s.handler.GetWithdrawal)

	api.GET("/leaderboard/workers", s.handler.GetWorkerLeaderboard)
	api.GET("/pricing", s.handler.GetPricing)
}

// Router exposes the underlying engine for composition and tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start begins serving on the given port. It blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(port string) error {
	s.logger.Infof("Starting API server on port %s", port)

	s.metrics.Start()
	go s.hub.Run()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: s.router,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener, disconnects websocket clients and stops
// metrics collection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infof("Shutting down API server")

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.hub.Shutdown()
	s.metrics.Stop()

	return err
}
