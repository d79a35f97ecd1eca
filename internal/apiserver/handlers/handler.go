// Package handlers implements the HTTP surface of the API server.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/crowdrank/crowdrank-backend/internal/apiserver/metrics"
	"github.com/crowdrank/crowdrank-backend/internal/apiserver/middleware"
	"github.com/crowdrank/crowdrank-backend/internal/apiserver/websocket"
	"github.com/crowdrank/crowdrank-backend/internal/consensus"
	"github.com/crowdrank/crowdrank-backend/internal/ledger"
	"github.com/crowdrank/crowdrank-backend/pkg/contentstore"
	"github.com/crowdrank/crowdrank-backend/pkg/logging"
	"github.com/crowdrank/crowdrank-backend/pkg/pricing"
)

// Dependencies carries the collaborators the handlers are built on.
type Dependencies struct {
	Store       *ledger.Store
	Engine      *consensus.Engine
	Withdrawals *consensus.WithdrawalService
	Oracle      *pricing.Oracle
	Content     contentstore.Client
	Hub         *websocket.Hub
	Metrics     *metrics.Metrics
	Logger      logging.Logger
}

// Handler owns every route of the API server.
type Handler struct {
	store       *ledger.Store
	engine      *consensus.Engine
	withdrawals *consensus.WithdrawalService
	oracle      *pricing.Oracle
	content     contentstore.Client
	hub         *websocket.Hub
	metrics     *metrics.Metrics
	logger      logging.Logger
}

// NewHandler builds a Handler from its dependencies.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		store:       deps.Store,
		engine:      deps.Engine,
		withdrawals: deps.Withdrawals,
		oracle:      deps.Oracle,
		content:     deps.Content,
		hub:         deps.Hub,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
}

// requestLogger returns the trace-scoped logger for the request.
func (h *Handler) requestLogger(c *gin.Context) logging.Logger {
	return middleware.GetLogger(c, h.logger)
}
