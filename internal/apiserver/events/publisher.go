// Package events bridges settlement notifications onto the websocket hub.
package events

import (
	"context"

	"github.com/crowdrank/crowdrank-backend/internal/apiserver/websocket"
	"github.com/crowdrank/crowdrank-backend/internal/consensus"
	"github.com/crowdrank/crowdrank-backend/pkg/logging"
)

// Publisher fans settlement events out to websocket rooms. Delivery is
// fire-and-forget: a full queue or an empty room never affects settlement.
type Publisher struct {
	hub    *websocket.Hub
	logger logging.Logger
}

var _ consensus.NotificationSink = (*Publisher)(nil)

// NewPublisher creates a publisher over the given hub.
func NewPublisher(hub *websocket.Hub, logger logging.Logger) *Publisher {
	return &Publisher{
		hub:    hub,
		logger: logger,
	}
}

// NotifyTaskCompletion publishes a completion event to the shared task room.
func (p *Publisher) NotifyTaskCompletion(_ context.Context, event consensus.TaskCompletionEvent) {
	p.hub.BroadcastTaskCompleted(event)
	p.logger.Infof("Published completion event for task %d", event.TaskID)
}

// NotifyWorkerPayout publishes a payout event to the worker's room.
func (p *Publisher) NotifyWorkerPayout(_ context.Context, event consensus.WorkerPayoutEvent) {
	p.hub.BroadcastWorkerPayout(event.WorkerID, event)
	p.logger.Debugf("Published %s payout event for worker %d", event.Kind, event.WorkerID)
}
