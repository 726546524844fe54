package ingest

import (
	"context"
	"log"

	"orcabus-run-manager/internal/core/ports"
	"orcabus-run-manager/internal/domain"
	"orcabus-run-manager/internal/metrics"
	"orcabus-run-manager/internal/service"
)

// Consumer pumps inbound run-state-change events from the bus through
// reconciliation and publishes the accepted outbound events.
type Consumer struct {
	bus        ports.EventBus
	deadLetter ports.DeadLetterQueue
	reconciler *service.Reconciler
	kinds      []domain.RunKind
}

func NewConsumer(bus ports.EventBus, dlq ports.DeadLetterQueue, reconciler *service.Reconciler, kinds ...domain.RunKind) *Consumer {
	if len(kinds) == 0 {
		kinds = []domain.RunKind{domain.RunKindWorkflow, domain.RunKindSequence, domain.RunKindCase}
	}
	return &Consumer{
		bus:        bus,
		deadLetter: dlq,
		reconciler: reconciler,
		kinds:      kinds,
	}
}

// Start begins the listening loops, one per run kind. Call this in main.go.
func (c *Consumer) Start(ctx context.Context) error {
	for _, kind := range c.kinds {
		eventChannel, err := c.bus.SubscribeToInbound(ctx, kind)
		if err != nil {
			return err
		}
		go c.run(ctx, kind, eventChannel)
	}
	log.Printf("Consumer started, listening for %v run state changes...", c.kinds)
	return nil
}

func (c *Consumer) run(ctx context.Context, kind domain.RunKind, eventChannel <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			log.Printf("Consumer for %s events shutting down...", kind)
			return

		case raw, ok := <-eventChannel:
			if !ok {
				return
			}
			c.handleEvent(ctx, kind, raw)
		}
	}
}

func (c *Consumer) handleEvent(ctx context.Context, kind domain.RunKind, raw []byte) {
	ev, err := domain.UnmarshallRunStateChange(raw)
	if err != nil {
		log.Printf("Dead-lettering %s event: %v", kind, err)
		metrics.EventsDeadLettered.Inc()
		if dlqErr := c.deadLetter.Push(ctx, raw); dlqErr != nil {
			log.Printf("Failed to push event to dead-letter list: %v", dlqErr)
		}
		return
	}

	out, err := c.reconciler.Reconcile(ctx, kind, ev)
	if err != nil {
		// Reconciliation is idempotent, so the upstream can safely redeliver
		log.Printf("Failed to reconcile %s event for run %s: %v", kind, ev.PortalRunID, err)
		return
	}
	if out == nil {
		// Transition rejected: nothing new to emit
		return
	}

	if err := c.bus.PublishRunStateChange(ctx, kind, out); err != nil {
		log.Printf("Failed to publish state change for run %s: %v", out.PortalRunID, err)
	}
}
