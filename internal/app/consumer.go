/**
 * @description
 * This file consumes vendor entitlement webhook events from RabbitMQ. The
 * webhook edge publishes one event per vendor notification (INITIAL_PURCHASE,
 * RENEWAL, CANCELLATION, EXPIRATION, BILLING_ISSUE, ...); this consumer is
 * the facade's push-update listener: on every event for the current app user
 * it fetches a fresh snapshot and folds it into state.
 */
package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/calorietracker/subscription-service/internal/domain"
)

// EntitlementEventConsumer bridges vendor push notifications into the facade.
type EntitlementEventConsumer struct {
	facade *Facade
}

// NewEntitlementEventConsumer wires the consumer onto the facade's listener
// slot. It returns nil when a listener is already attached: the push listener
// is attached at most once per facade lifetime.
func NewEntitlementEventConsumer(facade *Facade) *EntitlementEventConsumer {
	if !facade.AttachListener() {
		log.Printf("level=warn component=entitlement_consumer msg=\"listener already attached; skipping\"")
		return nil
	}
	return &EntitlementEventConsumer{facade: facade}
}

// HandleMessage processes one queued vendor event. The returned bool drives
// ack/nack: malformed payloads and events for other users are acknowledged
// and dropped so they never poison the queue; transient fetch failures are
// re-queued.
func (c *EntitlementEventConsumer) HandleMessage(body []byte) bool {
	var event domain.EntitlementEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("entitlement-consumer: failed to unmarshal payload: %v", err)
		return true
	}

	if event.AppUserID == "" {
		log.Printf("entitlement-consumer: missing app user id in event %+v", event)
		return true
	}

	current := c.facade.AppUserID()
	if current == "" || event.AppUserID != current {
		// Push for a different (or not yet initialized) session; drop.
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.processEvent(ctx, event); err != nil {
		log.Printf("entitlement-consumer: processing error for user %s event %s: %v", event.AppUserID, event.EventType, err)
		return false
	}
	return true
}

// processEvent fetches the post-event snapshot and applies it. The event
// itself does not carry entitlements; the subscriber record is the source of
// truth, so each push triggers one fetch.
func (c *EntitlementEventConsumer) processEvent(ctx context.Context, event domain.EntitlementEvent) error {
	info, err := c.facade.client.GetCustomerInfo(ctx, event.AppUserID)
	if err != nil {
		return err
	}
	c.facade.ApplyCustomerInfo(info)
	return nil
}
