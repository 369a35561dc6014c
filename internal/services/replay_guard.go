package services

import (
	"context"
	"fmt"
	"time"
	"unlock-api/internal/database"
	"unlock-api/pkg/logging"
)

// ReplayGuard deduplicates webhook deliveries by event ID. Redis keeps the
// seen-set so replays are caught across instances and restarts.
//
// The guard is an optimization, not a correctness requirement: the
// reconciliation path is idempotent, so when Redis is unavailable the event
// is allowed through rather than dropped.
type ReplayGuard struct {
	ttl time.Duration
}

// NewReplayGuard creates a guard with a 24 hour memory.
func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{ttl: 24 * time.Hour}
}

// FirstDelivery reports whether this is the first time the event has been
// seen, and records it atomically (SET NX).
func (g *ReplayGuard) FirstDelivery(ctx context.Context, method, eventID string) bool {
	if eventID == "" {
		// Nothing to key on; let the idempotent reconcile sort it out.
		return true
	}
	if database.RedisClient == nil {
		return true
	}

	key := fmt.Sprintf("webhook_event:%s:%s", method, eventID)
	ok, err := database.RedisClient.SetNX(ctx, key, time.Now().Unix(), g.ttl).Result()
	if err != nil {
		logging.Errorf("Replay guard unavailable, allowing event - key: %s, error: %v", key, err)
		return true
	}
	if !ok {
		logging.Infof("Replay detected, skipping event - key: %s", key)
	}
	return ok
}
