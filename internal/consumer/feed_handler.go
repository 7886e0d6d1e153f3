package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/eventhub/internal/events"
)

// FeedHandler projects outbox events into the per-user feed table that
// backs client timelines. Inserts are idempotent so replays and
// redeliveries are harmless.
type FeedHandler struct {
	pool *pgxpool.Pool
}

// NewFeedHandler constructs a handler backed by the provided pool.
func NewFeedHandler(pool *pgxpool.Pool) *FeedHandler {
	return &FeedHandler{pool: pool}
}

// Handle appends a feed entry derived from the event.
func (h *FeedHandler) Handle(ctx context.Context, msg Message) error {
	var entry struct {
		userID     string
		activityID string
		verb       string
		occurredAt time.Time
	}

	switch msg.EventType {
	case "activity.created":
		var payload events.ActivityCreated
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		entry.userID = payload.CreatorID
		entry.activityID = payload.ActivityID
		entry.verb = "created"
		entry.occurredAt = payload.CreatedAt
	case "participant.registered":
		var payload events.ParticipantRegistered
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		entry.userID = payload.UserID
		entry.activityID = payload.ActivityID
		entry.verb = "registered"
		entry.occurredAt = payload.JoinedAt
	case "participant.checked_in":
		var payload events.ParticipantCheckedIn
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		entry.userID = payload.UserID
		entry.activityID = payload.ActivityID
		entry.verb = "checked_in"
		entry.occurredAt = payload.CheckedInAt
	default:
		// Unknown event types are skipped, not failed, so schema
		// evolution does not wedge the consumer group.
		return nil
	}

	_, err := h.pool.Exec(ctx,
		`INSERT INTO user_feed (user_id, activity_id, verb, occurred_at)
         VALUES ($1,$2,$3,$4)
         ON CONFLICT (user_id, activity_id, verb) DO NOTHING`,
		entry.userID, entry.activityID, entry.verb, entry.occurredAt,
	)
	return err
}
