// Package events defines the payloads published through the outbox.
package events

import "time"

// ActivityCreated is emitted when an activity and its creator's
// registration commit.
type ActivityCreated struct {
	ActivityID      string    `json:"activity_id"`
	Title           string    `json:"title"`
	Category        string    `json:"category"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	MaxParticipants int       `json:"max_participants"`
	CreatorID       string    `json:"creator_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// ParticipantRegistered is emitted for every admitted registration,
// including the implicit creator registration.
type ParticipantRegistered struct {
	ActivityID       string    `json:"activity_id"`
	UserID           string    `json:"user_id"`
	JoinedAt         time.Time `json:"joined_at"`
	ParticipantCount int       `json:"participant_count"`
}

// ParticipantCheckedIn is emitted when a registered participant checks in.
type ParticipantCheckedIn struct {
	ActivityID  string    `json:"activity_id"`
	UserID      string    `json:"user_id"`
	CheckedInAt time.Time `json:"checked_in_at"`
}
