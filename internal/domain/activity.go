package domain

import "time"

// ActivityStatus represents the lifecycle status of an activity.
type ActivityStatus string

// ActivityStatusUpcoming is the status assigned at creation. Status
// transitions are not handled by this service.
const ActivityStatusUpcoming ActivityStatus = "upcoming"

// Activity is the canonical event record stored in PostgreSQL.
// ParticipantCount is authoritative: it is initialised to 1 at creation
// (the creator joins implicitly) and incremented only by admitted
// registrations, inside the same transaction as the participant insert.
type Activity struct {
	ID               string
	Title            string
	Category         string
	Description      string
	StartTime        time.Time
	EndTime          time.Time
	Location         Location
	CoverURL         string
	MaxParticipants  int // 0 means unlimited
	ParticipantCount int
	Status           ActivityStatus
	CreatorID        string
	CreatedAt        time.Time
	Media            []MediaItem
}

// Location describes where an activity takes place.
type Location struct {
	Name      string
	Address   string
	Latitude  *float64
	Longitude *float64
}

// MediaItem is a reference to an already-uploaded media object attached
// to an activity. Only the reference is persisted, never file bytes.
type MediaItem struct {
	Type string
	URL  string
}

// Participant is a user admitted into an activity's roster. The
// (ActivityID, UserID) pair is unique; rows are created once and never
// mutated or deleted.
type Participant struct {
	ActivityID string
	UserID     string
	JoinedAt   time.Time
}

// CheckIn records attendance confirmation for a registered participant.
type CheckIn struct {
	ActivityID  string
	UserID      string
	CheckedInAt time.Time
}

// User is the minimal profile bootstrapped at first contact and
// editable through the profile endpoints.
type User struct {
	ID        string
	Nickname  string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Comment is a user remark on an activity.
type Comment struct {
	ID         string
	ActivityID string
	AuthorID   string
	Content    string
	CreatedAt  time.Time
}

// Cursor models the pagination token for activity listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}
