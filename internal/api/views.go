package api

import (
	"time"

	"example.com/eventhub/internal/domain"
)

// CreateActivityRequest is the payload for POST /v1/activities.
type CreateActivityRequest struct {
	Title           string          `json:"title"`
	Category        string          `json:"category"`
	Description     string          `json:"description"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	Location        LocationPayload `json:"location"`
	CoverURL        string          `json:"cover_url"`
	MaxParticipants int             `json:"max_participants"`
	Media           []MediaPayload  `json:"media"`
}

// LocationPayload carries the activity venue.
type LocationPayload struct {
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// MediaPayload references an already-uploaded media object.
type MediaPayload struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// RegistrationRequest carries the user joining or checking in.
type RegistrationRequest struct {
	UserID string `json:"user_id"`
}

// LoginRequest carries optional profile fields supplied at login.
type LoginRequest struct {
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url"`
}

// LoginResponse reports the bootstrapped profile.
type LoginResponse struct {
	UserID    string `json:"user_id"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url"`
	IsNewUser bool   `json:"is_new_user"`
}

// UpdateUserRequest carries editable profile fields.
type UpdateUserRequest struct {
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url"`
}

// CreateCommentRequest is the payload for POST /v1/comments.
type CreateCommentRequest struct {
	ActivityID string `json:"activity_id"`
	Content    string `json:"content"`
}

// ActivityView exposes full details about an activity, including the
// live participant count.
type ActivityView struct {
	ActivityID       string          `json:"activity_id"`
	Title            string          `json:"title"`
	Category         string          `json:"category"`
	Description      string          `json:"description"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          time.Time       `json:"end_time"`
	Location         LocationPayload `json:"location"`
	CoverURL         string          `json:"cover_url,omitempty"`
	MaxParticipants  int             `json:"max_participants"`
	ParticipantCount int             `json:"participant_count"`
	Status           string          `json:"status"`
	CreatorID        string          `json:"creator_id"`
	CreatedAt        time.Time       `json:"created_at"`
	Media            []MediaPayload  `json:"media,omitempty"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ParticipantView exposes one roster entry.
type ParticipantView struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	JoinedAt   time.Time `json:"joined_at"`
}

// ParticipantListResponse packages a roster.
type ParticipantListResponse struct {
	Items []ParticipantView `json:"items"`
}

// CheckInView exposes one attendance record.
type CheckInView struct {
	ActivityID  string    `json:"activity_id"`
	UserID      string    `json:"user_id"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// CheckInListResponse packages check-in records.
type CheckInListResponse struct {
	Items []CheckInView `json:"items"`
}

// UserView exposes a profile without private fields.
type UserView struct {
	UserID    string    `json:"user_id"`
	Nickname  string    `json:"nickname"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

// CommentView exposes one comment.
type CommentView struct {
	CommentID  string    `json:"comment_id"`
	ActivityID string    `json:"activity_id"`
	AuthorID   string    `json:"author_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// CommentListResponse packages comments for an activity.
type CommentListResponse struct {
	Items []CommentView `json:"items"`
}

func toActivityView(activity domain.Activity) ActivityView {
	media := make([]MediaPayload, 0, len(activity.Media))
	for _, item := range activity.Media {
		media = append(media, MediaPayload{Type: item.Type, URL: item.URL})
	}
	return ActivityView{
		ActivityID:  activity.ID,
		Title:       activity.Title,
		Category:    activity.Category,
		Description: activity.Description,
		StartTime:   activity.StartTime,
		EndTime:     activity.EndTime,
		Location: LocationPayload{
			Name:      activity.Location.Name,
			Address:   activity.Location.Address,
			Latitude:  activity.Location.Latitude,
			Longitude: activity.Location.Longitude,
		},
		CoverURL:         activity.CoverURL,
		MaxParticipants:  activity.MaxParticipants,
		ParticipantCount: activity.ParticipantCount,
		Status:           string(activity.Status),
		CreatorID:        activity.CreatorID,
		CreatedAt:        activity.CreatedAt,
		Media:            media,
	}
}

func toCommentView(comment domain.Comment) CommentView {
	return CommentView{
		CommentID:  comment.ID,
		ActivityID: comment.ActivityID,
		AuthorID:   comment.AuthorID,
		Content:    comment.Content,
		CreatedAt:  comment.CreatedAt,
	}
}
