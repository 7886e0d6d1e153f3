// Package domain defines the business logic for the event service.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository captures persistence operations against the ledger store.
// Implementations must make each write method a single atomic unit: it
// either fully applies or leaves no trace.
type Repository interface {
	CreateActivity(ctx context.Context, activity Activity, creator User) error
	GetActivity(ctx context.Context, activityID string) (*Activity, error)
	ListActivities(ctx context.Context, cursor *Cursor, limit int) ([]Activity, *Cursor, error)

	// RegisterParticipant evaluates activity existence, duplication and
	// capacity against one transactional snapshot and admits or rejects.
	RegisterParticipant(ctx context.Context, participant Participant) error
	CheckIn(ctx context.Context, checkIn CheckIn) error
	ListParticipants(ctx context.Context, activityID string) ([]Participant, error)
	ListCheckIns(ctx context.Context, activityID string) ([]CheckIn, error)

	EnsureUser(ctx context.Context, user User) (bool, error)
	GetUser(ctx context.Context, userID string) (*User, error)
	UpdateUserProfile(ctx context.Context, userID, nickname, avatarURL string) (bool, error)
	ListCreatedActivities(ctx context.Context, userID string) ([]Activity, error)
	ListJoinedActivities(ctx context.Context, userID string) ([]Activity, error)

	CreateComment(ctx context.Context, comment Comment) error
	GetComment(ctx context.Context, commentID string) (*Comment, error)
	ListComments(ctx context.Context, activityID string) ([]Comment, error)
	DeleteComment(ctx context.Context, commentID string) error
}

// Service orchestrates activity, registration, and check-in workflows.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateActivityInput captures the payload from the API layer.
type CreateActivityInput struct {
	Title           string
	Category        string
	Description     string
	StartTime       time.Time
	EndTime         time.Time
	Location        Location
	CoverURL        string
	MaxParticipants int
	CreatorID       string
	Media           []MediaItem
}

func (in CreateActivityInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return missingField("title")
	}
	if strings.TrimSpace(in.Category) == "" {
		return missingField("category")
	}
	if in.StartTime.IsZero() {
		return missingField("start_time")
	}
	if in.EndTime.IsZero() {
		return missingField("end_time")
	}
	if in.EndTime.Before(in.StartTime) {
		return &ValidationError{Field: "end_time", Reason: "must not precede start_time"}
	}
	if strings.TrimSpace(in.Location.Name) == "" {
		return missingField("location.name")
	}
	if strings.TrimSpace(in.CreatorID) == "" {
		return missingField("creator_id")
	}
	if in.MaxParticipants < 0 {
		return &ValidationError{Field: "max_participants", Reason: "must be >= 0"}
	}
	for _, item := range in.Media {
		if strings.TrimSpace(item.URL) == "" {
			return missingField("media.url")
		}
	}
	return nil
}

// CreateActivity creates the activity, its media references, and the
// creator's participant row in one transaction. The creator counts as
// the first participant.
func (s *Service) CreateActivity(ctx context.Context, input CreateActivityInput) (*Activity, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	activity := Activity{
		ID:               uuid.NewString(),
		Title:            input.Title,
		Category:         input.Category,
		Description:      input.Description,
		StartTime:        input.StartTime.UTC(),
		EndTime:          input.EndTime.UTC(),
		Location:         input.Location,
		CoverURL:         input.CoverURL,
		MaxParticipants:  input.MaxParticipants,
		ParticipantCount: 1,
		Status:           ActivityStatusUpcoming,
		CreatorID:        input.CreatorID,
		CreatedAt:        now,
		Media:            input.Media,
	}

	creator := User{ID: input.CreatorID, CreatedAt: now, UpdatedAt: now}
	if err := s.repo.CreateActivity(ctx, activity, creator); err != nil {
		return nil, err
	}
	return &activity, nil
}

// RegisterParticipant attempts to admit a user into an activity's
// roster. Exactly one of two racers for the last open slot wins; the
// loser observes ErrCapacityExceeded or ErrAlreadyRegistered.
func (s *Service) RegisterParticipant(ctx context.Context, activityID, userID string) (*Participant, error) {
	if strings.TrimSpace(activityID) == "" {
		return nil, missingField("activity_id")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, missingField("user_id")
	}

	participant := Participant{
		ActivityID: activityID,
		UserID:     userID,
		JoinedAt:   time.Now().UTC(),
	}
	if err := s.repo.RegisterParticipant(ctx, participant); err != nil {
		return nil, err
	}
	return &participant, nil
}

// CheckIn marks a registered participant as attended. Repeating a
// successful check-in yields ErrAlreadyCheckedIn, never a second row.
func (s *Service) CheckIn(ctx context.Context, activityID, userID string) (*CheckIn, error) {
	if strings.TrimSpace(activityID) == "" {
		return nil, missingField("activity_id")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, missingField("user_id")
	}

	checkIn := CheckIn{
		ActivityID:  activityID,
		UserID:      userID,
		CheckedInAt: time.Now().UTC(),
	}
	if err := s.repo.CheckIn(ctx, checkIn); err != nil {
		return nil, err
	}
	return &checkIn, nil
}

// GetActivity fetches by ID.
func (s *Service) GetActivity(ctx context.Context, activityID string) (*Activity, error) {
	activity, err := s.repo.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// ListActivities fetches activities with cursor pagination, newest first.
func (s *Service) ListActivities(ctx context.Context, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.ListActivities(ctx, cursor, limit)
}

// ListParticipants returns the roster for an existing activity.
func (s *Service) ListParticipants(ctx context.Context, activityID string) ([]Participant, error) {
	if _, err := s.GetActivity(ctx, activityID); err != nil {
		return nil, err
	}
	return s.repo.ListParticipants(ctx, activityID)
}

// ListCheckIns returns the check-in records for an existing activity.
func (s *Service) ListCheckIns(ctx context.Context, activityID string) ([]CheckIn, error) {
	if _, err := s.GetActivity(ctx, activityID); err != nil {
		return nil, err
	}
	return s.repo.ListCheckIns(ctx, activityID)
}

// Login bootstraps a minimal profile for the identity the external
// login flow resolved, first-write-wins. Returns whether the user was
// newly created.
func (s *Service) Login(ctx context.Context, userID, nickname, avatarURL string) (*User, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, false, missingField("user_id")
	}

	now := time.Now().UTC()
	user := User{
		ID:        userID,
		Nickname:  nickname,
		AvatarURL: avatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.repo.EnsureUser(ctx, user)
	if err != nil {
		return nil, false, err
	}

	stored, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, ErrUserNotFound
	}
	return stored, created, nil
}

// GetUser fetches a profile by ID.
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateUserProfile applies the provided non-empty profile fields.
func (s *Service) UpdateUserProfile(ctx context.Context, userID, nickname, avatarURL string) error {
	if strings.TrimSpace(userID) == "" {
		return missingField("user_id")
	}
	if strings.TrimSpace(nickname) == "" && strings.TrimSpace(avatarURL) == "" {
		return &ValidationError{Field: "profile", Reason: "nothing to update"}
	}

	found, err := s.repo.UpdateUserProfile(ctx, userID, nickname, avatarURL)
	if err != nil {
		return err
	}
	if !found {
		return ErrUserNotFound
	}
	return nil
}

// ListCreatedActivities returns activities the user organises.
func (s *Service) ListCreatedActivities(ctx context.Context, userID string) ([]Activity, error) {
	return s.repo.ListCreatedActivities(ctx, userID)
}

// ListJoinedActivities returns activities the user participates in.
func (s *Service) ListJoinedActivities(ctx context.Context, userID string) ([]Activity, error) {
	return s.repo.ListJoinedActivities(ctx, userID)
}

// CreateCommentInput captures a new comment payload.
type CreateCommentInput struct {
	ActivityID string
	AuthorID   string
	Content    string
}

// CreateComment attaches a comment to an existing activity.
func (s *Service) CreateComment(ctx context.Context, input CreateCommentInput) (*Comment, error) {
	if strings.TrimSpace(input.ActivityID) == "" {
		return nil, missingField("activity_id")
	}
	if strings.TrimSpace(input.AuthorID) == "" {
		return nil, missingField("author_id")
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, missingField("content")
	}

	comment := Comment{
		ID:         uuid.NewString(),
		ActivityID: input.ActivityID,
		AuthorID:   input.AuthorID,
		Content:    input.Content,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// ListComments returns comments for an activity, newest first.
func (s *Service) ListComments(ctx context.Context, activityID string) ([]Comment, error) {
	return s.repo.ListComments(ctx, activityID)
}

// DeleteComment removes a comment on behalf of its author.
func (s *Service) DeleteComment(ctx context.Context, commentID, requesterID string) error {
	if strings.TrimSpace(requesterID) == "" {
		return missingField("user_id")
	}

	comment, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if comment == nil {
		return ErrCommentNotFound
	}
	if comment.AuthorID != requesterID {
		return ErrNotCommentAuthor
	}
	if err := s.repo.DeleteComment(ctx, commentID); err != nil {
		if errors.Is(err, ErrCommentNotFound) {
			// Deleted concurrently; the requested state already holds.
			return nil
		}
		return err
	}
	return nil
}
