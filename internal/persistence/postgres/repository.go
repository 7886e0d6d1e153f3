// Package postgres implements the ledger store on PostgreSQL. Every
// write method runs as a single transaction: the checks, the inserts,
// the counter update, and the outbox records commit together or not at
// all.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/eventhub/internal/domain"
	"example.com/eventhub/internal/events"
	"example.com/eventhub/internal/observability"
)

// Repository provides Postgres-backed persistence for activities,
// participants, check-ins, users, comments, and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activityColumns = `activity_id, title, category, description, start_time, end_time,
        location_name, location_address, latitude, longitude, cover_url,
        max_participants, participant_count, status, creator_id, created_at`

// CreateActivity inserts the activity, its media references, a minimal
// creator profile if absent, and the creator's participant row inside
// one transaction.
func (r *Repository) CreateActivity(ctx context.Context, activity domain.Activity, creator domain.User) error {
	start := time.Now()
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	// First-write-wins identity bootstrap for the creator.
	if _, err := tx.Exec(ctx,
		`INSERT INTO users (id, nick_name, avatar_url, created_at, updated_at)
         VALUES ($1,$2,$3,$4,$5) ON CONFLICT (id) DO NOTHING`,
		creator.ID, creator.Nickname, creator.AvatarURL, creator.CreatedAt, creator.UpdatedAt,
	); err != nil {
		return classify(err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO activities (`+activityColumns+`)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		activity.ID, activity.Title, activity.Category, activity.Description,
		activity.StartTime, activity.EndTime,
		activity.Location.Name, activity.Location.Address,
		activity.Location.Latitude, activity.Location.Longitude,
		activity.CoverURL, activity.MaxParticipants, activity.ParticipantCount,
		activity.Status, activity.CreatorID, activity.CreatedAt,
	); err != nil {
		return classify(err)
	}

	for i, item := range activity.Media {
		if _, err := tx.Exec(ctx,
			`INSERT INTO activity_media (activity_id, media_type, url, position)
             VALUES ($1,$2,$3,$4)`,
			activity.ID, item.Type, item.URL, i,
		); err != nil {
			return classify(err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO participants (activity_id, user_id, joined_at) VALUES ($1,$2,$3)`,
		activity.ID, activity.CreatorID, activity.CreatedAt,
	); err != nil {
		return classify(err)
	}

	if err := insertOutbox(ctx, tx, "activity", activity.ID, "activity.created", activity.ID,
		events.ActivityCreated{
			ActivityID:      activity.ID,
			Title:           activity.Title,
			Category:        activity.Category,
			StartTime:       activity.StartTime,
			EndTime:         activity.EndTime,
			MaxParticipants: activity.MaxParticipants,
			CreatorID:       activity.CreatorID,
			CreatedAt:       activity.CreatedAt,
		}); err != nil {
		return classify(err)
	}

	participantKey := fmt.Sprintf("%s:%s", activity.ID, activity.CreatorID)
	if err := insertOutbox(ctx, tx, "participant", participantKey, "participant.registered", activity.ID,
		events.ParticipantRegistered{
			ActivityID:       activity.ID,
			UserID:           activity.CreatorID,
			JoinedAt:         activity.CreatedAt,
			ParticipantCount: activity.ParticipantCount,
		}); err != nil {
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}

	observability.RecordActivityCreated(activity.CreatedAt)
	observability.ObserveLedgerTx("create_activity", time.Since(start))
	return nil
}

// RegisterParticipant admits a user under the capacity ceiling. The
// activity row is locked FOR UPDATE so the existence check, the
// duplicate check, the capacity check, the insert, and the counter
// increment observe one snapshot and commit as one unit. The composite
// primary key on participants backs the duplicate check against races.
// User identifiers are opaque; a minimal profile row is bootstrapped
// for first-time registrants, the same first-write-wins upsert
// CreateActivity performs for the creator.
func (r *Repository) RegisterParticipant(ctx context.Context, participant domain.Participant) error {
	start := time.Now()
	outcome := "error"
	defer func() {
		observability.RecordRegistration(outcome)
		observability.ObserveLedgerTx("register_participant", time.Since(start))
	}()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	var maxParticipants, participantCount int
	err = tx.QueryRow(ctx,
		`SELECT max_participants, participant_count FROM activities
         WHERE activity_id=$1 FOR UPDATE`,
		participant.ActivityID,
	).Scan(&maxParticipants, &participantCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			outcome = "not_found"
			return domain.ErrActivityNotFound
		}
		return classify(err)
	}

	var registered bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM participants WHERE activity_id=$1 AND user_id=$2)`,
		participant.ActivityID, participant.UserID,
	).Scan(&registered); err != nil {
		return classify(err)
	}
	if registered {
		outcome = "already_registered"
		return domain.ErrAlreadyRegistered
	}

	if maxParticipants > 0 && participantCount >= maxParticipants {
		outcome = "capacity_exceeded"
		return domain.ErrCapacityExceeded
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO users (id, created_at, updated_at)
         VALUES ($1,$2,$2) ON CONFLICT (id) DO NOTHING`,
		participant.UserID, participant.JoinedAt,
	); err != nil {
		return classify(err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO participants (activity_id, user_id, joined_at) VALUES ($1,$2,$3)`,
		participant.ActivityID, participant.UserID, participant.JoinedAt,
	); err != nil {
		if isUniqueViolation(err, "participants_pkey") {
			outcome = "already_registered"
			return domain.ErrAlreadyRegistered
		}
		return classify(err)
	}

	var newCount int
	if err := tx.QueryRow(ctx,
		`UPDATE activities SET participant_count = participant_count + 1
         WHERE activity_id=$1 RETURNING participant_count`,
		participant.ActivityID,
	).Scan(&newCount); err != nil {
		return classify(err)
	}

	participantKey := fmt.Sprintf("%s:%s", participant.ActivityID, participant.UserID)
	if err := insertOutbox(ctx, tx, "participant", participantKey, "participant.registered", participant.ActivityID,
		events.ParticipantRegistered{
			ActivityID:       participant.ActivityID,
			UserID:           participant.UserID,
			JoinedAt:         participant.JoinedAt,
			ParticipantCount: newCount,
		}); err != nil {
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	outcome = "admitted"
	return nil
}

// CheckIn records attendance for a registered participant. The
// composite primary key on checkins guarantees at most one row per
// (activity, user) even under concurrent duplicate attempts.
func (r *Repository) CheckIn(ctx context.Context, checkIn domain.CheckIn) error {
	start := time.Now()
	outcome := "error"
	defer func() {
		observability.RecordCheckIn(outcome)
		observability.ObserveLedgerTx("check_in", time.Since(start))
	}()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	var registered bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM participants WHERE activity_id=$1 AND user_id=$2)`,
		checkIn.ActivityID, checkIn.UserID,
	).Scan(&registered); err != nil {
		return classify(err)
	}
	if !registered {
		outcome = "not_registered"
		return domain.ErrNotRegistered
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO checkins (activity_id, user_id, checked_in_at) VALUES ($1,$2,$3)`,
		checkIn.ActivityID, checkIn.UserID, checkIn.CheckedInAt,
	); err != nil {
		if isUniqueViolation(err, "checkins_pkey") {
			outcome = "already_checked_in"
			return domain.ErrAlreadyCheckedIn
		}
		return classify(err)
	}

	participantKey := fmt.Sprintf("%s:%s", checkIn.ActivityID, checkIn.UserID)
	if err := insertOutbox(ctx, tx, "participant", participantKey, "participant.checked_in", checkIn.ActivityID,
		events.ParticipantCheckedIn{
			ActivityID:  checkIn.ActivityID,
			UserID:      checkIn.UserID,
			CheckedInAt: checkIn.CheckedInAt,
		}); err != nil {
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	outcome = "admitted"
	return nil
}

// GetActivity retrieves an activity with its media references. Returns
// nil without error when the activity does not exist.
func (r *Repository) GetActivity(ctx context.Context, activityID string) (*domain.Activity, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE activity_id=$1`, activityID)

	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT media_type, url FROM activity_media WHERE activity_id=$1 ORDER BY position`,
		activityID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.MediaItem
		if err := rows.Scan(&item.Type, &item.URL); err != nil {
			return nil, classify(err)
		}
		activity.Media = append(activity.Media, item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return activity, nil
}

// ListActivities returns activities ordered newest first with cursor
// pagination.
func (r *Repository) ListActivities(ctx context.Context, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{limit}
	query := `SELECT ` + activityColumns + ` FROM activities`
	if cursor != nil {
		query += ` WHERE (created_at, activity_id) < ($2, $3)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += ` ORDER BY created_at DESC, activity_id DESC LIMIT $1`

	activities, err := r.queryActivities(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(activities) == limit {
		last := activities[len(activities)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return activities, next, nil
}

// ListParticipants returns the roster ordered by join time.
func (r *Repository) ListParticipants(ctx context.Context, activityID string) ([]domain.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT activity_id, user_id, joined_at FROM participants
         WHERE activity_id=$1 ORDER BY joined_at`, activityID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	participants := make([]domain.Participant, 0)
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ActivityID, &p.UserID, &p.JoinedAt); err != nil {
			return nil, classify(err)
		}
		participants = append(participants, p)
	}
	return participants, classify(rows.Err())
}

// ListCheckIns returns check-in records ordered by check-in time.
func (r *Repository) ListCheckIns(ctx context.Context, activityID string) ([]domain.CheckIn, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT activity_id, user_id, checked_in_at FROM checkins
         WHERE activity_id=$1 ORDER BY checked_in_at`, activityID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	checkIns := make([]domain.CheckIn, 0)
	for rows.Next() {
		var c domain.CheckIn
		if err := rows.Scan(&c.ActivityID, &c.UserID, &c.CheckedInAt); err != nil {
			return nil, classify(err)
		}
		checkIns = append(checkIns, c)
	}
	return checkIns, classify(rows.Err())
}

// EnsureUser inserts a minimal profile unless one exists. Reports
// whether a row was created.
func (r *Repository) EnsureUser(ctx context.Context, user domain.User) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, nick_name, avatar_url, created_at, updated_at)
         VALUES ($1,$2,$3,$4,$5) ON CONFLICT (id) DO NOTHING`,
		user.ID, user.Nickname, user.AvatarURL, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return false, classify(err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetUser retrieves a profile. Returns nil without error when absent.
func (r *Repository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, nick_name, avatar_url, created_at, updated_at FROM users WHERE id=$1`,
		userID,
	).Scan(&user.ID, &user.Nickname, &user.AvatarURL, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return &user, nil
}

// UpdateUserProfile applies non-empty fields. Reports whether the user
// exists.
func (r *Repository) UpdateUserProfile(ctx context.Context, userID, nickname, avatarURL string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET
            nick_name  = COALESCE(NULLIF($2,''), nick_name),
            avatar_url = COALESCE(NULLIF($3,''), avatar_url),
            updated_at = NOW()
         WHERE id=$1`,
		userID, nickname, avatarURL)
	if err != nil {
		return false, classify(err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListCreatedActivities returns activities organised by the user.
func (r *Repository) ListCreatedActivities(ctx context.Context, userID string) ([]domain.Activity, error) {
	return r.queryActivities(ctx,
		`SELECT `+activityColumns+` FROM activities
         WHERE creator_id=$1 ORDER BY created_at DESC`, userID)
}

// ListJoinedActivities returns activities the user is registered for.
func (r *Repository) ListJoinedActivities(ctx context.Context, userID string) ([]domain.Activity, error) {
	return r.queryActivities(ctx,
		`SELECT `+activityColumns+` FROM activities a
         JOIN participants p ON p.activity_id = a.activity_id
         WHERE p.user_id=$1 ORDER BY a.created_at DESC`, userID)
}

// CreateComment inserts a comment. The foreign keys surface a missing
// activity or an unknown author as the matching typed error.
func (r *Repository) CreateComment(ctx context.Context, comment domain.Comment) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO comments (comment_id, activity_id, author_id, content, created_at)
         VALUES ($1,$2,$3,$4,$5)`,
		comment.ID, comment.ActivityID, comment.AuthorID, comment.Content, comment.CreatedAt)
	if err != nil {
		switch {
		case isForeignKeyViolation(err, "comments_activity_fkey"):
			return domain.ErrActivityNotFound
		case isForeignKeyViolation(err, "comments_author_fkey"):
			return domain.ErrUserNotFound
		}
		return classify(err)
	}
	return nil
}

// GetComment retrieves a comment. Returns nil without error when absent.
func (r *Repository) GetComment(ctx context.Context, commentID string) (*domain.Comment, error) {
	var comment domain.Comment
	err := r.pool.QueryRow(ctx,
		`SELECT comment_id, activity_id, author_id, content, created_at
         FROM comments WHERE comment_id=$1`, commentID,
	).Scan(&comment.ID, &comment.ActivityID, &comment.AuthorID, &comment.Content, &comment.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return &comment, nil
}

// ListComments returns comments for an activity, newest first.
func (r *Repository) ListComments(ctx context.Context, activityID string) ([]domain.Comment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT comment_id, activity_id, author_id, content, created_at
         FROM comments WHERE activity_id=$1 ORDER BY created_at DESC, comment_id DESC`,
		activityID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	comments := make([]domain.Comment, 0)
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.ActivityID, &c.AuthorID, &c.Content, &c.CreatedAt); err != nil {
			return nil, classify(err)
		}
		comments = append(comments, c)
	}
	return comments, classify(rows.Err())
}

// DeleteComment removes a comment by ID.
func (r *Repository) DeleteComment(ctx context.Context, commentID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM comments WHERE comment_id=$1`, commentID)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCommentNotFound
	}
	return nil
}

func (r *Repository) queryActivities(ctx context.Context, query string, args ...interface{}) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	activities := make([]domain.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, classify(err)
		}
		activities = append(activities, *activity)
	}
	return activities, classify(rows.Err())
}

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var activity domain.Activity
	err := row.Scan(
		&activity.ID, &activity.Title, &activity.Category, &activity.Description,
		&activity.StartTime, &activity.EndTime,
		&activity.Location.Name, &activity.Location.Address,
		&activity.Location.Latitude, &activity.Location.Longitude,
		&activity.CoverURL, &activity.MaxParticipants, &activity.ParticipantCount,
		&activity.Status, &activity.CreatorID, &activity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, eventType, partitionKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		aggregateType, aggregateID, eventType, meta.Topic, meta.SchemaSubject,
		partitionKey, body, dedupeKey)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"activity.created": {
		Topic:         "activity_events",
		SchemaSubject: "activity_events-value",
	},
	"participant.registered": {
		Topic:         "participant_events",
		SchemaSubject: "participant_events-value",
	},
	"participant.checked_in": {
		Topic:         "participant_events",
		SchemaSubject: "participant_events-value",
	},
}

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrSerializationFail   = "40001"
	pgErrDeadlockDetected    = "40P01"
	pgErrLockNotAvailable    = "55P03"
	pgErrQueryCanceled       = "57014"
)

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgErrUniqueViolation &&
		pgErr.ConstraintName == constraint
}

func isForeignKeyViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgErrForeignKeyViolation &&
		pgErr.ConstraintName == constraint
}

// classify maps storage-level failures that are safe to retry onto
// domain.TransientError and passes everything else through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TransientError{Cause: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrSerializationFail, pgErrDeadlockDetected, pgErrLockNotAvailable, pgErrQueryCanceled:
			return &domain.TransientError{Cause: err}
		}
	}
	if pgconn.Timeout(err) {
		return &domain.TransientError{Cause: err}
	}
	return err
}
