//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/eventhub/internal/domain"
)

func newActivity(creatorID string, maxParticipants int) domain.Activity {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Activity{
		ID:               uuid.NewString(),
		Title:            "Morning Ride",
		Category:         "cycling",
		Description:      "40km loop around the lake.",
		StartTime:        now.Add(24 * time.Hour),
		EndTime:          now.Add(27 * time.Hour),
		Location:         domain.Location{Name: "Lakeside Gate"},
		MaxParticipants:  maxParticipants,
		ParticipantCount: 1,
		Status:           domain.ActivityStatusUpcoming,
		CreatorID:        creatorID,
		CreatedAt:        now,
	}
}

func seedUser(t *testing.T, ctx context.Context, repo *Repository, id string) {
	t.Helper()
	now := time.Now().UTC()
	_, err := repo.EnsureUser(ctx, domain.User{ID: id, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
}

func TestCreateActivityPersistsLedgerAtomically(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()
	repo := NewRepository(pool)

	creatorID := uuid.NewString()
	activity := newActivity(creatorID, 10)
	activity.Media = []domain.MediaItem{
		{Type: "image", URL: "https://cdn.example.com/a.jpg"},
		{Type: "video", URL: "https://cdn.example.com/a.mp4"},
	}
	creator := domain.User{ID: creatorID, CreatedAt: activity.CreatedAt, UpdatedAt: activity.CreatedAt}

	require.NoError(t, repo.CreateActivity(ctx, activity, creator))

	stored, err := repo.GetActivity(ctx, activity.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, 1, stored.ParticipantCount, "creator counts as the first participant")
	require.Equal(t, domain.ActivityStatusUpcoming, stored.Status)
	require.Len(t, stored.Media, 2)
	require.Equal(t, "https://cdn.example.com/a.jpg", stored.Media[0].URL)

	participants, err := repo.ListParticipants(ctx, activity.ID)
	require.NoError(t, err)
	require.Len(t, participants, 1)
	require.Equal(t, creatorID, participants[0].UserID)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE partition_key = $1`, activity.ID).Scan(&outboxRows))
	require.Equal(t, 2, outboxRows, "activity.created and participant.registered must be staged")
}

func TestCreateActivityRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()
	repo := NewRepository(pool)

	firstCreator := uuid.NewString()
	activity := newActivity(firstCreator, 10)
	activity.Media = []domain.MediaItem{{Type: "image", URL: "https://cdn.example.com/a.jpg"}}
	now := activity.CreatedAt
	require.NoError(t, repo.CreateActivity(ctx, activity,
		domain.User{ID: firstCreator, CreatedAt: now, UpdatedAt: now}))

	// Reusing the primary key forces the activity insert to fail after
	// the second creator's user row has already been written in the same
	// transaction.
	secondCreator := uuid.NewString()
	duplicate := activity
	duplicate.CreatorID = secondCreator
	duplicate.Media = []domain.MediaItem{{Type: "image", URL: "https://cdn.example.com/b.jpg"}}
	err := repo.CreateActivity(ctx, duplicate,
		domain.User{ID: secondCreator, CreatedAt: now, UpdatedAt: now})
	require.Error(t, err)

	var secondUserExists bool
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, secondCreator).Scan(&secondUserExists))
	require.False(t, secondUserExists, "failed creation must leave no partial rows")

	var mediaCount int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM activity_media WHERE activity_id = $1`, activity.ID).Scan(&mediaCount))
	require.Equal(t, 1, mediaCount)

	participants, err := repo.ListParticipants(ctx, activity.ID)
	require.NoError(t, err)
	require.Len(t, participants, 1)
}

func TestRegisterParticipantUnknownActivity(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()
	repo := NewRepository(pool)

	err := repo.RegisterParticipant(ctx, domain.Participant{
		ActivityID: uuid.NewString(),
		UserID:     uuid.NewString(),
		JoinedAt:   time.Now().UTC(),
	})
	require.ErrorIs(t, err, domain.ErrActivityNotFound)
}

func TestRegisterParticipantBootstrapsUnknownUser(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()
	repo := NewRepository(pool)

	creatorID := uuid.NewString()
	activity := newActivity(creatorID, 0)
	now := activity.CreatedAt
	require.NoError(t, repo.CreateActivity(ctx, activity,
		domain.User{ID: creatorID, CreatedAt: now, UpdatedAt: now}))

	// No profile row exists for this identifier; registration must admit
	// it and bootstrap the row in the same transaction.
	userID := uuid.NewString()
	require.NoError(t, repo.RegisterParticipant(ctx, domain.Participant{
		ActivityID: activity.ID,
		UserID:     userID,
		JoinedAt:   time.Now().UTC(),
	}))

	user, err := repo.GetUser(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, user, "first registration must create a minimal profile")

	stored, err := repo.GetActivity(ctx, activity.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.ParticipantCount)
}

func TestRegistrationCapacityRace(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()
	repo := NewRepository(pool)

	creatorID := uuid.NewString()
	activity := newActivity(creatorID, 5)
	now := activity.CreatedAt
	require.NoError(t, repo.CreateActivity(ctx, activity,
		domain.User{ID: creatorID, CreatedAt: now, UpdatedAt: now}))

	const contenders = 12
	userIDs := make([]string, contenders)
	for i := range userIDs {
		userIDs[i] = uuid.NewString()
		seedUser(t, ctx, repo, userIDs[i])
	}

	var wg sync.WaitGroup
	results := make([]error, contenders)
	for i, userID := range userIDs {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			results[i] = repo.RegisterParticipant(ctx, domain.Participant{
				ActivityID: activity.ID,
				UserID:     userID,
				JoinedAt:   time.Now().UTC(),
			})
		}(i, userID)
	}
	wg.Wait()

	var admitted, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, domain.ErrCapacityExceeded):
			rejected++
		default:
			t.Fatalf("unexpected registration error: %v", err)
		}
	}
	require.Equal(t, 4, admitted, "creator holds one of the five slots")
	require.Equal(t, contenders-4, rejected)

	stored, err := repo.GetActivity(ctx, activity.ID)
	require.NoError(t, err)
	require.Equal(t, 5, stored.ParticipantCount)

	participants, err := repo.ListParticipants(ctx, activity.ID)
	require.NoError(t, err)
	require.Len(t, participants, 5, "counter must equal the roster size")
}

func TestLastSlotRace(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()
	repo := NewRepository(pool)

	creatorID := uuid.NewString()
	activity := newActivity(creatorID, 2)
	now := activity.CreatedAt
	require.NoError(t, repo.CreateActivity(ctx, activity,
		domain.User{ID: creatorID, CreatedAt: now, UpdatedAt: now}))

	userA := uuid.NewString()
	userB := uuid.NewString()
	seedUser(t, ctx, repo, userA)
	seedUser(t, ctx, repo, userB)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, userID := range []string{userA, userB} {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			errs[i] = repo.RegisterParticipant(ctx, domain.Participant{
				ActivityID: activity.ID,
				UserID:     userID,
				JoinedAt:   time.Now().UTC(),
			})
		}(i, userID)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, domain.ErrCapacityExceeded)
		}
	}
	require.Equal(t, 1, winners, "exactly one racer wins the last slot")

	stored, err := repo.GetActivity(ctx, activity.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.ParticipantCount)
}

func TestDuplicateRegistrationConcurrent(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()
	repo := NewRepository(pool)

	creatorID := uuid.NewString()
	activity := newActivity(creatorID, 0)
	now := activity.CreatedAt
	require.NoError(t, repo.CreateActivity(ctx, activity,
		domain.User{ID: creatorID, CreatedAt: now, UpdatedAt: now}))

	userID := uuid.NewString()
	seedUser(t, ctx, repo, userID)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.RegisterParticipant(ctx, domain.Participant{
				ActivityID: activity.ID,
				UserID:     userID,
				JoinedAt:   time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, domain.ErrAlreadyRegistered)
		}
	}
	require.Equal(t, 1, winners)

	stored, err := repo.GetActivity(ctx, activity.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.ParticipantCount, "duplicate attempts must not inflate the counter")
}

func TestCheckInLifecycle(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()
	repo := NewRepository(pool)

	creatorID := uuid.NewString()
	activity := newActivity(creatorID, 0)
	now := activity.CreatedAt
	require.NoError(t, repo.CreateActivity(ctx, activity,
		domain.User{ID: creatorID, CreatedAt: now, UpdatedAt: now}))

	stranger := uuid.NewString()
	seedUser(t, ctx, repo, stranger)
	err := repo.CheckIn(ctx, domain.CheckIn{
		ActivityID:  activity.ID,
		UserID:      stranger,
		CheckedInAt: time.Now().UTC(),
	})
	require.ErrorIs(t, err, domain.ErrNotRegistered)

	userID := uuid.NewString()
	seedUser(t, ctx, repo, userID)
	require.NoError(t, repo.RegisterParticipant(ctx, domain.Participant{
		ActivityID: activity.ID,
		UserID:     userID,
		JoinedAt:   time.Now().UTC(),
	}))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.CheckIn(ctx, domain.CheckIn{
				ActivityID:  activity.ID,
				UserID:      userID,
				CheckedInAt: time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, domain.ErrAlreadyCheckedIn)
		}
	}
	require.Equal(t, 1, winners, "concurrent duplicate check-ins yield one record")

	checkIns, err := repo.ListCheckIns(ctx, activity.ID)
	require.NoError(t, err)
	require.Len(t, checkIns, 1)
	require.Equal(t, userID, checkIns[0].UserID)
}

func TestListActivitiesPagination(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()
	repo := NewRepository(pool)

	creatorID := uuid.NewString()
	ids := make(map[string]bool)
	for i := 0; i < 3; i++ {
		activity := newActivity(creatorID, 0)
		activity.CreatedAt = activity.CreatedAt.Add(time.Duration(i) * time.Second)
		now := activity.CreatedAt
		require.NoError(t, repo.CreateActivity(ctx, activity,
			domain.User{ID: creatorID, CreatedAt: now, UpdatedAt: now}))
		ids[activity.ID] = true
	}

	first, cursor, err := repo.ListActivities(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotNil(t, cursor)

	second, _, err := repo.ListActivities(ctx, cursor, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)

	seen := make(map[string]bool)
	for _, activity := range append(first, second...) {
		require.False(t, seen[activity.ID], "pages must not overlap")
		seen[activity.ID] = true
		require.True(t, ids[activity.ID])
	}
}

func TestUserProfileLifecycle(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()
	repo := NewRepository(pool)

	userID := uuid.NewString()
	now := time.Now().UTC()
	created, err := repo.EnsureUser(ctx, domain.User{
		ID: userID, Nickname: "Sam", AvatarURL: "https://cdn.example.com/sam.png",
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	require.True(t, created)

	created, err = repo.EnsureUser(ctx, domain.User{
		ID: userID, Nickname: "Other", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	require.False(t, created, "first write wins")

	found, err := repo.UpdateUserProfile(ctx, userID, "Sammy", "")
	require.NoError(t, err)
	require.True(t, found)

	user, err := repo.GetUser(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, "Sammy", user.Nickname)
	require.Equal(t, "https://cdn.example.com/sam.png", user.AvatarURL, "empty fields are left untouched")

	found, err = repo.UpdateUserProfile(ctx, uuid.NewString(), "Nobody", "")
	require.NoError(t, err)
	require.False(t, found)
}

func TestCommentLifecycle(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()
	repo := NewRepository(pool)

	creatorID := uuid.NewString()
	activity := newActivity(creatorID, 0)
	now := activity.CreatedAt
	require.NoError(t, repo.CreateActivity(ctx, activity,
		domain.User{ID: creatorID, CreatedAt: now, UpdatedAt: now}))

	err := repo.CreateComment(ctx, domain.Comment{
		ID:         uuid.NewString(),
		ActivityID: uuid.NewString(),
		AuthorID:   creatorID,
		Content:    "orphan",
		CreatedAt:  time.Now().UTC(),
	})
	require.ErrorIs(t, err, domain.ErrActivityNotFound)

	err = repo.CreateComment(ctx, domain.Comment{
		ID:         uuid.NewString(),
		ActivityID: activity.ID,
		AuthorID:   uuid.NewString(),
		Content:    "ghost author",
		CreatedAt:  time.Now().UTC(),
	})
	require.ErrorIs(t, err, domain.ErrUserNotFound, "unknown author must not masquerade as a missing activity")

	comment := domain.Comment{
		ID:         uuid.NewString(),
		ActivityID: activity.ID,
		AuthorID:   creatorID,
		Content:    "see you there",
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.CreateComment(ctx, comment))

	comments, err := repo.ListComments(ctx, activity.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.Equal(t, "see you there", comments[0].Content)

	require.NoError(t, repo.DeleteComment(ctx, comment.ID))
	require.ErrorIs(t, repo.DeleteComment(ctx, comment.ID), domain.ErrCommentNotFound)
}

func TestJoinedAndCreatedActivityViews(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()
	repo := NewRepository(pool)

	creatorID := uuid.NewString()
	activity := newActivity(creatorID, 0)
	now := activity.CreatedAt
	require.NoError(t, repo.CreateActivity(ctx, activity,
		domain.User{ID: creatorID, CreatedAt: now, UpdatedAt: now}))

	memberID := uuid.NewString()
	seedUser(t, ctx, repo, memberID)
	require.NoError(t, repo.RegisterParticipant(ctx, domain.Participant{
		ActivityID: activity.ID,
		UserID:     memberID,
		JoinedAt:   time.Now().UTC(),
	}))

	created, err := repo.ListCreatedActivities(ctx, creatorID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.Equal(t, activity.ID, created[0].ID)

	joined, err := repo.ListJoinedActivities(ctx, memberID)
	require.NoError(t, err)
	require.Len(t, joined, 1)
	require.Equal(t, activity.ID, joined[0].ID)

	joinedByCreator, err := repo.ListJoinedActivities(ctx, creatorID)
	require.NoError(t, err)
	require.Len(t, joinedByCreator, 1, "creator is registered automatically")
}

func setupPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("eventhub"),
		postgrescontainer.WithUsername("eventhub"),
		postgrescontainer.WithPassword("eventhub"),
	)
	require.NoError(t, err)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pg.Terminate(ctx)
	}
	return pool, cleanup
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	t.Helper()

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	migrationsDir := resolvePath(t, "../../../db/postgres/migrations")
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "expected at least one migration .up.sql file")

	sort.Strings(files)

	for _, file := range files {
		contents, readErr := os.ReadFile(file)
		require.NoErrorf(t, readErr, "read migration %s", file)

		if _, execErr := pool.Exec(ctx, string(contents)); execErr != nil {
			require.NoErrorf(t, execErr, "execute migration %s", file)
		}
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
