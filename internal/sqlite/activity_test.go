package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/dungeonmind/coordinator/internal/domain/activity"
	"github.com/stretchr/testify/require"
)

func TestActivityRepository_LogList(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	repo := NewActivityRepository(db)
	sessionID := "s1"
	entry1 := &activity.ActivityEntry{
		ProjectID:    "p1",
		SessionID:    &sessionID,
		Tool:         "cardgenerator",
		ActivityType: activity.TypeProjectCreated,
		Summary:      "Created project",
		Details:      `{"id":"p1"}`,
	}
	entry2 := &activity.ActivityEntry{
		ProjectID:    "p1",
		Tool:         "cardgenerator",
		ActivityType: activity.TypeProjectOpened,
		Summary:      "Opened project",
	}

	require.NoError(t, repo.Log(ctx, "user1", entry1))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, repo.Log(ctx, "user1", entry2))
	require.NotZero(t, entry1.ID)
	require.Equal(t, "user1", entry1.UserID)

	entries, err := repo.List(ctx, "user1", activity.ListActivityOptions{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, entry2.ActivityType, entries[0].ActivityType)
	require.Equal(t, entry1.ActivityType, entries[1].ActivityType)
	require.NotNil(t, entries[1].SessionID)
	require.Equal(t, "s1", *entries[1].SessionID)
	require.Nil(t, entries[0].SessionID)
}

func TestActivityRepository_FiltersAndUserIsolation(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	repo := NewActivityRepository(db)
	require.NoError(t, repo.Log(ctx, "user1", &activity.ActivityEntry{ProjectID: "p1", Tool: "cardgenerator", ActivityType: activity.TypeProjectCreated, Summary: "a"}))
	require.NoError(t, repo.Log(ctx, "user1", &activity.ActivityEntry{ProjectID: "p2", Tool: "storegenerator", ActivityType: activity.TypeProjectDeleted, Summary: "b"}))
	require.NoError(t, repo.Log(ctx, "user2", &activity.ActivityEntry{ProjectID: "p3", Tool: "cardgenerator", ActivityType: activity.TypeProjectCreated, Summary: "c"}))

	entries, err := repo.List(ctx, "user1", activity.ListActivityOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = repo.List(ctx, "user1", activity.ListActivityOptions{Tool: "storegenerator"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "p2", entries[0].ProjectID)

	typ := activity.TypeProjectCreated
	entries, err = repo.List(ctx, "user1", activity.ListActivityOptions{ActivityType: &typ})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "p1", entries[0].ProjectID)

	entries, err = repo.List(ctx, "user1", activity.ListActivityOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = repo.List(ctx, "nobody", activity.ListActivityOptions{})
	require.NoError(t, err)
	require.Empty(t, entries)
}
