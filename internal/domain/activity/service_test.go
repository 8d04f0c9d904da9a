package activity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dungeonmind/coordinator/internal/domain/activity"
	"github.com/dungeonmind/coordinator/internal/repository/mocks"
	"github.com/stretchr/testify/require"
)

func TestActivityService_LogAndList(t *testing.T) {
	ctx := context.Background()
	userID := "user1"

	repo := &mocks.ActivityRepository{}
	entry := &activity.ActivityEntry{
		ProjectID:    "proj1",
		Tool:         "cardgenerator",
		ActivityType: activity.TypeProjectCreated,
		Summary:      "created",
	}

	repo.On("Log", ctx, userID, entry).Return(nil)
	repo.On("List", ctx, userID, activity.ListActivityOptions{ProjectID: "proj1", Limit: activity.DefaultLimit}).
		Return([]activity.ActivityEntry(nil), nil)

	svc := activity.NewService(repo, nil)
	require.NoError(t, svc.LogActivity(ctx, userID, entry))
	require.False(t, entry.CreatedAt.IsZero())

	entries, err := svc.GetRecentActivity(ctx, userID, activity.ListActivityOptions{ProjectID: "proj1"})
	require.NoError(t, err)
	require.NotNil(t, entries)
	require.Empty(t, entries)
	repo.AssertExpectations(t)
}

func TestActivityService_Validation(t *testing.T) {
	ctx := context.Background()
	svc := activity.NewService(&mocks.ActivityRepository{}, nil)

	require.ErrorIs(t, svc.LogActivity(ctx, "user1", nil), activity.ErrInvalidInput)
	require.ErrorIs(t, svc.LogActivity(ctx, "", &activity.ActivityEntry{ActivityType: activity.TypeProjectOpened}), activity.ErrInvalidInput)
	_, err := svc.GetRecentActivity(ctx, "", activity.ListActivityOptions{})
	require.ErrorIs(t, err, activity.ErrInvalidInput)
}

func TestActivityService_RepoError(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.ActivityRepository{}
	boom := errors.New("disk full")
	repo.On("List", ctx, "user1", activity.ListActivityOptions{Limit: 5}).Return(nil, boom)

	svc := activity.NewService(repo, nil)
	_, err := svc.GetRecentActivity(ctx, "user1", activity.ListActivityOptions{Limit: 5})
	require.ErrorIs(t, err, boom)
}
