package realtime_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chathub/internal/mocks"
	"chathub/internal/models"
	"chathub/internal/realtime"
)

func TestHistoryPrivate(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	history := realtime.NewHistory(messages, new(mocks.GroupRepositoryMock), 20)

	messages.On("QueryPrivate", mock.Anything, "u1", "u2", "m5", 20).Return([]models.Message{{ID: "m4"}}, nil).Once()

	msgs, err := history.Private(context.Background(), "u1", "u2", "m5")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	_, err = history.Private(context.Background(), "u1", "", "")
	assert.ErrorIs(t, err, realtime.ErrInvalidMessage)
	messages.AssertExpectations(t)
}

func TestHistoryGroupChecksAccess(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	groups := new(mocks.GroupRepositoryMock)
	history := realtime.NewHistory(messages, groups, 0)
	ctx := context.Background()

	groups.On("GetGroup", mock.Anything, "g1").Return(models.Group{ID: "g1"}, nil)
	groups.On("UserHasAccessToGroup", mock.Anything, "u1", "g1").Return(true, nil).Once()
	groups.On("UserHasAccessToGroup", mock.Anything, "u9", "g1").Return(false, nil).Once()
	groups.On("GetGroup", mock.Anything, "nope").Return(nil, realtime.ErrNotFound).Once()
	messages.On("QueryGroup", mock.Anything, "g1", "", realtime.DefaultPageSize).Return([]models.Message{{ID: "m1"}}, nil).Once()

	msgs, err := history.Group(ctx, "u1", "g1", "")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	_, err = history.Group(ctx, "u9", "g1", "")
	assert.ErrorIs(t, err, realtime.ErrAccessDenied)

	_, err = history.Group(ctx, "u1", "nope", "")
	assert.ErrorIs(t, err, realtime.ErrNotFound)

	messages.AssertNumberOfCalls(t, "QueryGroup", 1)
}
