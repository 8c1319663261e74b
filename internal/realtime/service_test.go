package realtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chathub/internal/mocks"
	"chathub/internal/models"
	"chathub/internal/realtime"
)

type serviceFixture struct {
	registry  *realtime.Registry
	auth      *mocks.AuthenticatorMock
	messages  *mocks.MessageRepositoryMock
	groups    *mocks.GroupRepositoryMock
	notifier  *mocks.NotifierMock
	transport *recordingTransport
	service   *realtime.Service
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		registry:  realtime.NewRegistry(),
		auth:      new(mocks.AuthenticatorMock),
		messages:  new(mocks.MessageRepositoryMock),
		groups:    new(mocks.GroupRepositoryMock),
		notifier:  new(mocks.NotifierMock),
		transport: newRecordingTransport(),
	}
	f.service = realtime.NewService(f.registry, realtime.Deps{
		Auth:      f.auth,
		Groups:    f.groups,
		Messages:  f.messages,
		History:   f.messages,
		Notifier:  f.notifier,
		Transport: f.transport,
	})
	return f
}

func (f *serviceFixture) allowConnect(token string, identity models.Identity, groups []models.Group) {
	f.auth.On("Authenticate", mock.Anything, token).Return(identity, nil)
	f.messages.On("UsersToNotify", mock.Anything, identity.ID, mock.Anything).Return([]string{}, nil)
	f.groups.On("GetAllGroups", mock.Anything, identity.ID).Return(groups, nil)
}

func TestConnectRejectsBadToken(t *testing.T) {
	f := newServiceFixture()
	f.auth.On("Authenticate", mock.Anything, "bad").Return(nil, errors.New("signature mismatch")).Once()

	sess, err := f.service.Connect(context.Background(), "bad", "c1")

	require.ErrorIs(t, err, realtime.ErrUnauthenticated)
	assert.Nil(t, sess)
	assert.Equal(t, 0, f.registry.Len())
	assert.Empty(t, f.transport.deliveries)
}

func TestConnectRejectsEmptyIdentity(t *testing.T) {
	f := newServiceFixture()
	f.auth.On("Authenticate", mock.Anything, "t").Return(models.Identity{}, nil).Once()

	_, err := f.service.Connect(context.Background(), "t", "c1")
	require.ErrorIs(t, err, realtime.ErrUnauthenticated)
	assert.Equal(t, 0, f.registry.Len())
}

func TestConnectSubscribesGroupsAndCloseIsIdempotent(t *testing.T) {
	f := newServiceFixture()
	f.allowConnect("t1", alice, []models.Group{{ID: "g1"}, {ID: "g2"}})
	f.allowConnect("t2", models.Identity{ID: "u2", Name: "Bob"}, nil)
	ctx := context.Background()

	observer, err := f.service.Connect(ctx, "t2", "c2")
	require.NoError(t, err)

	sess, err := f.service.Connect(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, realtime.StateConnected, sess.State())
	assert.Equal(t, "c1", sess.ConnID())
	assert.Equal(t, alice, sess.Identity())
	assert.Equal(t, []string{"g1", "g2"}, f.transport.subscriptions("c1"))
	assert.True(t, f.service.IsOnline("u1"))
	assert.Equal(t, []models.Identity{alice, {ID: "u2", Name: "Bob"}}, sess.ConnectedUsers())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Close(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, realtime.StateDisconnected, sess.State())
	assert.False(t, f.service.IsOnline("u1"))
	offline := f.transport.ofType(models.EventUserDisconnected)
	require.Len(t, offline, 1)
	assert.Equal(t, []string{"c2"}, offline[0].connIDs)

	_, err = sess.Send(ctx, "u2", models.ChatTypePrivate, "late")
	require.ErrorIs(t, err, realtime.ErrSessionClosed)
	f.messages.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)

	observer.Close(ctx)
	assert.Equal(t, 0, f.registry.Len())
}

func TestConnectTearsDownWhenGroupSyncFails(t *testing.T) {
	f := newServiceFixture()
	f.auth.On("Authenticate", mock.Anything, "t1").Return(alice, nil).Once()
	f.messages.On("UsersToNotify", mock.Anything, "u1", mock.Anything).Return([]string{}, nil).Once()
	f.groups.On("GetAllGroups", mock.Anything, "u1").Return(nil, assert.AnError).Once()

	sess, err := f.service.Connect(context.Background(), "t1", "c1")

	require.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, sess)
	assert.False(t, f.registry.IsOnline("u1"))
}

func TestMultiDeviceStaysOnlineUntilLastClose(t *testing.T) {
	f := newServiceFixture()
	f.allowConnect("t1", alice, nil)
	ctx := context.Background()

	phone, err := f.service.Connect(ctx, "t1", "phone")
	require.NoError(t, err)
	laptop, err := f.service.Connect(ctx, "t1", "laptop")
	require.NoError(t, err)
	f.messages.AssertNumberOfCalls(t, "UsersToNotify", 1)

	phone.Close(ctx)
	assert.True(t, f.service.IsOnline("u1"))
	assert.Equal(t, []string{"laptop"}, f.registry.Connections("u1"))

	laptop.Close(ctx)
	assert.False(t, f.service.IsOnline("u1"))
}

func TestSessionSendRoutesToLiveReceiver(t *testing.T) {
	f := newServiceFixture()
	f.allowConnect("t1", alice, nil)
	f.allowConnect("t2", models.Identity{ID: "u2", Name: "Bob"}, nil)
	ctx := context.Background()

	sender, err := f.service.Connect(ctx, "t1", "c1")
	require.NoError(t, err)
	_, err = f.service.Connect(ctx, "t2", "c2")
	require.NoError(t, err)

	f.messages.On("Insert", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.SenderID == "u1" && m.SenderName == "Alice" && m.ReceiverID == "u2"
	})).Return(models.Message{ID: "m1", ChatType: models.ChatTypePrivate, SenderID: "u1", ReceiverID: "u2", Content: "hi"}, nil).Once()

	msg, err := sender.Send(ctx, "u2", models.ChatTypePrivate, "hi")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)

	deliveries := f.transport.ofType(models.EventMessage)
	require.Len(t, deliveries, 1)
	assert.Equal(t, []string{"c2"}, deliveries[0].connIDs)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestSessionStateString(t *testing.T) {
	assert.Equal(t, "connecting", realtime.StateConnecting.String())
	assert.Equal(t, "connected", realtime.StateConnected.String())
	assert.Equal(t, "disconnected", realtime.StateDisconnected.String())
}

func TestConnectSurvivesAudienceLookupFailure(t *testing.T) {
	f := newServiceFixture()
	f.allowConnect("t2", models.Identity{ID: "u2", Name: "Bob"}, nil)
	f.auth.On("Authenticate", mock.Anything, "t1").Return(alice, nil).Once()
	f.messages.On("UsersToNotify", mock.Anything, "u1", mock.Anything).Return(nil, assert.AnError).Once()
	f.groups.On("GetAllGroups", mock.Anything, "u1").Return([]models.Group{}, nil).Once()
	ctx := context.Background()

	_, err := f.service.Connect(ctx, "t2", "c2")
	require.NoError(t, err)

	sess, err := f.service.Connect(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, realtime.StateConnected, sess.State())
	assert.True(t, f.registry.IsOnline("u1"))
	assert.Empty(t, f.transport.ofType(models.EventUserDisconnected))
}
