package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chathub/internal/mocks"
	"chathub/internal/models"
	"chathub/internal/realtime"
)

type fakeCensus struct {
	users []models.Identity
}

func (f fakeCensus) ConnectedUsers() []models.Identity { return f.users }

func (f fakeCensus) IsOnline(userID string) bool {
	for _, u := range f.users {
		if u.ID == userID {
			return true
		}
	}
	return false
}

type chatFixture struct {
	messages *mocks.MessageRepositoryMock
	groups   *mocks.GroupRepositoryMock
	notifier *mocks.NotifierMock
	router   *gin.Engine
}

func newChatFixture(census fakeCensus) *chatFixture {
	f := &chatFixture{
		messages: new(mocks.MessageRepositoryMock),
		groups:   new(mocks.GroupRepositoryMock),
		notifier: new(mocks.NotifierMock),
	}
	sender := realtime.NewRouter(realtime.NewRegistry(), f.messages, f.groups, f.notifier, nil, 0)
	history := realtime.NewHistory(f.messages, f.groups, 0)
	handler := NewChatHandler(f.messages, f.groups, sender, history, census, nil)
	f.router = setupChatRouter(handler)
	return f
}

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Set("userName", "Alice")
		c.Next()
	})
	r.GET("/chats", handler.ListChats)
	r.GET("/chats/:user_id/messages", handler.GetChatMessages)
	r.POST("/chats/:user_id/messages", handler.PostChatMessage)
	r.GET("/presence", handler.ConnectedUsers)
	return r
}

func TestListChatsSuccess(t *testing.T) {
	f := newChatFixture(fakeCensus{users: []models.Identity{{ID: "u2", Name: "Bob"}}})

	f.messages.On("ListPrivateChats", mock.Anything, "u1").Return([]models.ChatSummary{{ReceiverID: "u2", Name: "Bob", ChatType: models.ChatTypePrivate}}, nil).Once()
	f.groups.On("GetAllGroups", mock.Anything, "u1").Return([]models.Group{{ID: "g1", Name: "team"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Chats []struct {
			ReceiverID string `json:"receiver_id"`
			ChatType   string `json:"chat_type"`
			Online     bool   `json:"online"`
		} `json:"chats"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Chats, 2)
	assert.Equal(t, "u2", resp.Chats[0].ReceiverID)
	assert.True(t, resp.Chats[0].Online)
	assert.Equal(t, "group", resp.Chats[1].ChatType)

	f.messages.AssertExpectations(t)
	f.groups.AssertExpectations(t)
}

func TestListChatsRepoError(t *testing.T) {
	f := newChatFixture(fakeCensus{})

	f.messages.On("ListPrivateChats", mock.Anything, "u1").Return(([]models.ChatSummary)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	f.messages.AssertExpectations(t)
}

func TestGetChatMessagesPassesCursor(t *testing.T) {
	f := newChatFixture(fakeCensus{})

	f.messages.On("QueryPrivate", mock.Anything, "u1", "u2", "m9", realtime.DefaultPageSize).
		Return([]models.Message{{ID: "m1", SenderID: "u1", ReceiverID: "u2"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/u2/messages?before=m9", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)
	f.messages.AssertExpectations(t)
}

func TestPostChatMessageToOfflineUserNotifies(t *testing.T) {
	f := newChatFixture(fakeCensus{})

	f.messages.On("Insert", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.SenderID == "u1" && m.SenderName == "Alice" && m.ReceiverID == "u2" && m.ChatType == models.ChatTypePrivate
	})).Return(models.Message{ID: "m1", ChatType: models.ChatTypePrivate, SenderID: "u1", ReceiverID: "u2", Content: "hi"}, nil).Once()
	f.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.MessageID == "m1" && n.ReceiverID == "u2" && n.SenderID == "u1"
	})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/u2/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	f.messages.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestPostChatMessageToSelfRejected(t *testing.T) {
	f := newChatFixture(fakeCensus{})

	req := httptest.NewRequest(http.MethodPost, "/chats/u1/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	f.messages.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestPostChatMessagePersistenceFailure(t *testing.T) {
	f := newChatFixture(fakeCensus{})

	f.messages.On("Insert", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/u2/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestPostChatMessageInvalidBody(t *testing.T) {
	f := newChatFixture(fakeCensus{})

	req := httptest.NewRequest(http.MethodPost, "/chats/u2/messages", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnectedUsers(t *testing.T) {
	f := newChatFixture(fakeCensus{users: []models.Identity{{ID: "u1", Name: "Alice"}, {ID: "u2", Name: "Bob"}}})

	req := httptest.NewRequest(http.MethodGet, "/presence", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Users []models.Identity `json:"users"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Users, 2)
}
