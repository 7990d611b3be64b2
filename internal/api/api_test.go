package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Tyrowin/relaychat/internal/api"
	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/Tyrowin/relaychat/internal/mocks"
	"github.com/Tyrowin/relaychat/internal/store"
	"github.com/Tyrowin/relaychat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type apiFixture struct {
	t          *testing.T
	server     *httptest.Server
	store      *store.Store
	dispatcher *mocks.MockDispatcher
}

func newFixture(t *testing.T) *apiFixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for _, u := range []domain.User{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}, {ID: 3, Username: "carol"}} {
		require.NoError(t, s.UpsertUser(context.Background(), u))
	}

	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)

	validator, err := auth.NewHS256Validator(testutil.Secret)
	require.NoError(t, err)

	h := api.NewHandler(s, dispatcher, testutil.Logger())
	ts := httptest.NewServer(api.NewRouter(h, validator, []string{"*"}))
	t.Cleanup(ts.Close)

	return &apiFixture{t: t, server: ts, store: s, dispatcher: dispatcher}
}

func (f *apiFixture) do(method, path string, userID domain.UserID, body any, out any) int {
	f.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+testutil.Token(f.t, userID))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *apiFixture) privateConversation(a, b domain.UserID) domain.Conversation {
	f.t.Helper()
	c, err := f.store.CreateConversation(context.Background(), store.NewConversation{
		Kind: domain.KindPrivate, CreatorID: a, ParticipantIDs: []domain.UserID{b},
	})
	require.NoError(f.t, err)
	return c
}

func TestAPI_RequiresCredential(t *testing.T) {
	f := newFixture(t)

	var body map[string]any
	status := f.do(http.MethodGet, "/conversations", 0, nil, &body)
	require.Equal(t, http.StatusUnauthorized, status)
	require.EqualValues(t, http.StatusUnauthorized, body["code"])
}

func TestAPI_CreateConversation(t *testing.T) {
	f := newFixture(t)

	var c domain.Conversation
	status := f.do(http.MethodPost, "/conversations", 1, map[string]any{"participantIds": []int{2}}, &c)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, []domain.UserID{1, 2}, c.ParticipantIDs)
	require.Equal(t, []domain.UserID{2}, c.Pending)

	var again domain.Conversation
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/conversations", 2, map[string]any{"participantIds": []int{1}}, &again))
	require.Equal(t, c.ID, again.ID)

	var accepted domain.Conversation
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/conversations/"+c.ID+"/accept", 2, nil, &accepted))
	require.Empty(t, accepted.Pending)

	require.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/conversations", 1, map[string]any{"participantIds": []int{}}, nil))
	require.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/conversations/"+c.ID, 3, nil, nil))
	require.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/conversations/missing", 1, nil, nil))
}

func TestAPI_CreateGroupInvitesParticipants(t *testing.T) {
	f := newFixture(t)

	var invited []domain.UserID
	f.dispatcher.EXPECT().
		DispatchNotification(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n domain.Notification) (int, error) {
			assert.Equal(t, domain.NotificationGroupInvite, n.Type)
			invited = append(invited, n.RecipientID)
			return 0, nil
		}).
		Times(2)

	var c domain.Conversation
	status := f.do(http.MethodPost, "/conversations", 1, map[string]any{"participantIds": []int{2, 3}, "isGroup": true, "name": "team"}, &c)
	require.Equal(t, http.StatusCreated, status)
	require.True(t, c.IsGroup)
	require.ElementsMatch(t, []domain.UserID{2, 3}, invited)
}

func TestAPI_SendMessagePersistsThenDispatches(t *testing.T) {
	f := newFixture(t)
	c := f.privateConversation(1, 2)

	var pushed domain.Message
	dispatched := f.dispatcher.EXPECT().
		DispatchMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, msg domain.Message) (int, error) {
			stored, err := f.store.ListMessages(ctx, msg.ConversationID)
			if !assert.NoError(t, err) {
				return 0, err
			}
			assert.Len(t, stored, 1, "dispatch happens after the write is committed")
			pushed = msg
			return 2, nil
		})
	f.dispatcher.EXPECT().
		DispatchNotification(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n domain.Notification) (int, error) {
			assert.Equal(t, domain.UserID(2), n.RecipientID)
			assert.Equal(t, domain.NotificationNewMessage, n.Type)
			assert.Equal(t, "New message", n.Title)
			assert.Equal(t, "alice: hi", n.Content)
			assert.Equal(t, c.ID, n.RelatedID)
			assert.False(t, n.IsRead)
			return 0, nil
		}).
		After(dispatched)

	var msg domain.Message
	status := f.do(http.MethodPost, "/conversations/messages", 1, map[string]any{
		"conversationId": c.ID, "content": "  hi  ", "clientMessageId": "corr-1",
	}, &msg)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "hi", msg.Content)
	require.Equal(t, "corr-1", msg.ClientMessageID)
	require.Equal(t, domain.UserID(1), msg.SenderID)
	require.Equal(t, msg.ID, pushed.ID)
	require.Equal(t, "corr-1", pushed.ClientMessageID)
}

func TestAPI_SendMessageRejections(t *testing.T) {
	f := newFixture(t)
	c := f.privateConversation(1, 2)

	tests := []struct {
		name   string
		sender domain.UserID
		body   map[string]any
		status int
	}{
		{name: "missing content", sender: 1, body: map[string]any{"conversationId": c.ID, "content": "   "}, status: http.StatusBadRequest},
		{name: "missing conversation id", sender: 1, body: map[string]any{"content": "hi"}, status: http.StatusBadRequest},
		{name: "not a participant", sender: 3, body: map[string]any{"conversationId": c.ID, "content": "hi"}, status: http.StatusForbidden},
		{name: "unknown conversation", sender: 1, body: map[string]any{"conversationId": "missing", "content": "hi"}, status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.status, f.do(http.MethodPost, "/conversations/messages", tt.sender, tt.body, nil))
		})
	}
}

func TestAPI_ListMessagesSortedAscending(t *testing.T) {
	f := newFixture(t)
	c := f.privateConversation(1, 2)
	f.dispatcher.EXPECT().DispatchMessage(gomock.Any(), gomock.Any()).Return(0, nil).AnyTimes()
	f.dispatcher.EXPECT().DispatchNotification(gomock.Any(), gomock.Any()).Return(0, nil).AnyTimes()

	for _, content := range []string{"one", "two", "three"} {
		require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/conversations/messages", 1, map[string]any{"conversationId": c.ID, "content": content}, nil))
	}

	var messages []domain.Message
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/conversations/"+c.ID+"/messages", 2, nil, &messages))
	require.Len(t, messages, 3)
	for i := 1; i < len(messages); i++ {
		require.False(t, messages[i].CreatedAt.Before(messages[i-1].CreatedAt))
	}
	require.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/conversations/"+c.ID+"/messages", 3, nil, nil))
}

func TestAPI_OfflineRecipientFindsNotificationLater(t *testing.T) {
	f := newFixture(t)
	c, err := f.store.CreateConversation(context.Background(), store.NewConversation{
		Kind: domain.KindGroup, Name: "team", CreatorID: 1, ParticipantIDs: []domain.UserID{2, 3},
	})
	require.NoError(t, err)

	// Nobody is connected: every dispatch reaches zero sessions.
	f.dispatcher.EXPECT().DispatchMessage(gomock.Any(), gomock.Any()).Return(0, nil)
	f.dispatcher.EXPECT().DispatchNotification(gomock.Any(), gomock.Any()).Return(0, nil).Times(2)

	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/conversations/messages", 1, map[string]any{"conversationId": c.ID, "content": "hi"}, nil))

	var notifications []domain.Notification
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/notifications", 3, nil, &notifications))
	require.Len(t, notifications, 1)
	require.False(t, notifications[0].IsRead)
	require.Equal(t, c.ID, notifications[0].RelatedID)

	var read domain.Notification
	require.Equal(t, http.StatusForbidden, f.do(http.MethodPatch, "/notifications/"+notifications[0].ID+"/read", 2, nil, nil))
	require.Equal(t, http.StatusOK, f.do(http.MethodPatch, "/notifications/"+notifications[0].ID+"/read", 3, nil, &read))
	require.True(t, read.IsRead)

	var updated map[string]int64
	require.Equal(t, http.StatusOK, f.do(http.MethodPatch, "/notifications/read-all", 2, nil, &updated))
	require.EqualValues(t, 1, updated["updated"])

	require.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/notifications/"+notifications[0].ID, 3, nil, nil))
	require.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/notifications/"+notifications[0].ID, 3, nil, nil))
}

func TestAPI_BatchUsers(t *testing.T) {
	f := newFixture(t)

	var users []domain.User
	status := f.do(http.MethodPost, "/users/batch", 1, map[string]any{"ids": []int{2, 2, 3, 99}}, &users)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, users, 2)
	require.Equal(t, "bob", users[0].Username)
	require.Equal(t, "carol", users[1].Username)
}
