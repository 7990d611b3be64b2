// Package api serves the HTTP surface the client reconciles against:
// conversations, messages, notifications and the batch user directory.
// Writes are persisted first; realtime dispatch only relays committed facts.
package api

import (
	"context"
	"log/slog"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/Tyrowin/relaychat/internal/store"
)

// Store is the persistence collaborator.
type Store interface {
	UsersByIDs(ctx context.Context, ids []domain.UserID) ([]domain.User, error)
	CreateConversation(ctx context.Context, in store.NewConversation) (domain.Conversation, error)
	GetConversation(ctx context.Context, id string) (domain.Conversation, error)
	ListConversations(ctx context.Context, userID domain.UserID) ([]domain.Conversation, error)
	AcceptConversation(ctx context.Context, id string, userID domain.UserID) (domain.Conversation, error)
	DeleteConversation(ctx context.Context, id string, userID domain.UserID) error
	CreateMessage(ctx context.Context, in store.NewMessage) (domain.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	CreateNotification(ctx context.Context, in store.NewNotification) (domain.Notification, error)
	ListNotifications(ctx context.Context, userID domain.UserID) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id string, userID domain.UserID) (domain.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID domain.UserID) (int64, error)
	DeleteNotification(ctx context.Context, id string, userID domain.UserID) error
}

// Handler implements the HTTP routes.
type Handler struct {
	store      Store
	dispatcher Dispatcher
	log        *slog.Logger
}

func NewHandler(s Store, d Dispatcher, log *slog.Logger) *Handler {
	return &Handler{store: s, dispatcher: d, log: log}
}
