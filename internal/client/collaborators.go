package client

//go:generate go run go.uber.org/mock/mockgen -source=collaborators.go -destination=../mocks/mock_client.go -package=mocks

import (
	"context"
	"encoding/json"

	"github.com/Tyrowin/relaychat/internal/domain"
)

// ChatAPI is the slice of the persistence collaborator a Chat needs.
type ChatAPI interface {
	AcceptConversation(ctx context.Context, id string) (domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	SendMessage(ctx context.Context, req domain.SendMessageRequest) (domain.Message, error)
}

// NotificationAPI is the slice of the persistence collaborator an Inbox needs.
type NotificationAPI interface {
	ListNotifications(ctx context.Context) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
}

// Realtime is an owned event channel; *Conn implements it.
type Realtime interface {
	Emit(event string, data any) error
	On(event string, h func(data json.RawMessage)) func()
}

// IdentityResolver maps user ids to display identities; *directory.Resolver
// implements it.
type IdentityResolver interface {
	ResolveMany(ctx context.Context, ids []domain.UserID) (map[domain.UserID]domain.Identity, error)
}
