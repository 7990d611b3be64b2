package server

import (
	"context"
	"log/slog"

	"github.com/Tyrowin/relaychat/internal/domain"
)

// Dispatcher pushes persisted events to connected sessions. Delivery is best
// effort: a send that reaches nobody is not an error, and nothing is retried.
type Dispatcher struct {
	chat          *Hub
	notifications *Hub
	log           *slog.Logger
}

// NewDispatcher pairs the chat-room hub with the per-user notification hub.
func NewDispatcher(chat, notifications *Hub, log *slog.Logger) *Dispatcher {
	return &Dispatcher{chat: chat, notifications: notifications, log: log}
}

// DispatchMessage sends a new_message event to every session joined to the
// message's conversation room and returns how many accepted it.
func (d *Dispatcher) DispatchMessage(ctx context.Context, msg domain.Message) (int, error) {
	payload, err := EncodeEnvelope(EventNewMessage, msg)
	if err != nil {
		return 0, err
	}
	n, err := d.chat.Deliver(ctx, Delivery{Room: msg.ConversationID, Payload: payload})
	if err != nil {
		return 0, err
	}
	d.log.Debug("Dispatched message", "conversation", msg.ConversationID, "message", msg.ID, "sessions", n)
	return n, nil
}

// DispatchNotification sends a notification:created event to every session of the recipient.
func (d *Dispatcher) DispatchNotification(ctx context.Context, n domain.Notification) (int, error) {
	payload, err := EncodeEnvelope(EventNotificationCreated, n)
	if err != nil {
		return 0, err
	}
	sessions, err := d.notifications.Deliver(ctx, Delivery{UserID: n.RecipientID, Payload: payload})
	if err != nil {
		return 0, err
	}
	d.log.Debug("Dispatched notification", "recipient", n.RecipientID, "notification", n.ID, "sessions", sessions)
	return sessions, nil
}
