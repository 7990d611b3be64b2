package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Inbox keeps the signed-in user's notifications in sync with the
// notification channel and the persistence collaborator.
type Inbox struct {
	api   NotificationAPI
	store *NotificationStore
	log   *slog.Logger
	off   func()

	mu     sync.Mutex
	notify func(n NotificationView)
}

// NotificationView is what a user-facing surface needs to render a push.
type NotificationView struct {
	ID        string
	Title     string
	Content   string
	RelatedID string
	Unread    int
}

func NewInbox(api NotificationAPI, rt Realtime, log *slog.Logger) *Inbox {
	in := &Inbox{
		api:   api,
		store: NewNotificationStore(),
		log:   log,
	}
	in.off = rt.On(eventNotificationCreated, in.handlePush)
	return in
}

// OnNotification registers fn to be called for every pushed notification
// that was not already in the store.
func (in *Inbox) OnNotification(fn func(n NotificationView)) {
	in.mu.Lock()
	in.notify = fn
	in.mu.Unlock()
}

func (in *Inbox) Store() *NotificationStore {
	return in.store
}

// Refresh replaces the local inbox with the persisted list, keeping pushes
// that arrive while the fetch is in flight.
func (in *Inbox) Refresh(ctx context.Context) error {
	gen := in.store.BeginRefresh()
	list, err := in.api.ListNotifications(ctx)
	if err != nil {
		return err
	}
	if !in.store.Replace(gen, list) {
		in.log.Debug("Discarding superseded notification refresh")
	}
	return nil
}

func (in *Inbox) MarkRead(ctx context.Context, id string) error {
	if err := in.api.MarkNotificationRead(ctx, id); err != nil {
		return err
	}
	in.store.MarkRead(id)
	return nil
}

func (in *Inbox) MarkAllRead(ctx context.Context) error {
	if err := in.api.MarkAllNotificationsRead(ctx); err != nil {
		return err
	}
	in.store.MarkAllRead()
	return nil
}

func (in *Inbox) Delete(ctx context.Context, id string) error {
	if err := in.api.DeleteNotification(ctx, id); err != nil {
		return err
	}
	in.store.Remove(id)
	return nil
}

func (in *Inbox) Close() {
	in.off()
}

func (in *Inbox) handlePush(data json.RawMessage) {
	n, err := DecodeNotification(data)
	if err != nil {
		in.log.Warn("Dropping malformed notification push", "error", err)
		return
	}
	if !in.store.Add(n) {
		return
	}
	in.mu.Lock()
	notify := in.notify
	in.mu.Unlock()
	if notify != nil {
		notify(NotificationView{
			ID:        n.ID,
			Title:     n.Title,
			Content:   n.Content,
			RelatedID: n.RelatedID,
			Unread:    in.store.UnreadCount(),
		})
	}
}
