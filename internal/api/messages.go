package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/Tyrowin/relaychat/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

const previewLength = 80

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	conversation, err := h.participantConversation(r, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	messages, err := h.store.ListMessages(r.Context(), conversation.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slices.SortStableFunc(messages, func(a, b domain.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	writeJSON(w, http.StatusOK, messages)
}

// sendMessage persists a message, then relays it to the conversation room
// and notifies every other participant.
func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req domain.SendMessageRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := domain.Validate(&req); err != nil {
		h.writeError(w, r, err)
		return
	}

	sender := principal(r)
	msg, err := h.store.CreateMessage(r.Context(), store.NewMessage{
		ConversationID:  req.ConversationID,
		SenderID:        sender,
		Content:         req.Content,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	if _, err := h.dispatcher.DispatchMessage(ctx, msg); err != nil {
		h.log.Warn("Message dispatch failed", "message", msg.ID, "error", err)
	}
	h.notifyRecipients(ctx, msg)

	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) notifyRecipients(ctx context.Context, msg domain.Message) {
	conversation, err := h.store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		h.log.Warn("Loading conversation for notifications failed", "conversation", msg.ConversationID, "error", err)
		return
	}

	recipients := lo.Without(conversation.ParticipantIDs, msg.SenderID)
	if len(recipients) == 0 {
		return
	}

	senderName := domain.Placeholder(msg.SenderID).DisplayName
	if users, err := h.store.UsersByIDs(ctx, []domain.UserID{msg.SenderID}); err == nil && len(users) == 1 {
		senderName = lo.CoalesceOrEmpty(users[0].Username, senderName)
	}
	content := fmt.Sprintf("%s: %s", senderName, preview(msg.Content))

	for _, recipient := range recipients {
		h.notify(ctx, store.NewNotification{
			RecipientID: recipient,
			Type:        domain.NotificationNewMessage,
			Title:       "New message",
			Content:     content,
			RelatedID:   msg.ConversationID,
		})
	}
}

// notify persists a notification and relays it. Failures are logged; the
// primary write has already succeeded.
func (h *Handler) notify(ctx context.Context, in store.NewNotification) {
	n, err := h.store.CreateNotification(ctx, in)
	if err != nil {
		h.log.Warn("Creating notification failed", "recipient", in.RecipientID, "error", err)
		return
	}
	if _, err := h.dispatcher.DispatchNotification(ctx, n); err != nil {
		h.log.Warn("Notification dispatch failed", "notification", n.ID, "error", err)
	}
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "…"
}
