package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/Tyrowin/relaychat/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.store.ListConversations(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}

func (h *Handler) createConversation(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateConversationRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := domain.Validate(&req); err != nil {
		h.writeError(w, r, err)
		return
	}

	kind := domain.KindPrivate
	if req.IsGroup {
		kind = domain.KindGroup
	}
	creator := principal(r)
	conversation, err := h.store.CreateConversation(r.Context(), store.NewConversation{
		Kind:           kind,
		Name:           req.Name,
		CreatorID:      creator,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if conversation.IsGroup && conversation.CreatedBy == creator {
		h.inviteParticipants(context.WithoutCancel(r.Context()), conversation)
	}
	writeJSON(w, http.StatusCreated, conversation)
}

// inviteParticipants notifies every pending member of a new group.
func (h *Handler) inviteParticipants(ctx context.Context, c domain.Conversation) {
	title := "Group invitation"
	content := fmt.Sprintf("You were added to %q", lo.CoalesceOrEmpty(c.Name, "a group"))
	for _, recipient := range c.Pending {
		h.notify(ctx, store.NewNotification{
			RecipientID: recipient,
			Type:        domain.NotificationGroupInvite,
			Title:       title,
			Content:     content,
			RelatedID:   c.ID,
		})
	}
}

func (h *Handler) getConversation(w http.ResponseWriter, r *http.Request) {
	conversation, err := h.participantConversation(r, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversation)
}

func (h *Handler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteConversation(r.Context(), chi.URLParam(r, "id"), principal(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Conversation deleted successfully"})
}

func (h *Handler) acceptConversation(w http.ResponseWriter, r *http.Request) {
	conversation, err := h.store.AcceptConversation(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversation)
}

// participantConversation loads a conversation the caller belongs to.
func (h *Handler) participantConversation(r *http.Request, id string) (domain.Conversation, error) {
	conversation, err := h.store.GetConversation(r.Context(), id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conversation.HasParticipant(principal(r)) {
		return domain.Conversation{}, fmt.Errorf("%w: not a participant", domain.ErrForbidden)
	}
	return conversation, nil
}
