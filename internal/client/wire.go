package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/samber/lo"
)

// The types in this file absorb the spellings older services emit (`_id`,
// snake_case, numeric ids as strings) and convert them into the canonical
// domain entities. Nothing outside this file sees a legacy field.

// flexID accepts a user id encoded as a JSON number or a numeric string.
type flexID domain.UserID

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			return nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return fmt.Errorf("user id %q: %w", s, err)
		}
		*f = flexID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n)
	return nil
}

// participantRef is an id, a numeric string, or an object carrying id or user_id.
type participantRef domain.UserID

func (p *participantRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			ID     flexID `json:"id"`
			UserID flexID `json:"user_id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*p = participantRef(lo.CoalesceOrEmpty(obj.ID, obj.UserID))
		return nil
	}
	var id flexID
	if err := id.UnmarshalJSON(b); err != nil {
		return err
	}
	*p = participantRef(id)
	return nil
}

func refsToIDs(refs []participantRef) []domain.UserID {
	ids := lo.Map(refs, func(r participantRef, _ int) domain.UserID { return domain.UserID(r) })
	return lo.Filter(ids, func(id domain.UserID, _ int) bool { return id > 0 })
}

func firstTime(times ...time.Time) time.Time {
	for _, t := range times {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

type wireMessage struct {
	ID                    string    `json:"id"`
	LegacyID              string    `json:"_id"`
	ConversationID        string    `json:"conversationId"`
	LegacyConversationID  string    `json:"conversation_id"`
	SenderID              flexID    `json:"senderId"`
	LegacySenderID        flexID    `json:"sender_id"`
	Content               string    `json:"content"`
	ClientMessageID       string    `json:"clientMessageId"`
	LegacyClientMessageID string    `json:"client_message_id"`
	CreatedAt             time.Time `json:"createdAt"`
	LegacyCreatedAt       time.Time `json:"created_at"`
}

func (w wireMessage) canonical() domain.Message {
	return domain.Message{
		ID:              lo.CoalesceOrEmpty(w.ID, w.LegacyID),
		ConversationID:  lo.CoalesceOrEmpty(w.ConversationID, w.LegacyConversationID),
		SenderID:        domain.UserID(lo.CoalesceOrEmpty(w.SenderID, w.LegacySenderID)),
		Content:         w.Content,
		ClientMessageID: lo.CoalesceOrEmpty(w.ClientMessageID, w.LegacyClientMessageID),
		CreatedAt:       firstTime(w.CreatedAt, w.LegacyCreatedAt),
	}
}

type wireConversation struct {
	ID              string           `json:"id"`
	LegacyID        string           `json:"_id"`
	Type            string           `json:"type"`
	IsGroup         *bool            `json:"isGroup"`
	Name            string           `json:"name"`
	ParticipantIDs  []participantRef `json:"participantIds"`
	Participants    []participantRef `json:"participants"`
	Pending         []participantRef `json:"pendingParticipantIds"`
	LegacyPending   []participantRef `json:"pending_participants"`
	CreatedBy       flexID           `json:"createdBy"`
	LegacyCreatedBy flexID           `json:"created_by"`
	CreatedAt       time.Time        `json:"createdAt"`
	LegacyCreatedAt time.Time        `json:"created_at"`
}

func (w wireConversation) canonical() domain.Conversation {
	isGroup := w.Type == string(domain.KindGroup)
	if w.IsGroup != nil {
		isGroup = *w.IsGroup
	}
	kind := domain.KindPrivate
	if isGroup {
		kind = domain.KindGroup
	}

	participants := w.ParticipantIDs
	if len(participants) == 0 {
		participants = w.Participants
	}
	pending := w.Pending
	if len(pending) == 0 {
		pending = w.LegacyPending
	}

	return domain.Conversation{
		ID:             lo.CoalesceOrEmpty(w.ID, w.LegacyID),
		Kind:           kind,
		IsGroup:        isGroup,
		Name:           w.Name,
		ParticipantIDs: refsToIDs(participants),
		Pending:        refsToIDs(pending),
		CreatedBy:      domain.UserID(lo.CoalesceOrEmpty(w.CreatedBy, w.LegacyCreatedBy)),
		CreatedAt:      firstTime(w.CreatedAt, w.LegacyCreatedAt),
	}
}

type wireNotification struct {
	ID              string    `json:"id"`
	LegacyID        string    `json:"_id"`
	UserID          flexID    `json:"userId"`
	LegacyUserID    flexID    `json:"user_id"`
	Type            string    `json:"type"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	RelatedID       string    `json:"relatedId"`
	LegacyRelatedID string    `json:"related_id"`
	IsRead          *bool     `json:"isRead"`
	LegacyIsRead    *bool     `json:"is_read"`
	CreatedAt       time.Time `json:"createdAt"`
	LegacyCreatedAt time.Time `json:"created_at"`
	Data            struct {
		ConversationID string `json:"conversationId"`
	} `json:"data"`
}

func (w wireNotification) canonical() domain.Notification {
	read := w.IsRead
	if read == nil {
		read = w.LegacyIsRead
	}
	return domain.Notification{
		ID:          lo.CoalesceOrEmpty(w.ID, w.LegacyID),
		RecipientID: domain.UserID(lo.CoalesceOrEmpty(w.UserID, w.LegacyUserID)),
		Type:        domain.NotificationType(w.Type),
		Title:       w.Title,
		Content:     w.Content,
		RelatedID:   lo.CoalesceOrEmpty(w.RelatedID, w.LegacyRelatedID, w.Data.ConversationID),
		IsRead:      lo.FromPtr(read),
		CreatedAt:   firstTime(w.CreatedAt, w.LegacyCreatedAt),
	}
}

type wireUser struct {
	UserID   flexID `json:"user_id"`
	ID       flexID `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

func (w wireUser) canonical() domain.User {
	return domain.User{
		ID:       domain.UserID(lo.CoalesceOrEmpty(w.UserID, w.ID)),
		Username: lo.CoalesceOrEmpty(w.Username, w.Name),
		Email:    w.Email,
	}
}

// DecodeMessage normalizes a message payload from REST or a new_message push.
func DecodeMessage(raw []byte) (domain.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Message{}, fmt.Errorf("%w: decode message: %v", domain.ErrValidation, err)
	}
	return w.canonical(), nil
}

// DecodeNotification normalizes a notification payload from REST or a push.
func DecodeNotification(raw []byte) (domain.Notification, error) {
	var w wireNotification
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Notification{}, fmt.Errorf("%w: decode notification: %v", domain.ErrValidation, err)
	}
	return w.canonical(), nil
}
