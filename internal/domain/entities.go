// Package domain holds the canonical entity shapes shared by the realtime
// server, the HTTP surface and the client reconciliation store.
//
// Every collaborator boundary (SQL rows, legacy JSON spellings) is normalized
// into these types before it reaches internal logic.
package domain

import (
	"fmt"
	"slices"
	"time"
)

// UserID identifies a user in the external directory.
type UserID int64

// ConversationKind distinguishes two-party conversations from groups.
type ConversationKind string

const (
	KindPrivate ConversationKind = "private"
	KindGroup   ConversationKind = "group"
)

// Conversation is owned by the persistence collaborator. The realtime core
// only reads ID and ParticipantIDs.
type Conversation struct {
	ID             string           `json:"id"`
	Kind           ConversationKind `json:"type"`
	IsGroup        bool             `json:"isGroup"`
	Name           string           `json:"name,omitempty"`
	ParticipantIDs []UserID         `json:"participantIds"`
	Pending        []UserID         `json:"pendingParticipantIds,omitempty"`
	CreatedBy      UserID           `json:"createdBy"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID UserID) bool {
	return slices.Contains(c.ParticipantIDs, userID)
}

// Message is immutable once created.
type Message struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversationId"`
	SenderID        UserID    `json:"senderId"`
	Content         string    `json:"content"`
	ClientMessageID string    `json:"clientMessageId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NotificationType mirrors the categories produced by the notification service.
type NotificationType string

const (
	NotificationNewMessage  NotificationType = "new_message"
	NotificationSystem      NotificationType = "system"
	NotificationGroupInvite NotificationType = "group_invite"
)

// Notification is mutable only in IsRead (false to true) and may be deleted.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID UserID           `json:"userId"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Content     string           `json:"content"`
	RelatedID   string           `json:"relatedId,omitempty"`
	IsRead      bool             `json:"isRead"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// User is a directory record as returned by the batch lookup.
type User struct {
	ID       UserID `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Identity is the displayable form of a user.
type Identity struct {
	UserID      UserID `json:"id"`
	DisplayName string `json:"name"`
	Email       string `json:"email,omitempty"`
}

// IdentityOf converts a directory record into an Identity.
func IdentityOf(u User) Identity {
	return Identity{UserID: u.ID, DisplayName: u.Username, Email: u.Email}
}

// Placeholder is the deterministic identity used when a user cannot be resolved.
func Placeholder(id UserID) Identity {
	return Identity{UserID: id, DisplayName: fmt.Sprintf("User %d", id)}
}
