package store

import (
	"context"
	"fmt"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/google/uuid"
)

// NewMessage describes a message to persist.
type NewMessage struct {
	ConversationID  string
	SenderID        domain.UserID
	Content         string
	ClientMessageID string
}

// CreateMessage persists a message. The conversation must exist and the
// sender must be one of its participants.
func (s *Store) CreateMessage(ctx context.Context, in NewMessage) (domain.Message, error) {
	if err := s.requireParticipant(ctx, in.ConversationID, in.SenderID); err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:              uuid.NewString(),
		ConversationID:  in.ConversationID,
		SenderID:        in.SenderID,
		Content:         in.Content,
		ClientMessageID: in.ClientMessageID,
		CreatedAt:       s.now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, client_message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.ClientMessageID, toNanos(msg.CreatedAt))
	if err != nil {
		return domain.Message{}, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// ListMessages returns the messages of a conversation. Row order is not part
// of the contract; readers sort by CreatedAt.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, content, client_message_id, created_at
		FROM messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var (
			m         domain.Message
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.ClientMessageID, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = fromNanos(createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
