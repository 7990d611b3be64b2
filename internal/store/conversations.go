package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// NewConversation describes a conversation to create.
type NewConversation struct {
	Kind           domain.ConversationKind
	Name           string
	CreatorID      domain.UserID
	ParticipantIDs []domain.UserID
}

// CreateConversation persists a conversation. The creator is always a
// participant and is accepted immediately; everyone else starts pending.
// A private conversation between an existing pair returns the existing record.
func (s *Store) CreateConversation(ctx context.Context, in NewConversation) (domain.Conversation, error) {
	participants := lo.Uniq(append([]domain.UserID{in.CreatorID}, in.ParticipantIDs...))
	slices.Sort(participants)

	var pairKey sql.NullString
	if in.Kind == domain.KindPrivate {
		if len(participants) != 2 {
			return domain.Conversation{}, fmt.Errorf("%w: private conversation needs exactly one other participant", domain.ErrValidation)
		}
		pairKey = sql.NullString{String: fmt.Sprintf("%d:%d", participants[0], participants[1]), Valid: true}

		var existing string
		err := s.db.QueryRowContext(ctx, `SELECT id FROM conversations WHERE pair_key = ?`, pairKey).Scan(&existing)
		switch {
		case err == nil:
			return s.GetConversation(ctx, existing)
		case !errors.Is(err, sql.ErrNoRows):
			return domain.Conversation{}, fmt.Errorf("lookup pair: %w", err)
		}
	}

	id := uuid.NewString()
	createdAt := s.now()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (id, kind, name, created_by, pair_key, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, string(in.Kind), in.Name, in.CreatorID, pairKey, toNanos(createdAt)); err != nil {
			return err
		}
		for _, p := range participants {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO conversation_participants (conversation_id, user_id, accepted) VALUES (?, ?, ?)`,
				id, p, p == in.CreatorID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}

	return s.GetConversation(ctx, id)
}

// GetConversation loads a conversation with its participant set.
func (s *Store) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	var (
		c         domain.Conversation
		kind      string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, name, created_by, created_at FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &kind, &c.Name, &c.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Conversation{}, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	c.Kind = domain.ConversationKind(kind)
	c.IsGroup = c.Kind == domain.KindGroup
	c.CreatedAt = fromNanos(createdAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, accepted FROM conversation_participants WHERE conversation_id = ? ORDER BY user_id`, id)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("get participants: %w", err)
	}
	defer rows.Close()

	c.ParticipantIDs = []domain.UserID{}
	for rows.Next() {
		var (
			uid      domain.UserID
			accepted bool
		)
		if err := rows.Scan(&uid, &accepted); err != nil {
			return domain.Conversation{}, err
		}
		c.ParticipantIDs = append(c.ParticipantIDs, uid)
		if !accepted {
			c.Pending = append(c.Pending, uid)
		}
	}
	return c, rows.Err()
}

// ListConversations returns every conversation userID participates in, newest first.
func (s *Store) ListConversations(ctx context.Context, userID domain.UserID) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = ?
		ORDER BY c.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	conversations := make([]domain.Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, nil
}

// IsParticipant reports whether userID belongs to the conversation. It fails
// with ErrNotFound when the conversation does not exist.
func (s *Store) IsParticipant(ctx context.Context, conversationID string, userID domain.UserID) (bool, error) {
	var exists, member int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM conversations WHERE id = ?),
			EXISTS (SELECT 1 FROM conversation_participants WHERE conversation_id = ? AND user_id = ?)`,
		conversationID, conversationID, userID).Scan(&exists, &member)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	if exists == 0 {
		return false, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}
	return member == 1, nil
}

// AcceptConversation marks userID's participation as accepted.
func (s *Store) AcceptConversation(ctx context.Context, id string, userID domain.UserID) (domain.Conversation, error) {
	if err := s.requireParticipant(ctx, id, userID); err != nil {
		return domain.Conversation{}, err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversation_participants SET accepted = 1 WHERE conversation_id = ? AND user_id = ?`, id, userID); err != nil {
		return domain.Conversation{}, fmt.Errorf("accept conversation: %w", err)
	}
	return s.GetConversation(ctx, id)
}

// DeleteConversation removes a conversation and, through cascades, its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string, userID domain.UserID) error {
	if err := s.requireParticipant(ctx, id, userID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (s *Store) requireParticipant(ctx context.Context, id string, userID domain.UserID) error {
	ok, err := s.IsParticipant(ctx, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %d in conversation %s: %w", userID, id, domain.ErrForbidden)
	}
	return nil
}
