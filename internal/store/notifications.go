package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/google/uuid"
)

// NewNotification describes a notification to persist.
type NewNotification struct {
	RecipientID domain.UserID
	Type        domain.NotificationType
	Title       string
	Content     string
	RelatedID   string
}

// CreateNotification persists an unread notification.
func (s *Store) CreateNotification(ctx context.Context, in NewNotification) (domain.Notification, error) {
	n := domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: in.RecipientID,
		Type:        in.Type,
		Title:       in.Title,
		Content:     in.Content,
		RelatedID:   in.RelatedID,
		CreatedAt:   s.now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, content, related_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		n.ID, n.RecipientID, string(n.Type), n.Title, n.Content, n.RelatedID, toNanos(n.CreatedAt))
	if err != nil {
		return domain.Notification{}, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns userID's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID domain.UserID) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, content, related_id, is_read, created_at
		FROM notifications WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead flips a notification to read. Only the recipient may do so.
func (s *Store) MarkNotificationRead(ctx context.Context, id string, userID domain.UserID) (domain.Notification, error) {
	if _, err := s.ownedNotification(ctx, id, userID); err != nil {
		return domain.Notification{}, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id); err != nil {
		return domain.Notification{}, fmt.Errorf("mark read: %w", err)
	}
	return s.ownedNotification(ctx, id, userID)
}

// MarkAllNotificationsRead flips every unread notification of userID and
// returns how many changed.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID domain.UserID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.RowsAffected()
}

// DeleteNotification removes a notification owned by userID.
func (s *Store) DeleteNotification(ctx context.Context, id string, userID domain.UserID) error {
	if _, err := s.ownedNotification(ctx, id, userID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

func (s *Store) ownedNotification(ctx context.Context, id string, userID domain.UserID) (domain.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, title, content, related_id, is_read, created_at
		FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Notification{}, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Notification{}, err
	}
	if n.RecipientID != userID {
		return domain.Notification{}, fmt.Errorf("notification %s: %w", id, domain.ErrForbidden)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner) (domain.Notification, error) {
	var (
		n         domain.Notification
		kind      string
		createdAt int64
	)
	if err := row.Scan(&n.ID, &n.RecipientID, &kind, &n.Title, &n.Content, &n.RelatedID, &n.IsRead, &createdAt); err != nil {
		return domain.Notification{}, err
	}
	n.Type = domain.NotificationType(kind)
	n.CreatedAt = fromNanos(createdAt)
	return n, nil
}
