package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/samber/lo"
)

// UpsertUser inserts or refreshes a directory record.
func (s *Store) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, email, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET username = excluded.username, email = excluded.email`,
		u.ID, u.Username, u.Email, toNanos(s.now()))
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", u.ID, err)
	}
	return nil
}

// UsersByIDs returns the records for the distinct ids that exist. Unknown ids
// are omitted.
func (s *Store) UsersByIDs(ctx context.Context, ids []domain.UserID) ([]domain.User, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return []domain.User{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := lo.Map(ids, func(id domain.UserID, _ int) any { return id })

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, email FROM users WHERE user_id IN (`+placeholders+`) ORDER BY user_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0, len(ids))
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
