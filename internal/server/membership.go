//go:generate go run go.uber.org/mock/mockgen -source=membership.go -destination=../mocks/mock_membership.go -package=mocks
package server

import (
	"context"

	"github.com/Tyrowin/relaychat/internal/domain"
)

// MembershipChecker answers whether a user participates in a conversation.
// It returns domain.ErrNotFound when the conversation does not exist.
type MembershipChecker interface {
	IsParticipant(ctx context.Context, conversationID string, userID domain.UserID) (bool, error)
}
