//go:generate go run go.uber.org/mock/mockgen -source=dispatcher.go -destination=../mocks/mock_dispatcher.go -package=mocks
package api

import (
	"context"

	"github.com/Tyrowin/relaychat/internal/domain"
)

// Dispatcher relays committed entities to connected sessions.
type Dispatcher interface {
	DispatchMessage(ctx context.Context, msg domain.Message) (int, error)
	DispatchNotification(ctx context.Context, n domain.Notification) (int, error)
}
