//go:generate go run go.uber.org/mock/mockgen -source=directory.go -destination=../mocks/mock_directory.go -package=mocks
package directory

import (
	"context"

	"github.com/Tyrowin/relaychat/internal/domain"
)

// Directory is the batch user lookup collaborator. Unknown ids are omitted
// from the result rather than reported as errors. A call carries at most
// domain.MaxBatchUsers ids.
type Directory interface {
	LookupUsers(ctx context.Context, ids []domain.UserID) ([]domain.User, error)
}
