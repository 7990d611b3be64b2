package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/Tyrowin/relaychat/internal/mocks"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestResolver(t *testing.T) (*Resolver, *mocks.MockDirectory) {
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockDirectory(ctrl)
	return NewResolver(dir, logs.GetLoggerFromLevel(slog.LevelDebug)), dir
}

func TestResolveMany_RequestsDistinctIDsOnce(t *testing.T) {
	req := require.New(t)
	resolver, dir := newTestResolver(t)

	dir.EXPECT().
		LookupUsers(gomock.Any(), []domain.UserID{7, 12}).
		Return([]domain.User{{ID: 7, Username: "alice"}, {ID: 12, Username: "bob"}}, nil).
		Times(1)

	identities, err := resolver.ResolveMany(context.Background(), []domain.UserID{7, 7, 12})
	req.NoError(err)
	req.Len(identities, 2)
	req.Equal("alice", identities[7].DisplayName)
	req.Equal("bob", identities[12].DisplayName)
}

func TestResolveMany_ServesRepeatsFromCache(t *testing.T) {
	req := require.New(t)
	resolver, dir := newTestResolver(t)

	dir.EXPECT().
		LookupUsers(gomock.Any(), []domain.UserID{7}).
		Return([]domain.User{{ID: 7, Username: "alice"}}, nil)
	dir.EXPECT().
		LookupUsers(gomock.Any(), []domain.UserID{9}).
		Return(nil, nil)

	_, err := resolver.ResolveMany(context.Background(), []domain.UserID{7})
	req.NoError(err)

	identities, err := resolver.ResolveMany(context.Background(), []domain.UserID{7, 9})
	req.NoError(err)
	req.Equal("alice", identities[7].DisplayName)
	_, known := identities[9]
	req.False(known, "unknown ids are absent")
	req.Equal("User 9", Display(identities, 9).DisplayName)
}

func TestResolveMany_FailureDegradesToFallbacks(t *testing.T) {
	req := require.New(t)
	resolver, dir := newTestResolver(t)
	resolver.Remember(domain.Identity{UserID: 1, DisplayName: "me"})

	dir.EXPECT().
		LookupUsers(gomock.Any(), []domain.UserID{2, 3}).
		Return(nil, errors.New("connection refused"))

	identities, err := resolver.ResolveMany(context.Background(), []domain.UserID{3, 1, 2})
	req.ErrorIs(err, domain.ErrTransient)
	req.Equal("me", Display(identities, 1).DisplayName)
	req.Equal("User 2", Display(identities, 2).DisplayName)
	req.Equal("User 3", Display(identities, 3).DisplayName)
}

func TestResolveMany_NothingToResolve(t *testing.T) {
	resolver, _ := newTestResolver(t)

	identities, err := resolver.ResolveMany(context.Background(), []domain.UserID{0, -4})
	require.NoError(t, err)
	require.Empty(t, identities)
}

func TestResolveMany_SplitsLargePassesIntoBatches(t *testing.T) {
	req := require.New(t)
	resolver, dir := newTestResolver(t)

	ids := make([]domain.UserID, domain.MaxBatchUsers+1)
	for i := range ids {
		ids[i] = domain.UserID(i + 1)
	}
	echo := func(_ context.Context, batch []domain.UserID) ([]domain.User, error) {
		users := make([]domain.User, 0, len(batch))
		for _, id := range batch {
			users = append(users, domain.User{ID: id, Username: fmt.Sprintf("user-%d", id)})
		}
		return users, nil
	}
	gomock.InOrder(
		dir.EXPECT().LookupUsers(gomock.Any(), gomock.Len(domain.MaxBatchUsers)).DoAndReturn(echo),
		dir.EXPECT().LookupUsers(gomock.Any(), []domain.UserID{domain.MaxBatchUsers + 1}).DoAndReturn(echo),
	)

	identities, err := resolver.ResolveMany(context.Background(), ids)
	req.NoError(err)
	req.Len(identities, len(ids))
	req.Equal("user-1", identities[1].DisplayName)
	req.Equal("user-501", identities[501].DisplayName)
}

func TestResolveMany_LookupIgnoresCallerCancellation(t *testing.T) {
	req := require.New(t)
	resolver, dir := newTestResolver(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir.EXPECT().
		LookupUsers(gomock.Any(), []domain.UserID{7}).
		DoAndReturn(func(ctx context.Context, _ []domain.UserID) ([]domain.User, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			_, hasDeadline := ctx.Deadline()
			req.True(hasDeadline, "shared lookup is bounded")
			return []domain.User{{ID: 7, Username: "alice"}}, nil
		})

	identities, err := resolver.ResolveMany(ctx, []domain.UserID{7})
	req.NoError(err)
	req.Equal("alice", identities[7].DisplayName)
}
