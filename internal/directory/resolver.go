// Package directory resolves bare user ids to display identities with one
// batched lookup per pass and a process-local cache.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"
)

const lookupTimeout = 10 * time.Second

// Resolver enriches ids through a Directory. Identical concurrent batches
// share a single lookup.
type Resolver struct {
	dir   Directory
	log   *slog.Logger
	group singleflight.Group

	mu    sync.RWMutex
	cache map[domain.UserID]domain.Identity
}

func NewResolver(dir Directory, log *slog.Logger) *Resolver {
	return &Resolver{
		dir:   dir,
		log:   log,
		cache: make(map[domain.UserID]domain.Identity),
	}
}

// Remember seeds the cache with an identity known locally, such as the
// signed-in user's own profile.
func (r *Resolver) Remember(id domain.Identity) {
	r.mu.Lock()
	r.cache[id.UserID] = id
	r.mu.Unlock()
}

// ResolveMany returns the identities for the distinct set of ids. Ids the
// directory does not know are absent from the mapping. On lookup failure the
// cached subset is returned together with an error wrapping
// domain.ErrTransient, so callers can degrade to placeholders.
func (r *Resolver) ResolveMany(ctx context.Context, ids []domain.UserID) (map[domain.UserID]domain.Identity, error) {
	distinct := lo.Uniq(lo.Filter(ids, func(id domain.UserID, _ int) bool { return id > 0 }))
	out := make(map[domain.UserID]domain.Identity, len(distinct))

	var missing []domain.UserID
	r.mu.RLock()
	for _, id := range distinct {
		if identity, ok := r.cache[id]; ok {
			out[id] = identity
			continue
		}
		missing = append(missing, id)
	}
	r.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}
	slices.Sort(missing)

	// The shared lookup outlives any single caller's cancellation.
	v, err, shared := r.group.Do(batchKey(missing), func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return r.lookup(lookupCtx, missing)
	})
	if err != nil {
		r.log.Warn("Identity lookup failed; using fallbacks", "ids", len(missing), "error", err)
		return out, fmt.Errorf("%w: lookup users: %v", domain.ErrTransient, err)
	}

	users := v.([]domain.User)
	r.mu.Lock()
	for _, u := range users {
		if !slices.Contains(missing, u.ID) {
			continue
		}
		identity := domain.IdentityOf(u)
		r.cache[u.ID] = identity
		out[u.ID] = identity
	}
	r.mu.Unlock()

	r.log.Debug("Resolved identities", "requested", len(missing), "found", len(users), "shared", shared)
	return out, nil
}

// lookup queries the directory in chunks of at most domain.MaxBatchUsers ids.
func (r *Resolver) lookup(ctx context.Context, ids []domain.UserID) ([]domain.User, error) {
	var users []domain.User
	for _, chunk := range lo.Chunk(ids, domain.MaxBatchUsers) {
		found, err := r.dir.LookupUsers(ctx, chunk)
		if err != nil {
			return nil, err
		}
		users = append(users, found...)
	}
	return users, nil
}

// Display returns the resolved identity for id or the "User {id}" placeholder.
func Display(identities map[domain.UserID]domain.Identity, id domain.UserID) domain.Identity {
	if identity, ok := identities[id]; ok {
		return identity
	}
	return domain.Placeholder(id)
}

func batchKey(ids []domain.UserID) string {
	parts := lo.Map(ids, func(id domain.UserID, _ int) string { return strconv.FormatInt(int64(id), 10) })
	return strings.Join(parts, ",")
}
