package client

import (
	"slices"
	"sync"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/samber/lo"
)

// NotificationStore is the local inbox, newest first.
type NotificationStore struct {
	mu    sync.Mutex
	items []domain.Notification

	// refresh counts started fetches; pushed records the count current when
	// each push arrived.
	refresh uint64
	pushed  map[string]uint64
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{pushed: make(map[string]uint64)}
}

// BeginRefresh marks the start of a fetch and returns its generation.
func (s *NotificationStore) BeginRefresh() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh++
	return s.refresh
}

// Replace installs the list fetched for gen. The list is authoritative except
// for pushes that arrived after the fetch started. A fetch superseded by a
// later BeginRefresh is discarded and Replace reports false.
func (s *NotificationStore) Replace(gen uint64, list []domain.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.refresh {
		return false
	}

	merged := lo.UniqBy(list, func(n domain.Notification) string { return n.ID })
	for _, n := range s.items {
		if s.pushed[n.ID] < gen {
			continue
		}
		if !slices.ContainsFunc(merged, func(m domain.Notification) bool { return m.ID == n.ID }) {
			merged = append(merged, n)
		}
	}
	s.items = merged
	clear(s.pushed)
	s.sort()
	return true
}

// Add merges a pushed notification and reports whether it was new.
func (s *NotificationStore) Add(n domain.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" || s.index(n.ID) >= 0 {
		return false
	}
	s.items = append(s.items, n)
	s.pushed[n.ID] = s.refresh
	s.sort()
	return true
}

func (s *NotificationStore) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 || s.items[i].IsRead {
		return false
	}
	s.items[i].IsRead = true
	return true
}

func (s *NotificationStore) MarkAllRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.items {
		if !s.items[i].IsRead {
			s.items[i].IsRead = true
			n++
		}
	}
	return n
}

func (s *NotificationStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	delete(s.pushed, id)
	return true
}

func (s *NotificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.CountBy(s.items, func(n domain.Notification) bool { return !n.IsRead })
}

func (s *NotificationStore) Items() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

func (s *NotificationStore) index(id string) int {
	return slices.IndexFunc(s.items, func(n domain.Notification) bool { return n.ID == id })
}

func (s *NotificationStore) sort() {
	slices.SortStableFunc(s.items, func(a, b domain.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
