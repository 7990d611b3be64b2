package client

import (
	"slices"
	"sync"

	"github.com/Tyrowin/relaychat/internal/domain"
)

type EntryStatus int

const (
	StatusConfirmed EntryStatus = iota
	StatusPending
)

// Entry is a message as displayed: the canonical message, its resolved
// sender and whether the server has acknowledged it yet.
type Entry struct {
	Message domain.Message
	Sender  domain.Identity
	Status  EntryStatus
}

// MessageStore holds the messages of the selected conversation. Every
// selection bumps a generation; results fetched under an older generation
// are discarded so a slow response never lands in the wrong conversation.
type MessageStore struct {
	mu             sync.Mutex
	conversationID string
	generation     uint64
	entries        []Entry
}

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

// Select switches to conversationID, clears the current entries and returns
// the new generation.
func (s *MessageStore) Select(conversationID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = conversationID
	s.entries = nil
	s.generation++
	return s.generation
}

func (s *MessageStore) Deselect() {
	s.Select("")
}

func (s *MessageStore) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Current reports whether gen is still the live selection.
func (s *MessageStore) Current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.generation
}

// Replace installs fetched entries for generation gen. Entries already in the
// store that the fetch does not contain (optimistic sends, pushes that raced
// the fetch) are kept. It returns false when gen is stale.
func (s *MessageStore) Replace(gen uint64, fetched []Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}

	merged := make([]Entry, 0, len(fetched)+len(s.entries))
	for _, e := range fetched {
		if e.Message.ConversationID != s.conversationID || indexOf(merged, e.Message) >= 0 {
			continue
		}
		merged = append(merged, e)
	}
	for _, e := range s.entries {
		if indexOf(merged, e.Message) < 0 {
			merged = append(merged, e)
		}
	}
	s.entries = merged
	s.sort()
	return true
}

// AddProvisional inserts an unacknowledged send. msg must carry a
// ClientMessageID so the acknowledgement and the echo can find it.
func (s *MessageStore) AddProvisional(msg domain.Message, sender domain.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ConversationID != s.conversationID || msg.ClientMessageID == "" {
		return false
	}
	s.entries = append(s.entries, Entry{Message: msg, Sender: sender, Status: StatusPending})
	s.sort()
	return true
}

// Confirm replaces the provisional entry correlated by clientMessageID with
// the server's message. If the echo already landed, the provisional entry is
// dropped instead so the message appears once.
func (s *MessageStore) Confirm(clientMessageID string, msg domain.Message, sender domain.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ConversationID != s.conversationID {
		return false
	}

	confirmed := Entry{Message: msg, Sender: sender, Status: StatusConfirmed}
	if i := s.pendingIndex(clientMessageID); i >= 0 {
		if j := s.confirmedIndex(msg); j >= 0 {
			s.entries = slices.Delete(s.entries, i, i+1)
		} else {
			s.entries[i] = confirmed
		}
	} else if indexOf(s.entries, msg) < 0 {
		s.entries = append(s.entries, confirmed)
	}
	s.sort()
	return true
}

// Rollback removes the provisional entry correlated by clientMessageID.
func (s *MessageStore) Rollback(clientMessageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.pendingIndex(clientMessageID)
	if i < 0 {
		return false
	}
	s.entries = slices.Delete(s.entries, i, i+1)
	return true
}

// ApplyPush merges a realtime message. It returns true only when the message
// was not already present; an echo of a pending send confirms it in place.
func (s *MessageStore) ApplyPush(msg domain.Message, sender domain.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ConversationID == "" || msg.ConversationID != s.conversationID {
		return false
	}

	if i := indexOf(s.entries, msg); i >= 0 {
		if s.entries[i].Status == StatusPending {
			s.entries[i] = Entry{Message: msg, Sender: sender, Status: StatusConfirmed}
			s.sort()
		}
		return false
	}

	s.entries = append(s.entries, Entry{Message: msg, Sender: sender, Status: StatusConfirmed})
	s.sort()
	return true
}

// Contains reports whether msg is already displayed.
func (s *MessageStore) Contains(msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return indexOf(s.entries, msg) >= 0
}

// Entries returns a snapshot ordered by creation time.
func (s *MessageStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

func (s *MessageStore) pendingIndex(clientMessageID string) int {
	if clientMessageID == "" {
		return -1
	}
	return slices.IndexFunc(s.entries, func(e Entry) bool {
		return e.Status == StatusPending && e.Message.ClientMessageID == clientMessageID
	})
}

func (s *MessageStore) confirmedIndex(msg domain.Message) int {
	return slices.IndexFunc(s.entries, func(e Entry) bool {
		return e.Status == StatusConfirmed && e.Message.ID != "" && e.Message.ID == msg.ID
	})
}

func (s *MessageStore) sort() {
	slices.SortStableFunc(s.entries, func(a, b Entry) int {
		return a.Message.CreatedAt.Compare(b.Message.CreatedAt)
	})
}

func indexOf(entries []Entry, msg domain.Message) int {
	return slices.IndexFunc(entries, func(e Entry) bool { return sameMessage(e.Message, msg) })
}

// sameMessage compares by server id when both sides have one, then by the
// send correlation id, then by the content tuple.
func sameMessage(a, b domain.Message) bool {
	if a.ID != "" && b.ID != "" {
		return a.ID == b.ID
	}
	if a.ClientMessageID != "" && b.ClientMessageID != "" {
		return a.ClientMessageID == b.ClientMessageID
	}
	return a.ConversationID == b.ConversationID &&
		a.SenderID == b.SenderID &&
		a.Content == b.Content &&
		a.CreatedAt.Equal(b.CreatedAt)
}
