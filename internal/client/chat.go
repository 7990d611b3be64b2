package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/directory"
	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	eventJoinConversation    = "join_conversation"
	eventLeaveConversation   = "leave_conversation"
	eventNewMessage          = "new_message"
	eventNotificationCreated = "notification:created"

	pushResolveTimeout = 5 * time.Second
)

// Chat drives the selected conversation: room membership on the realtime
// channel, the initial fetch, optimistic sends and pushed messages.
type Chat struct {
	api      ChatAPI
	rt       Realtime
	resolver IdentityResolver
	self     domain.Identity
	store    *MessageStore
	log      *slog.Logger

	// serializes the leave/select/join step so room membership follows
	// selection order
	mu  sync.Mutex
	off func()

	hookMu    sync.Mutex
	onMessage func(e Entry)
}

func NewChat(api ChatAPI, rt Realtime, resolver IdentityResolver, self domain.Identity, log *slog.Logger) *Chat {
	c := &Chat{
		api:      api,
		rt:       rt,
		resolver: resolver,
		self:     self,
		store:    NewMessageStore(),
		log:      log,
	}
	c.off = rt.On(eventNewMessage, c.handlePush)
	return c
}

// OnMessage registers fn to be called for every pushed message that was not
// already displayed.
func (c *Chat) OnMessage(fn func(e Entry)) {
	c.hookMu.Lock()
	c.onMessage = fn
	c.hookMu.Unlock()
}

func (c *Chat) Store() *MessageStore {
	return c.store
}

// Select makes conv the live conversation. The previous room is left and the
// new one joined before the fetch, so pushes during the fetch are not lost.
// A pending invitation for the signed-in user is accepted first. Neither a
// failed join nor a failed accept prevents reading; a join failure is returned
// once the history is loaded.
func (c *Chat) Select(ctx context.Context, conv domain.Conversation) error {
	c.mu.Lock()
	if prev := c.store.Selected(); prev != "" && prev != conv.ID {
		if err := c.rt.Emit(eventLeaveConversation, prev); err != nil {
			c.log.Warn("Failed to leave conversation", "conversation_id", prev, "error", err)
		}
	}
	gen := c.store.Select(conv.ID)
	joinErr := c.rt.Emit(eventJoinConversation, conv.ID)
	c.mu.Unlock()
	if joinErr != nil {
		c.log.Warn("Failed to join conversation; pushes will not arrive", "conversation_id", conv.ID, "error", joinErr)
		joinErr = fmt.Errorf("join %s: %w", conv.ID, joinErr)
	}

	if slices.Contains(conv.Pending, c.self.UserID) {
		if _, err := c.api.AcceptConversation(ctx, conv.ID); err != nil {
			c.log.Warn("Failed to accept conversation", "conversation_id", conv.ID, "error", err)
		}
	}

	messages, err := c.api.ListMessages(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("fetch messages for %s: %w", conv.ID, err)
	}

	// Checked before and after enrichment, which may hit the directory.
	if !c.store.Current(gen) || !c.store.Replace(gen, c.enrich(ctx, messages)) {
		c.log.Debug("Discarding stale fetch", "conversation_id", conv.ID)
	}
	return joinErr
}

// Deselect leaves the live room and clears the store.
func (c *Chat) Deselect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev := c.store.Selected(); prev != "" {
		if err := c.rt.Emit(eventLeaveConversation, prev); err != nil {
			c.log.Warn("Failed to leave conversation", "conversation_id", prev, "error", err)
		}
	}
	c.store.Deselect()
}

// Send posts content to the live conversation. The message is displayed as
// pending immediately; on failure it is removed and the error returned.
func (c *Chat) Send(ctx context.Context, content string) (domain.Message, error) {
	conversationID := c.store.Selected()
	if conversationID == "" {
		return domain.Message{}, fmt.Errorf("%w: no conversation selected", domain.ErrValidation)
	}

	req := domain.SendMessageRequest{
		ConversationID:  conversationID,
		Content:         content,
		ClientMessageID: uuid.NewString(),
	}
	if err := domain.Validate(&req); err != nil {
		return domain.Message{}, err
	}

	c.store.AddProvisional(domain.Message{
		ConversationID:  req.ConversationID,
		SenderID:        c.self.UserID,
		Content:         req.Content,
		ClientMessageID: req.ClientMessageID,
		CreatedAt:       time.Now().UTC(),
	}, c.self)

	msg, err := c.api.SendMessage(ctx, req)
	if err != nil {
		c.store.Rollback(req.ClientMessageID)
		return domain.Message{}, err
	}
	if msg.ClientMessageID == "" {
		msg.ClientMessageID = req.ClientMessageID
	}
	c.store.Confirm(req.ClientMessageID, msg, c.self)
	return msg, nil
}

// Participants resolves conv's members to identities, falling back to
// placeholders for ids the directory cannot resolve.
func (c *Chat) Participants(ctx context.Context, conv domain.Conversation) []domain.Identity {
	identities := c.resolve(ctx, conv.ParticipantIDs)
	return lo.Map(conv.ParticipantIDs, func(id domain.UserID, _ int) domain.Identity {
		return directory.Display(identities, id)
	})
}

// Close deselects and stops listening for pushes.
func (c *Chat) Close() {
	c.Deselect()
	c.off()
}

func (c *Chat) handlePush(data json.RawMessage) {
	msg, err := DecodeMessage(data)
	if err != nil {
		c.log.Warn("Dropping malformed message push", "error", err)
		return
	}
	if msg.ConversationID == "" || msg.ConversationID != c.store.Selected() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushResolveTimeout)
	defer cancel()
	sender := directory.Display(c.resolve(ctx, []domain.UserID{msg.SenderID}), msg.SenderID)

	if !c.store.ApplyPush(msg, sender) {
		return
	}
	c.log.Debug("Applied pushed message", "conversation_id", msg.ConversationID, "message_id", msg.ID)

	c.hookMu.Lock()
	fn := c.onMessage
	c.hookMu.Unlock()
	if fn != nil {
		fn(Entry{Message: msg, Sender: sender, Status: StatusConfirmed})
	}
}

func (c *Chat) enrich(ctx context.Context, messages []domain.Message) []Entry {
	ids := lo.Map(messages, func(m domain.Message, _ int) domain.UserID { return m.SenderID })
	identities := c.resolve(ctx, ids)
	return lo.Map(messages, func(m domain.Message, _ int) Entry {
		return Entry{Message: m, Sender: directory.Display(identities, m.SenderID), Status: StatusConfirmed}
	})
}

func (c *Chat) resolve(ctx context.Context, ids []domain.UserID) map[domain.UserID]domain.Identity {
	identities := map[domain.UserID]domain.Identity{c.self.UserID: c.self}
	rest := lo.Without(lo.Uniq(ids), c.self.UserID)
	if len(rest) == 0 {
		return identities
	}

	resolved, err := c.resolver.ResolveMany(ctx, rest)
	if err != nil {
		c.log.Warn("Identity resolution degraded", "error", err)
	}
	for id, identity := range resolved {
		identities[id] = identity
	}
	return identities
}
