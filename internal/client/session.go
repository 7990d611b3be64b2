package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/Tyrowin/relaychat/internal/directory"
	"github.com/Tyrowin/relaychat/internal/domain"
)

const (
	chatPath          = "/ws/chat"
	notificationsPath = "/ws/notifications"
)

type SessionConfig struct {
	// BaseURL is the http(s) root serving both the REST and realtime surfaces.
	BaseURL string
	Token   string
	UserID  domain.UserID
	// Origin is sent on the realtime handshakes when set.
	Origin     string
	HTTPClient *http.Client
}

// Session owns one signed-in user's connections. Both realtime channels are
// created together and torn down together by Close.
type Session struct {
	API      *APIClient
	Resolver *directory.Resolver
	Self     domain.Identity
	Chat     *Chat
	Inbox    *Inbox

	chatConn         *Conn
	notificationConn *Conn
	log              *slog.Logger
}

// Open authenticates both realtime channels and wires the chat and inbox
// controllers. It fails with domain.ErrUnauthorized if the credential is
// rejected.
func Open(ctx context.Context, cfg SessionConfig, log *slog.Logger) (*Session, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	wsBase := *base
	switch base.Scheme {
	case "https":
		wsBase.Scheme = "wss"
	default:
		wsBase.Scheme = "ws"
	}

	header := http.Header{}
	if cfg.Origin != "" {
		header.Set("Origin", cfg.Origin)
	}

	log = log.With("user_id", cfg.UserID)
	api := NewAPIClient(cfg.BaseURL, cfg.Token, cfg.HTTPClient)
	resolver := directory.NewResolver(api, log)

	chatConn, err := Dial(ctx, wsBase.JoinPath(chatPath).String(), cfg.Token, header, log)
	if err != nil {
		return nil, err
	}
	notificationConn, err := Dial(ctx, wsBase.JoinPath(notificationsPath).String(), cfg.Token, header, log)
	if err != nil {
		_ = chatConn.Close()
		return nil, err
	}

	identities, err := resolver.ResolveMany(ctx, []domain.UserID{cfg.UserID})
	if err != nil {
		log.Warn("Could not resolve own identity", "error", err)
	}
	self := directory.Display(identities, cfg.UserID)
	resolver.Remember(self)

	s := &Session{
		API:              api,
		Resolver:         resolver,
		Self:             self,
		Chat:             NewChat(api, chatConn, resolver, self, log),
		Inbox:            NewInbox(api, notificationConn, log),
		chatConn:         chatConn,
		notificationConn: notificationConn,
		log:              log,
	}
	log.Info("Session opened", "name", self.DisplayName)
	return s, nil
}

// Done is closed when either realtime channel stops.
func (s *Session) Done() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		select {
		case <-s.chatConn.Done():
		case <-s.notificationConn.Done():
		}
		close(done)
	}()
	return done
}

// Close leaves the live room and closes both channels.
func (s *Session) Close() error {
	s.Chat.Close()
	s.Inbox.Close()
	err := errors.Join(s.chatConn.Close(), s.notificationConn.Close())
	s.log.Info("Session closed")
	return err
}
