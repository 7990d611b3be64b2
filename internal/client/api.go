// Package client is the consuming side of relaychat: a REST client for the
// persistence and directory collaborators, owned realtime connections, and the
// reconciliation stores that merge fetched, optimistic and pushed state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/samber/lo"
)

const defaultHTTPTimeout = 10 * time.Second

// APIError is a non-2xx response. It unwraps to the matching domain error.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return domain.ErrForbidden
	case e.Status == http.StatusNotFound:
		return domain.ErrNotFound
	case e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity:
		return domain.ErrValidation
	case e.Status >= 500:
		return domain.ErrTransient
	default:
		return nil
	}
}

// APIClient calls the HTTP surface with a bearer credential. Every response
// is normalized into canonical entities before it is returned.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPIClient returns a client for baseURL. A nil httpClient gets a default
// with a ten second timeout.
func NewAPIClient(baseURL, token string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrTransient, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: lo.CoalesceOrEmpty(e.Message, http.StatusText(resp.StatusCode))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *APIClient) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var wire []wireConversation
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &wire); err != nil {
		return nil, err
	}
	return lo.Map(wire, func(w wireConversation, _ int) domain.Conversation { return w.canonical() }), nil
}

func (c *APIClient) CreateConversation(ctx context.Context, req domain.CreateConversationRequest) (domain.Conversation, error) {
	if err := domain.Validate(&req); err != nil {
		return domain.Conversation{}, err
	}
	var wire wireConversation
	if err := c.do(ctx, http.MethodPost, "/conversations", req, &wire); err != nil {
		return domain.Conversation{}, err
	}
	return wire.canonical(), nil
}

func (c *APIClient) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	var wire wireConversation
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), nil, &wire); err != nil {
		return domain.Conversation{}, err
	}
	return wire.canonical(), nil
}

func (c *APIClient) AcceptConversation(ctx context.Context, id string) (domain.Conversation, error) {
	var wire wireConversation
	if err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(id)+"/accept", nil, &wire); err != nil {
		return domain.Conversation{}, err
	}
	return wire.canonical(), nil
}

func (c *APIClient) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(id), nil, nil)
}

// ListMessages returns the conversation's messages in the order the server
// sent them; the message store sorts.
func (c *APIClient) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var wire []wireMessage
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/messages", nil, &wire); err != nil {
		return nil, err
	}
	return lo.Map(wire, func(w wireMessage, _ int) domain.Message { return w.canonical() }), nil
}

func (c *APIClient) SendMessage(ctx context.Context, req domain.SendMessageRequest) (domain.Message, error) {
	if err := domain.Validate(&req); err != nil {
		return domain.Message{}, err
	}
	var wire wireMessage
	if err := c.do(ctx, http.MethodPost, "/conversations/messages", req, &wire); err != nil {
		return domain.Message{}, err
	}
	return wire.canonical(), nil
}

func (c *APIClient) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	var wire []wireNotification
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, &wire); err != nil {
		return nil, err
	}
	return lo.Map(wire, func(w wireNotification, _ int) domain.Notification { return w.canonical() }), nil
}

func (c *APIClient) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *APIClient) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPatch, "/notifications/read-all", nil, nil)
}

func (c *APIClient) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/notifications/"+url.PathEscape(id), nil, nil)
}

// LookupUsers resolves up to domain.MaxBatchUsers ids with one POST
// /users/batch call. It satisfies directory.Directory.
func (c *APIClient) LookupUsers(ctx context.Context, ids []domain.UserID) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var wire []wireUser
	if err := c.do(ctx, http.MethodPost, "/users/batch", domain.BatchUsersRequest{IDs: ids}, &wire); err != nil {
		return nil, err
	}
	return lo.Map(wire, func(w wireUser, _ int) domain.User { return w.canonical() }), nil
}
