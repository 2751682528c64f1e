package chatsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// Client bundles the REST API, the auth flow and the socket client. They share
// one logger, one set of options and the same credentials.
type Client struct {
	HTTP   *HTTPClient
	Auth   *AuthService
	Socket *SocketClient

	logger Logger
}

// New validates cfg and wires a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := newOptions(opts)
	if o.heartbeat == 0 {
		o.heartbeat = cfg.HeartbeatInterval
	}

	h := newHTTPClient(cfg, o)

	return &Client{
		HTTP:   h,
		Auth:   newAuthService(h, o),
		Socket: newSocketClient(cfg.SocketURL, o),
		logger: o.logger,
	}, nil
}

// Close disconnects the socket and releases idle HTTP connections.
func (c *Client) Close() {
	c.Socket.Disconnect()
	c.HTTP.CloseIdleConnections()
}

// ConnectSocket opens the socket with the current access token.
func (c *Client) ConnectSocket(ctx context.Context) (*SocketClient, error) {
	token := c.Auth.AccessToken()
	if token == "" {
		return nil, newAuthenticationError("No access token available for WebSocket")
	}

	if err := c.Socket.Connect(ctx, token); err != nil {
		return nil, err
	}

	return c.Socket, nil
}

func (c *Client) GetCurrentUser(ctx context.Context) (UserProfile, error) {
	return fetch[UserProfile](ctx, c, http.MethodGet, "/api/me", nil)
}

func (c *Client) UpdateCurrentUser(ctx context.Context, updates map[string]any) (UserProfile, error) {
	return fetch[UserProfile](ctx, c, http.MethodPut, "/api/me", map[string]any{"user": updates})
}

func (c *Client) GetWorkspaces(ctx context.Context, page, limit int) (Page[Workspace], error) {
	raw, err := c.Auth.AuthenticatedRequest(ctx, http.MethodGet,
		fmt.Sprintf("/api/workspaces?page=%d&limit=%d", page, limit), nil)
	if err != nil {
		return Page[Workspace]{}, err
	}

	var p Page[Workspace]
	if err := unmarshal(raw, &p); err != nil {
		return Page[Workspace]{}, err
	}
	return p, nil
}

func (c *Client) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	return fetch[Workspace](ctx, c, http.MethodGet, workspacePath(workspaceID), nil)
}

type CreateWorkspaceRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty"`
	IsPublic    bool   `json:"is_public"`
}

func (c *Client) CreateWorkspace(ctx context.Context, req CreateWorkspaceRequest) (Workspace, error) {
	if err := validateRequest(req); err != nil {
		return Workspace{}, err
	}
	return fetch[Workspace](ctx, c, http.MethodPost, "/api/workspaces", req)
}

func (c *Client) UpdateWorkspace(ctx context.Context, workspaceID string, updates map[string]any) (Workspace, error) {
	return fetch[Workspace](ctx, c, http.MethodPut, workspacePath(workspaceID), updates)
}

func (c *Client) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	_, err := c.Auth.AuthenticatedRequest(ctx, http.MethodDelete, workspacePath(workspaceID), nil)
	return err
}

// ChannelFilter narrows GetChannels. Zero values mean no filter.
type ChannelFilter struct {
	Type   ChannelType
	Member *bool
}

func (c *Client) GetChannels(ctx context.Context, workspaceID string, filter ChannelFilter) ([]Channel, error) {
	params := map[string]any{}
	if filter.Type != "" {
		params["type"] = string(filter.Type)
	}
	if filter.Member != nil {
		params["member"] = *filter.Member
	}

	var body any
	if len(params) > 0 {
		body = params
	}

	return fetch[[]Channel](ctx, c, http.MethodGet, workspacePath(workspaceID)+"/channels", body)
}

func (c *Client) GetChannel(ctx context.Context, workspaceID, channelID string) (Channel, error) {
	return fetch[Channel](ctx, c, http.MethodGet, channelPath(workspaceID, channelID), nil)
}

type CreateChannelRequest struct {
	Name        string      `json:"name" validate:"required,max=80"`
	Type        ChannelType `json:"type" validate:"required,oneof=public private direct"`
	Description string      `json:"description,omitempty"`
	Topic       string      `json:"topic,omitempty"`
}

func (c *Client) CreateChannel(ctx context.Context, workspaceID string, req CreateChannelRequest) (Channel, error) {
	if err := validateRequest(req); err != nil {
		return Channel{}, err
	}
	return fetch[Channel](ctx, c, http.MethodPost, workspacePath(workspaceID)+"/channels", req)
}

func (c *Client) UpdateChannel(ctx context.Context, workspaceID, channelID string, updates map[string]any) (Channel, error) {
	return fetch[Channel](ctx, c, http.MethodPut, channelPath(workspaceID, channelID), updates)
}

func (c *Client) DeleteChannel(ctx context.Context, workspaceID, channelID string) error {
	_, err := c.Auth.AuthenticatedRequest(ctx, http.MethodDelete, channelPath(workspaceID, channelID), nil)
	return err
}

// MessageQuery pages through channel history. Limit defaults to 50.
type MessageQuery struct {
	Before         string
	After          string
	Limit          int `validate:"gte=0,lte=200"`
	IncludeThreads bool
}

func (c *Client) GetMessages(ctx context.Context, workspaceID, channelID string, q MessageQuery) (MessagePage, error) {
	if err := validateRequest(q); err != nil {
		return MessagePage{}, err
	}

	limit := q.Limit
	if limit == 0 {
		limit = 50
	}

	params := map[string]any{
		"limit":           limit,
		"include_threads": q.IncludeThreads,
	}
	if q.Before != "" {
		params["before"] = q.Before
	}
	if q.After != "" {
		params["after"] = q.After
	}

	raw, err := c.Auth.AuthenticatedRequest(ctx, http.MethodGet, channelPath(workspaceID, channelID)+"/messages", params)
	if err != nil {
		return MessagePage{}, err
	}

	page := MessagePage{Data: []Message{}}
	if err := unmarshal(raw, &page); err != nil {
		return MessagePage{}, err
	}
	return page, nil
}

type SendMessageRequest struct {
	Content     string       `json:"content" validate:"required,max=4000"`
	ThreadID    string       `json:"thread_id,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// SendMessage posts a message through the REST API. Use SocketClient.SendMessage
// for the realtime path.
func (c *Client) SendMessage(ctx context.Context, workspaceID, channelID string, req SendMessageRequest) (Message, error) {
	if err := validateRequest(req); err != nil {
		return Message{}, err
	}
	return fetch[Message](ctx, c, http.MethodPost, channelPath(workspaceID, channelID)+"/messages", req)
}

type editMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

func (c *Client) EditMessage(ctx context.Context, messageID, content string) (Message, error) {
	req := editMessageRequest{Content: content}
	if err := validateRequest(req); err != nil {
		return Message{}, err
	}
	return fetch[Message](ctx, c, http.MethodPut, messagePath(messageID), req)
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := c.Auth.AuthenticatedRequest(ctx, http.MethodDelete, messagePath(messageID), nil)
	return err
}

type reactionRequest struct {
	Emoji string `json:"emoji" validate:"required"`
}

func (c *Client) AddReaction(ctx context.Context, messageID, emoji string) (Reaction, error) {
	req := reactionRequest{Emoji: emoji}
	if err := validateRequest(req); err != nil {
		return Reaction{}, err
	}
	return fetch[Reaction](ctx, c, http.MethodPost, messagePath(messageID)+"/reactions", req)
}

func (c *Client) RemoveReaction(ctx context.Context, messageID, reactionID string) error {
	_, err := c.Auth.AuthenticatedRequest(ctx, http.MethodDelete,
		messagePath(messageID)+"/reactions/"+url.PathEscape(reactionID), nil)
	return err
}

func fetch[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	raw, err := c.Auth.AuthenticatedRequest(ctx, method, path, body)
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeData[T](raw)
}

func unmarshal(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(err, "cannot decode response")
	}
	return nil
}

func workspacePath(workspaceID string) string {
	return "/api/workspaces/" + url.PathEscape(workspaceID)
}

func channelPath(workspaceID, channelID string) string {
	return workspacePath(workspaceID) + "/channels/" + url.PathEscape(channelID)
}

func messagePath(messageID string) string {
	return "/api/messages/" + url.PathEscape(messageID)
}
