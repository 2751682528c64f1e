package chatsdk

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) (*Client, *connRecorder) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Timeout = 2 * time.Second

	rec := &connRecorder{}
	opts = append([]Option{
		WithLogger(NewNopLogger()),
		WithConnectionFactory(rec.factory),
		withSleep(immediateSleep),
	}, opts...)

	c, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	c.Auth.SetTokens("a1", "r1")

	return c, rec
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = ""

	_, err := New(cfg)

	assert.Error(t, err)
}

func TestGetWorkspacesDecodesPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/workspaces", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer a1", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, `{
			"data": [{"id":"w1","name":"Acme","is_public":true,"member_count":3}],
			"pagination": {"page":2,"per_page":10,"total_pages":2,"total_count":11}
		}`)
	})
	c, _ := newTestClient(t, mux)

	page, err := c.GetWorkspaces(context.Background(), 2, 10)

	require.NoError(t, err)
	assert.Equal(t, []Workspace{{ID: "w1", Name: "Acme", IsPublic: true, MemberCount: 3}}, page.Data)
	assert.Equal(t, Pagination{Page: 2, PerPage: 10, TotalPages: 2, TotalCount: 11}, page.Pagination)
}

func TestGetChannelsSendsFilter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/workspaces/w1/channels", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "private", r.URL.Query().Get("type"))
		assert.Equal(t, "true", r.URL.Query().Get("member"))
		_, _ = io.WriteString(w, `{"data":[{"id":"c1","name":"ops","type":"private","workspace_id":"w1"}]}`)
	})
	c, _ := newTestClient(t, mux)

	member := true
	channels, err := c.GetChannels(context.Background(), "w1", ChannelFilter{Type: ChannelPrivate, Member: &member})

	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, ChannelPrivate, channels[0].Type)
}

func TestGetMessagesDefaultsAndDecoding(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/workspaces/w1/channels/c1/messages", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "50", q.Get("limit"))
		assert.Equal(t, "false", q.Get("include_threads"))
		assert.Equal(t, "m9", q.Get("before"))
		assert.False(t, q.Has("after"))
		_, _ = io.WriteString(w, `{"data":[{"id":"m1","content":"hi","channel_id":"c1"}],"has_more":true}`)
	})
	c, _ := newTestClient(t, mux)

	page, err := c.GetMessages(context.Background(), "w1", "c1", MessageQuery{Before: "m9"})

	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Data, 1)
	msg := page.Data[0]
	assert.Equal(t, "hi", msg.Content)
	assert.NotNil(t, msg.Attachments)
	assert.NotNil(t, msg.Reactions)
	assert.NotNil(t, msg.Mentions)
}

func TestGetMessagesEmptyResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c, _ := newTestClient(t, mux)

	page, err := c.GetMessages(context.Background(), "w1", "c1", MessageQuery{})

	require.NoError(t, err)
	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)
}

func TestCreateChannelValidatesLocally(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	c, _ := newTestClient(t, mux)

	_, err := c.CreateChannel(context.Background(), "w1", CreateChannelRequest{Name: "ops", Type: "secret"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindValidation, apiErr.Kind)
	assert.Equal(t, []string{"must be one of: public private direct"}, apiErr.Details["type"])
	assert.Zero(t, calls.Load())
}

func TestSendMessageOverREST(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/workspaces/w1/channels/c1/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"content":"hello"}`, string(body))
		_, _ = io.WriteString(w, `{"data":{"id":"m2","content":"hello","mentions":["u2"]}}`)
	})
	c, _ := newTestClient(t, mux)

	msg, err := c.SendMessage(context.Background(), "w1", "c1", SendMessageRequest{Content: "hello"})

	require.NoError(t, err)
	assert.Equal(t, "m2", msg.ID)
	assert.Equal(t, []string{"u2"}, msg.Mentions)
	assert.Empty(t, msg.Attachments)
}

func TestUpdateCurrentUserWrapsBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"user":{"name":"Ada"}}`, string(body))
		_, _ = io.WriteString(w, `{"data":{"id":"u1","email":"ada@example.com","name":"Ada"}}`)
	})
	c, _ := newTestClient(t, mux)

	me, err := c.UpdateCurrentUser(context.Background(), map[string]any{"name": "Ada"})

	require.NoError(t, err)
	assert.Equal(t, "u1", me.ID)
	assert.Equal(t, "Ada", me.Name)
}

func TestRemoveReactionEscapesPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/messages/m1/reactions/r%2F1", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNoContent)
	})
	c, _ := newTestClient(t, mux)

	assert.NoError(t, c.RemoveReaction(context.Background(), "m1", "r/1"))
}

func TestConnectSocketRequiresToken(t *testing.T) {
	c, rec := newTestClient(t, http.NewServeMux())
	c.Auth.SetTokens("", "")

	_, err := c.ConnectSocket(context.Background())

	assert.True(t, IsKind(err, KindAuthentication))
	assert.Empty(t, rec.conns)
}

func TestConnectSocketUsesAccessToken(t *testing.T) {
	c, rec := newTestClient(t, http.NewServeMux())

	socket, err := c.ConnectSocket(context.Background())

	require.NoError(t, err)
	assert.Same(t, c.Socket, socket)
	assert.True(t, socket.IsConnected())
	assert.Equal(t, "a1", rec.last(t).params.URL.Query().Get("token"))

	c.Close()
	assert.False(t, socket.IsConnected())
}
