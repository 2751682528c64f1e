package chatsdk

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const recvBufferSize = 32

type (
	// Handler receives the payload of an inbound event. Returned errors and
	// panics are logged and never stop the receive loop.
	Handler func(Payload) error

	// Callbacks maps event names to the handler of a joined channel.
	Callbacks map[string]Handler

	subscription struct {
		topic     string
		callbacks Callbacks
	}

	// SocketClient multiplexes channel topics over one socket connection.
	//
	// Join and every channel-scoped sender are fire-and-forget: they return once
	// the frame is written, no reply is awaited. There is no automatic
	// reconnection; after the transport is lost IsConnected reports false and the
	// caller may Connect again.
	SocketClient struct {
		logger      Logger
		paramsRepo  OpenConnectionParamsRepo
		connFactory ConnectionFactory
		metrics     *Metrics
		refs        *refGenerator
		tempID      func() string
		heartbeat   time.Duration
		keepAlive   PassiveKeepAliveHandler

		// opMu serializes Connect and Disconnect.
		opMu sync.Mutex

		mu        sync.RWMutex
		conn      Connection
		connected bool
		channels  map[string]*subscription
		cancel    context.CancelFunc
		wg        sync.WaitGroup

		handlers *EventEmitter[string, Payload]
	}
)

// NewSocketClient creates a disconnected client for the given ws:// or wss:// URL.
func NewSocketClient(socketURL string, opts ...Option) *SocketClient {
	o := newOptions(opts)
	return newSocketClient(socketURL, o)
}

func newSocketClient(socketURL string, o options) *SocketClient {
	log := o.logger.WithField("type", "socket_client")

	getter := o.paramsGetter
	if getter == nil {
		getter = TokenQueryParamsGetter(socketURL)
	}

	factory := o.connFactory
	if factory == nil {
		factory = NewWebsocketFactory(o.logger, o.dialer, ErrorAdapters{})
	}

	tempID := o.tempIDGenerate
	if tempID == nil {
		tempID = uuid.NewString
	}

	c := &SocketClient{
		logger:      log,
		paramsRepo:  NewOpenConnectionParamsRepo(log, getter),
		connFactory: factory,
		metrics:     o.metrics,
		refs:        newRefGenerator(o.now),
		tempID:      tempID,
		heartbeat:   o.heartbeat,
		keepAlive:   KeepAliveReplyPingWithPong,
		channels:    make(map[string]*subscription),
	}

	c.handlers = NewEventEmitter[string, Payload](func(event string, err error) {
		c.metrics.handlerFailed("global")
		c.logger.Errorf("error in global handler for %s: %s", event, err)
	})

	return c
}

// Connect opens the transport, passing token as a query parameter, and starts
// the receive loop. It is a no-op when already connected. A failure is a
// *ConnectionError wrapping the transport error.
func (c *SocketClient) Connect(ctx context.Context, token string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.IsConnected() {
		return nil
	}

	// Leftovers of a connection lost without Disconnect.
	c.teardown()

	params, err := c.paramsRepo.Get(ctx, token)
	if err != nil {
		return wrapConnectionError(errors.Wrap(ErrCannotConnect, err.Error()), url.URL{})
	}

	recv := make(chan Frame, recvBufferSize)
	conn := c.connFactory(params, recv)

	if err := conn.Open(ctx); err != nil {
		conn.Close()
		c.logger.Errorf("socket connection failed: %s", err)
		return wrapConnectionError(err, params.URL)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.listen(loopCtx, conn, recv)

	if c.heartbeat > 0 {
		c.wg.Add(1)
		go c.runHeartbeat(loopCtx, conn, c.heartbeat)
	}

	c.metrics.setConnected(true)
	c.logger.Info("socket connected")

	return nil
}

// Disconnect stops the receive loop, closes the transport and forgets every
// joined channel. It is safe to call when already disconnected. It must not be
// called from a Handler, since it waits for the receive loop to return.
func (c *SocketClient) Disconnect() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.teardown() {
		c.logger.Info("socket disconnected")
	}
}

// teardown returns true when a live connection was torn down.
func (c *SocketClient) teardown() bool {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	cancel, conn := c.cancel, c.conn
	c.cancel, c.conn = nil, nil
	c.channels = make(map[string]*subscription)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	if conn != nil {
		conn.Close()
	}

	c.metrics.setConnected(false)

	return wasConnected
}

// On registers a handler for event regardless of topic. Handlers of the same
// event run in registration order.
func (c *SocketClient) On(event string, h Handler) {
	c.handlers.On(event, h)
}

func (c *SocketClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connected
}

func (c *SocketClient) IsJoined(channelID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.channels[channelID]
	return ok
}

// Joined returns the ids of the joined channels, sorted.
func (c *SocketClient) Joined() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.channels))
	for id := range c.channels {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Join sends phx_join for "channel:<channelID>" and records callbacks for it.
// The subscription is recorded as soon as the frame is written.
func (c *SocketClient) Join(ctx context.Context, channelID string, callbacks Callbacks) error {
	conn, ok := c.activeConn()
	if !ok {
		return ErrNotConnected
	}

	topic := ChannelTopic(channelID)

	if err := c.push(ctx, conn, Envelope{
		Topic:   topic,
		Event:   EventJoin,
		Payload: Payload{},
		Ref:     c.refs.Next(),
	}); err != nil {
		return err
	}

	cbs := make(Callbacks, len(callbacks))
	for event, h := range callbacks {
		cbs[event] = h
	}

	c.mu.Lock()
	if c.conn != conn || !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.channels[channelID] = &subscription{topic: topic, callbacks: cbs}
	c.mu.Unlock()

	c.logger.Infof("joined channel: %s", channelID)

	return nil
}

// Leave forgets channelID and, when connected, sends phx_leave for it. The
// subscription is removed even if the send fails. Leaving a channel that was
// never joined is a no-op.
func (c *SocketClient) Leave(ctx context.Context, channelID string) error {
	c.mu.Lock()
	sub, ok := c.channels[channelID]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.channels, channelID)
	conn, connected := c.conn, c.connected
	c.mu.Unlock()

	c.logger.Infof("left channel: %s", channelID)

	if !connected {
		return nil
	}

	return c.push(ctx, conn, Envelope{
		Topic:   sub.topic,
		Event:   EventLeave,
		Payload: Payload{},
		Ref:     c.refs.Next(),
	})
}

// SendMessage posts content to a joined channel. An empty tempID is replaced by
// a generated one.
func (c *SocketClient) SendMessage(ctx context.Context, channelID, content, tempID string) error {
	if tempID == "" {
		tempID = c.tempID()
	}
	return c.sendChannelEvent(ctx, channelID, EventSendMessage, Payload{
		"content": content,
		"temp_id": tempID,
	})
}

func (c *SocketClient) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	return c.sendChannelEvent(ctx, channelID, EventEditMessage, Payload{
		"message_id": messageID,
		"content":    content,
	})
}

func (c *SocketClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.sendChannelEvent(ctx, channelID, EventDeleteMessage, Payload{
		"message_id": messageID,
	})
}

func (c *SocketClient) StartTyping(ctx context.Context, channelID string) error {
	return c.sendChannelEvent(ctx, channelID, EventTypingStart, Payload{})
}

func (c *SocketClient) StopTyping(ctx context.Context, channelID string) error {
	return c.sendChannelEvent(ctx, channelID, EventTypingStop, Payload{})
}

func (c *SocketClient) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return c.sendChannelEvent(ctx, channelID, EventAddReaction, Payload{
		"message_id": messageID,
		"emoji":      emoji,
	})
}

func (c *SocketClient) RemoveReaction(ctx context.Context, channelID, reactionID string) error {
	return c.sendChannelEvent(ctx, channelID, EventRemoveReaction, Payload{
		"reaction_id": reactionID,
	})
}

func (c *SocketClient) MarkRead(ctx context.Context, channelID, messageID string) error {
	return c.sendChannelEvent(ctx, channelID, EventMarkRead, Payload{
		"message_id": messageID,
	})
}

// LoadOlderMessages asks the server for history before beforeID. The messages
// arrive as server-pushed events, not as a return value.
func (c *SocketClient) LoadOlderMessages(ctx context.Context, channelID, beforeID string) error {
	return c.sendChannelEvent(ctx, channelID, EventLoadOlderMessages, Payload{
		"before_id": beforeID,
	})
}

func (c *SocketClient) sendChannelEvent(ctx context.Context, channelID, event string, payload Payload) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	sub, joined := c.channels[channelID]
	c.mu.RUnlock()

	if !connected {
		return ErrNotConnected
	}
	if !joined {
		return notJoined(channelID)
	}

	return c.push(ctx, conn, Envelope{
		Topic:   sub.topic,
		Event:   event,
		Payload: payload,
		Ref:     c.refs.Next(),
	})
}

func (c *SocketClient) activeConn() (Connection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.conn, c.connected
}

func (c *SocketClient) push(ctx context.Context, conn Connection, env Envelope) error {
	data, err := env.encode()
	if err != nil {
		return errors.Wrapf(err, "cannot encode %s envelope", env.Event)
	}

	if err := conn.Write(ctx, NewTextFrame(data)); err != nil {
		return errors.Wrapf(err, "cannot send %s to %s", env.Event, env.Topic)
	}

	c.metrics.frameSent(env.Event)

	return nil
}

// listen is the receive loop. Frames are dispatched one at a time, in the
// order the transport produced them.
func (c *SocketClient) listen(ctx context.Context, conn Connection, recv <-chan Frame) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.CloseChan():
			c.markDisconnected(conn, conn.CloseErr())
			return
		case f := <-recv:
			switch f.Type {
			case TextFrame, BinaryFrame:
				c.dispatch(f.Data)
			case PingFrame, PongFrame:
				c.keepAlive(ctx, conn, f)
			case CloseFrame:
				c.logger.Infof("socket closed by server: code=%d %s", f.Code, f.Data)
				c.markDisconnected(conn, ErrConnectionClosed)
				return
			}
		}
	}
}

func (c *SocketClient) dispatch(data []byte) {
	env, err := decodeEnvelope(data)
	if err != nil {
		c.logger.Errorf("error handling message: %s", err)
		return
	}

	c.metrics.frameReceived(env.Event)

	var cb Handler

	c.mu.RLock()
	for _, sub := range c.channels {
		if sub.topic == env.Topic {
			cb = sub.callbacks[env.Event]
			break
		}
	}
	c.mu.RUnlock()

	if cb != nil {
		if err := safeCall[Payload](cb, env.Payload); err != nil {
			c.metrics.handlerFailed("channel")
			c.logger.Errorf("error in callback for %s: %s", env.Event, err)
		}
	}

	c.handlers.Emit(env.Event, env.Payload)
}

func (c *SocketClient) markDisconnected(conn Connection, reason error) {
	c.mu.Lock()
	if c.conn == conn {
		c.connected = false
	}
	c.mu.Unlock()

	conn.Close()
	c.metrics.setConnected(false)

	if reason == nil || errors.Is(reason, ErrTerminated) {
		c.logger.Info("socket connection closed")
		return
	}
	c.logger.Warnf("socket connection lost: %s", reason)
}
