package chatsdk

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventError     = "phx_error"
	EventClose     = "phx_close"
	EventHeartbeat = "heartbeat"

	EventSendMessage       = "send_message"
	EventEditMessage       = "edit_message"
	EventDeleteMessage     = "delete_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventAddReaction       = "add_reaction"
	EventRemoveReaction    = "remove_reaction"
	EventMarkRead          = "mark_read"
	EventLoadOlderMessages = "load_older_messages"

	// EventNewMessage is pushed by the server; listed for handler registration.
	EventNewMessage = "new_message"

	channelTopicPrefix = "channel:"
	heartbeatTopic     = "phoenix"
)

var errMalformedEnvelope = errors.New("malformed envelope")

// Payload is the opaque body of an envelope.
type Payload map[string]any

// Envelope is the unit exchanged over the socket.
type Envelope struct {
	Topic   string  `json:"topic"`
	Event   string  `json:"event"`
	Payload Payload `json:"payload"`
	Ref     string  `json:"ref"`
}

// ChannelTopic returns the protocol topic for a channel id.
func ChannelTopic(channelID string) string {
	return channelTopicPrefix + channelID
}

func (e Envelope) encode() ([]byte, error) {
	if e.Payload == nil {
		e.Payload = Payload{}
	}
	return json.Marshal(e)
}

// decodeEnvelope reads an inbound frame. A missing or null payload yields an
// empty Payload; any other payload that is not an object is malformed.
func decodeEnvelope(data []byte) (Envelope, error) {
	if !gjson.ValidBytes(data) {
		return Envelope{}, errMalformedEnvelope
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Envelope{}, errors.Wrap(errMalformedEnvelope, "not an object")
	}

	res := root.Get("payload")

	env := Envelope{
		Topic:   root.Get("topic").String(),
		Event:   root.Get("event").String(),
		Ref:     root.Get("ref").String(),
		Payload: Payload{},
	}

	switch {
	case res.IsObject():
		if err := json.Unmarshal([]byte(res.Raw), &env.Payload); err != nil {
			return Envelope{}, errors.Wrap(errMalformedEnvelope, err.Error())
		}
	case res.Exists() && res.Type != gjson.Null:
		return Envelope{}, errors.Wrap(errMalformedEnvelope, "payload is not an object")
	}

	return env, nil
}

type clock func() time.Time

// refGenerator produces "ref_<unix millis>" references, strictly increasing
// even when called twice within the same millisecond.
type refGenerator struct {
	mu   sync.Mutex
	now  clock
	last int64
}

func newRefGenerator(now clock) *refGenerator {
	if now == nil {
		now = time.Now
	}
	return &refGenerator{now: now}
}

func (g *refGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms

	return "ref_" + strconv.FormatInt(ms, 10)
}
