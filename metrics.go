package chatsdk

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "chatsdk"

	// otherEventLabel stands for any event name not listed in knownEvents.
	otherEventLabel = "other"
)

// knownEvents bounds the event label of received frames, whose names come
// from the server.
var knownEvents = map[string]struct{}{
	EventJoin:              {},
	EventLeave:             {},
	EventReply:             {},
	EventError:             {},
	EventClose:             {},
	EventHeartbeat:         {},
	EventSendMessage:       {},
	EventEditMessage:       {},
	EventDeleteMessage:     {},
	EventTypingStart:       {},
	EventTypingStop:        {},
	EventAddReaction:       {},
	EventRemoveReaction:    {},
	EventMarkRead:          {},
	EventLoadOlderMessages: {},
	EventNewMessage:        {},
}

func eventLabel(event string) string {
	if _, ok := knownEvents[event]; ok {
		return event
	}
	return otherEventLabel
}

// Metrics holds the optional collectors of a client. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	handlerErrors  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	connected      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "socket",
			Name:      "frames_sent_total",
			Help:      "Envelopes written to the socket, by event.",
		}, []string{"event"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "socket",
			Name:      "frames_received_total",
			Help:      "Envelopes read from the socket, by event (unknown events as \"other\").",
		}, []string{"event"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "socket",
			Name:      "handler_errors_total",
			Help:      "Handler invocations that returned an error or panicked.",
		}, []string{"scope"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "REST requests by method and response status (0 on transport failure).",
		}, []string{"method", "status"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "socket",
			Name:      "connected",
			Help:      "1 while the socket client is connected.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.framesSent, m.framesReceived, m.handlerErrors, m.httpRequests, m.connected,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) frameSent(event string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(event).Inc()
}

func (m *Metrics) frameReceived(event string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(eventLabel(event)).Inc()
}

func (m *Metrics) handlerFailed(scope string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(scope).Inc()
}

func (m *Metrics) httpRequest(method string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) setConnected(v bool) {
	if m == nil {
		return
	}
	if v {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}
