package chatsdk

import (
	"net/http"
	"time"

	"github.com/fasthttp/websocket"
)

type options struct {
	logger         Logger
	dialer         *websocket.Dialer
	connFactory    ConnectionFactory
	paramsGetter   OpenConnectionParamsGetter
	httpClient     *http.Client
	metrics        *Metrics
	now            clock
	sleep          func(time.Duration) <-chan time.Time
	heartbeat      time.Duration
	tempIDGenerate func() string
}

type Option func(*options)

func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDialer sets the websocket dialer used by the default connection factory.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithConnectionFactory replaces the websocket transport altogether.
func WithConnectionFactory(f ConnectionFactory) Option {
	return func(o *options) { o.connFactory = f }
}

// WithOpenConnectionParams overrides how the dial URL is derived from the token.
func WithOpenConnectionParams(g OpenConnectionParamsGetter) Option {
	return func(o *options) { o.paramsGetter = g }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithHeartbeat sends a Phoenix heartbeat every interval while connected.
func WithHeartbeat(interval time.Duration) Option {
	return func(o *options) { o.heartbeat = interval }
}

// WithTempIDGenerator sets how temp_id is filled when SendMessage gets an empty one.
func WithTempIDGenerator(f func() string) Option {
	return func(o *options) { o.tempIDGenerate = f }
}

func withClock(now clock) Option {
	return func(o *options) { o.now = now }
}

func withSleep(sleep func(time.Duration) <-chan time.Time) Option {
	return func(o *options) { o.sleep = sleep }
}

func newOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = newDefaultLogger()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.sleep == nil {
		o.sleep = time.After
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}
	return o
}
