package chatsdk

import (
	"fmt"
	"net/url"

	"github.com/pkg/errors"
)

var (
	ErrConnectionClosed = errors.New("connection has been closed")
	ErrCannotConnect    = errors.New("connection cannot be established")
	ErrTerminated       = errors.New("program exit")
	ErrRateLimit        = errors.New("rate limit exceeded")

	ErrNotConnected = errors.New("socket not connected")
	ErrNotJoined    = errors.New("not joined to channel")
)

// ConnectionError is returned by Connect when the transport cannot be opened.
type ConnectionError struct {
	err error
	url url.URL
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("socket connection failed: %s to %s", e.err, redactToken(e.url))
}

func (e *ConnectionError) Unwrap() error { return e.err }

// URL returns the endpoint that was dialed, with the token redacted.
func (e *ConnectionError) URL() string { return redactToken(e.url) }

func wrapConnectionError(err error, u url.URL) error {
	if err == nil {
		return nil
	}
	return &ConnectionError{
		err: err,
		url: u,
	}
}

func notJoined(channelID string) error {
	return errors.Wrapf(ErrNotJoined, "channel %s", channelID)
}

func redactToken(u url.URL) string {
	q := u.Query()
	if q.Has(tokenQueryParam) {
		q.Set(tokenQueryParam, "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
