package chatsdk

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
)

const defaultWriteTimeout = 10 * time.Second

type (
	ErrAdapter func(*websocket.Conn, *http.Response, error) error

	ErrorAdapters struct {
		OnDial ErrAdapter
	}

	writeRequest struct {
		frame Frame
		errC  chan error
	}

	// WsConnection is the websocket implementation of Connection. A single
	// goroutine reads from the wire and another one owns all writes.
	WsConnection struct {
		errAdapters     ErrorAdapters
		params          OpenConnectionParams
		logger          Logger
		dialer          *websocket.Dialer
		conn            *websocket.Conn
		closeChan       CloseChan
		closeOnce       sync.Once
		closeReason     error
		closeReasonOnce sync.Once
		recv            chan<- Frame      // frames received over the wire
		send            chan writeRequest // frames to be sent over the wire
		writeTimeout    time.Duration
	}
)

func NewWebsocketConnection(
	dialer *websocket.Dialer,
	params OpenConnectionParams,
	logger Logger,
	recvChan chan<- Frame,
	errorAdapters ErrorAdapters,
) *WsConnection {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WsConnection{
		errAdapters:  errorAdapters,
		dialer:       dialer,
		params:       params,
		recv:         recvChan,
		send:         make(chan writeRequest),
		closeChan:    make(CloseChan),
		writeTimeout: defaultWriteTimeout,
		logger:       logger.WithField("net", "ws_connection"),
	}
}

func NewWebsocketFactory(
	logger Logger,
	dialer *websocket.Dialer,
	errorAdapters ErrorAdapters,
) ConnectionFactory {
	return func(params OpenConnectionParams, recvChan chan<- Frame) Connection {
		return NewWebsocketConnection(
			dialer,
			params,
			logger,
			recvChan,
			errorAdapters,
		)
	}
}

// Open dials the endpoint and spawns the read and write goroutines. The
// context only bounds the handshake.
func (w *WsConnection) Open(ctx context.Context) error {
	conn, resp, err := w.dialer.DialContext(ctx, w.params.URL.String(), w.params.Header)

	if err = w.handleDialError(conn, resp, err); err != nil {
		w.logger.Errorf("connection err to %s: %s", redactToken(w.params.URL), err)
		return err
	}

	w.logger.Debugf("success opening connection to %s", redactToken(w.params.URL))

	w.conn = conn

	// Control frames are forwarded so the owner decides how to answer them.
	conn.SetPingHandler(func(appData string) error {
		w.logger.Debug("<= [PING]")
		w.push(NewPingFrame([]byte(appData)))
		return nil
	})

	conn.SetPongHandler(func(appData string) error {
		w.logger.Debug("<= [PONG]")
		w.push(NewPongFrame([]byte(appData)))
		return nil
	})

	conn.SetCloseHandler(func(code int, text string) error {
		w.logger.Debug("<= [CLOSE]")
		w.push(NewCloseFrame(code, []byte(text)))
		return nil
	})

	go w.read()
	go w.write()

	return nil
}

// Write hands f to the writer goroutine and waits for the outcome.
func (w *WsConnection) Write(ctx context.Context, f Frame) error {
	select {
	case <-w.closeChan:
		return ErrConnectionClosed
	default:
	}

	req := writeRequest{frame: f, errC: make(chan error, 1)}

	select {
	case w.send <- req:
	case <-w.closeChan:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.errC:
		return err
	case <-w.closeChan:
		select {
		case err := <-req.errC:
			return err
		default:
			return ErrConnectionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close terminates the connection. Safe to call more than once.
func (w *WsConnection) Close() {
	w.setCloseReason(ErrTerminated)
	w.safeClose()
}

func (w *WsConnection) CloseChan() CloseChan {
	return w.closeChan
}

// CloseErr explains why the connection was closed. ErrTerminated means we
// closed it ourselves.
func (w *WsConnection) CloseErr() error {
	select {
	case <-w.closeChan:
		return w.closeReason
	default:
		return nil
	}
}

func (w *WsConnection) push(f Frame) {
	select {
	case w.recv <- f:
	case <-w.closeChan:
	}
}

func (w *WsConnection) read() {
	defer w.safeClose()

	for {
		messageType, bts, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case <-w.closeChan:
				w.setCloseReason(ErrTerminated)
			default:
				w.logger.Errorf("error occurred on websocket read: %s", err)
				w.setCloseReason(errors.Wrap(
					ErrConnectionClosed,
					"error occurred on websocket read: "+err.Error(),
				))
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			w.logger.Debug("<= [BIN]")
			w.push(Frame{Type: BinaryFrame, Data: bts})
		default:
			w.logger.Debugf("<= [DATA] %s", bts)
			w.push(NewTextFrame(bts))
		}
	}
}

func (w *WsConnection) write() {
	defer w.safeClose()

	for {
		select {
		case <-w.closeChan:
			return
		case req := <-w.send:
			select {
			case <-w.closeChan:
				req.errC <- ErrConnectionClosed
				return
			default:
			}

			err := w.writeFrame(req.frame)
			req.errC <- err

			if err != nil {
				if websocket.IsCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					w.setCloseReason(ErrConnectionClosed)
				} else {
					w.setCloseReason(errors.Wrap(ErrConnectionClosed, err.Error()))
				}
				return
			}
		}
	}
}

func (w *WsConnection) writeFrame(f Frame) error {
	deadline := time.Now().Add(w.writeTimeout)
	_ = w.conn.SetWriteDeadline(deadline)

	switch f.Type {
	case PingFrame:
		w.logger.Debug("=> [PING]")
		err := w.conn.WriteControl(websocket.PingMessage, f.Data, deadline)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	case PongFrame:
		w.logger.Debug("=> [PONG]")
		return w.conn.WriteControl(websocket.PongMessage, f.Data, deadline)
	case BinaryFrame:
		w.logger.Debug("=> [BIN]")
		return w.conn.WriteMessage(websocket.BinaryMessage, f.Data)
	default:
		w.logger.Debugf("=> [DATA] %s", f.Data)
		return w.conn.WriteMessage(websocket.TextMessage, f.Data)
	}
}

func (w *WsConnection) safeClose() {
	w.closeOnce.Do(w.close)
}

func (w *WsConnection) close() {
	if w.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		_ = w.conn.Close()
	}
	close(w.closeChan)
}

func (w *WsConnection) setCloseReason(err error) {
	w.closeReasonOnce.Do(func() {
		w.closeReason = err
	})
}

func (w *WsConnection) handleDialError(conn *websocket.Conn, resp *http.Response, err error) error {
	if w.errAdapters.OnDial != nil {
		return w.errAdapters.OnDial(conn, resp, err)
	}

	// 1. Check HTTP errors first
	var msg string

	if resp != nil {
		if resp.Body != nil {
			bts, readErr := io.ReadAll(resp.Body)
			if readErr == nil {
				msg = strings.TrimSpace(string(bts))
			}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if msg == "" {
				return ErrRateLimit
			}
			return errors.Wrap(ErrRateLimit, msg)
		}
	}

	// 2. Network errors
	if err != nil {
		return errors.Wrap(ErrCannotConnect, err.Error())
	}

	return nil
}
