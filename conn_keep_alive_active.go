package chatsdk

import (
	"context"
	"time"
)

// runHeartbeat sends a Phoenix heartbeat every interval until the loop
// context is cancelled or the connection closes. Phoenix drops sockets that
// stay silent for longer than its timeout (60s by default).
func (c *SocketClient) runHeartbeat(ctx context.Context, conn Connection, interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.CloseChan():
			return
		case <-ticker.C:
			if err := c.push(ctx, conn, heartbeatEnvelope(c.refs.Next())); err != nil {
				c.logger.Warnf("cannot send heartbeat: %s", err)
			}
		}
	}
}

func heartbeatEnvelope(ref string) Envelope {
	return Envelope{
		Topic:   heartbeatTopic,
		Event:   EventHeartbeat,
		Payload: Payload{},
		Ref:     ref,
	}
}
