package chatsdk

import "context"

// PassiveKeepAliveHandler answers control frames received by the receive loop.
type PassiveKeepAliveHandler func(ctx context.Context, conn Connection, f Frame)

// KeepAliveReplyPingWithPong echoes pings back as pongs and ignores everything else.
func KeepAliveReplyPingWithPong(ctx context.Context, conn Connection, f Frame) {
	if f.Type.IsPing() {
		_ = conn.Write(ctx, NewPongFrame(f.Data))
	}
}
