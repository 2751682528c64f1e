package chatsdk

import "fmt"

// FrameType mirrors the websocket opcode of a frame.
type FrameType byte

const (
	TextFrame   FrameType = 1
	BinaryFrame FrameType = 2
	CloseFrame  FrameType = 8
	PingFrame   FrameType = 9
	PongFrame   FrameType = 10
)

func (t FrameType) IsText() bool { return t == TextFrame }

func (t FrameType) IsPing() bool { return t == PingFrame }

func (t FrameType) IsClose() bool { return t == CloseFrame }

func (t FrameType) String() string {
	switch t {
	case TextFrame:
		return "TEXT"
	case BinaryFrame:
		return "BIN"
	case CloseFrame:
		return "CLOSE"
	case PingFrame:
		return "PING"
	case PongFrame:
		return "PONG"
	default:
		return fmt.Sprintf("OP(%d)", byte(t))
	}
}

// Frame is a single unit read from or written to the transport.
type Frame struct {
	Type FrameType
	Data []byte
	// Code is the close status, only meaningful for CloseFrame.
	Code int
}

func (f Frame) String() string {
	if f.Type.IsClose() {
		return fmt.Sprintf("Frame{type=%s,code=%d,data=%s}", f.Type, f.Code, f.Data)
	}
	return fmt.Sprintf("Frame{type=%s,data=%s}", f.Type, f.Data)
}

func NewTextFrame(data []byte) Frame { return Frame{Type: TextFrame, Data: data} }

func NewPingFrame(data []byte) Frame { return Frame{Type: PingFrame, Data: data} }

func NewPongFrame(data []byte) Frame { return Frame{Type: PongFrame, Data: data} }

func NewCloseFrame(code int, data []byte) Frame {
	return Frame{Type: CloseFrame, Data: data, Code: code}
}
