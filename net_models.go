package chatsdk

import (
	"context"
)

type (
	CloseChan chan struct{}

	// Connection is one live transport to the socket endpoint. Inbound frames
	// are pushed to the channel given to the ConnectionFactory.
	Connection interface {
		// Open dials the endpoint. It returns once the connection is usable.
		Open(ctx context.Context) error
		// Write blocks until f has been written, the connection is closed or ctx is done.
		Write(ctx context.Context, f Frame) error
		Close()
		CloseErr() error
		CloseChan() CloseChan
	}

	ConnectionFactory func(params OpenConnectionParams, recv chan<- Frame) Connection
)
