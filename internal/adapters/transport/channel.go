package transport

import (
	"context"
	"errors"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/eleven-am/peermesh/internal/domain"
	"github.com/eleven-am/peermesh/internal/ports"
)

type frameStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

// Channel is one mesh channel carried by a gRPC stream. The dialing side
// owns a client stream and connection; the accepting side borrows the
// server stream until the handler returns.
type Channel struct {
	id       string
	peer     string
	endpoint *Endpoint

	sendMu sync.Mutex
	stream frameStream

	mu     sync.Mutex
	conn   *grpc.ClientConn
	cancel context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
}

func newChannel(id, peer string, endpoint *Endpoint) *Channel {
	return &Channel{
		id:       id,
		peer:     peer,
		endpoint: endpoint,
		done:     make(chan struct{}),
	}
}

func (c *Channel) ID() string {
	return c.id
}

func (c *Channel) Peer() string {
	return c.peer
}

func (c *Channel) Send(data []byte) error {
	select {
	case <-c.done:
		return domain.NewChannelError(c.peer, c.id, ErrChannelClosed)
	default:
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.stream == nil {
		return domain.NewChannelError(c.peer, c.id, ErrChannelOpening)
	}
	if err := c.stream.SendMsg(wrapperspb.Bytes(data)); err != nil {
		return domain.NewChannelError(c.peer, c.id, err)
	}
	return nil
}

func (c *Channel) Close() error {
	c.finish(nil)
	return nil
}

func (c *Channel) bindClient(stream grpc.ClientStream, conn *grpc.ClientConn, cancel context.CancelFunc) {
	c.sendMu.Lock()
	c.stream = stream
	c.sendMu.Unlock()

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()
}

func (c *Channel) bindServer(stream grpc.ServerStream) {
	c.sendMu.Lock()
	c.stream = stream
	c.sendMu.Unlock()
}

func (c *Channel) readLoop(stream frameStream) {
	for {
		frame := &wrapperspb.BytesValue{}
		if err := stream.RecvMsg(frame); err != nil {
			c.finish(err)
			return
		}
		c.endpoint.sink(ports.ChannelData{Channel: c, Data: frame.GetValue()})
	}
}

// fail reports a channel that never opened.
func (c *Channel) fail(err error) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.endpoint.logger.Debug("channel failed", "remote_peer", c.peer, "channel_id", c.id, "error", err)
		c.endpoint.sink(ports.ChannelFailed{Channel: c, Err: err})
	})
}

// finish tears the stream down once and reports why: a clean end of stream
// or local close is ChannelClosed, anything else ChannelFailed.
func (c *Channel) finish(cause error) {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		conn, cancel := c.conn, c.cancel
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if conn != nil {
			conn.Close()
		}
		c.endpoint.detach(c)

		if isCleanClose(cause) {
			c.endpoint.sink(ports.ChannelClosed{Channel: c})
			return
		}
		c.endpoint.sink(ports.ChannelFailed{Channel: c, Err: domain.NewChannelError(c.peer, c.id, cause)})
	})
}

func isCleanClose(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return true
	}
	code := status.Code(err)
	return code == codes.Canceled
}
