// Package netconn adapts the standard library's net package to transport.Conn.
package netconn

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"tlsflow/transport"

	"github.com/pkg/errors"
)

type Addr struct{ net.Addr }

var _ transport.Addr = Addr{}

type conn struct{ c net.Conn }

var _ transport.Conn = (*conn)(nil)

func Wrap(c net.Conn) transport.Conn { return &conn{c: c} }

func (c *conn) Read(p []byte) (int, error) {
	n, err := c.c.Read(p)
	return n, mapErr(err)
}

func (c *conn) Write(p []byte) (int, error) {
	n, err := c.c.Write(p)
	return n, mapErr(err)
}

func (c *conn) Close() error { return c.c.Close() }

func (c *conn) LocalAddr() transport.Addr  { return Addr{c.c.LocalAddr()} }
func (c *conn) RemoteAddr() transport.Addr { return Addr{c.c.RemoteAddr()} }

func (c *conn) SetReadDeadLine(t time.Time)  { _ = c.c.SetReadDeadline(t) }
func (c *conn) SetWriteDeadLine(t time.Time) { _ = c.c.SetWriteDeadline(t) }

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return transport.ErrDeadLineExceeded
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, net.ErrClosed):
		return errors.Wrap(transport.ErrConnClosed, err.Error())
	}
	return err
}

type Dialer struct {
	Network string // Defaults to "tcp".
	Timeout time.Duration
}

var _ transport.ConnDialer = Dialer{}

func (d Dialer) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	network := d.Network
	if network == "" {
		network = "tcp"
	}

	nd := net.Dialer{Timeout: d.Timeout}
	c, err := nd.DialContext(ctx, network, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}

	return Wrap(c), nil
}

type Listener struct{ l net.Listener }

var _ transport.ConnListener = (*Listener)(nil)

func Listen(network, addr string) (*Listener, error) {
	l, err := net.Listen(network, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	return &Listener{l: l}, nil
}

func (l *Listener) Addr() transport.Addr { return Addr{l.l.Addr()} }

// Accept waits for one connection or until ctx is done.
func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	type deadliner interface{ SetDeadline(time.Time) error }

	if dl, ok := l.l.(deadliner); ok {
		stop := context.AfterFunc(ctx, func() { _ = dl.SetDeadline(time.Unix(1, 0)) })
		defer func() {
			if !stop() {
				_ = dl.SetDeadline(time.Time{})
			}
		}()
	}

	c, err := l.l.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, transport.ErrConnListenerClosed
		}
		return nil, errors.Wrap(err, "accepting connection")
	}

	return Wrap(c), nil
}

func (l *Listener) Close() error { return l.l.Close() }
