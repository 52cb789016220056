package transport

import (
	"log/slog"
	"sync"
	"time"

	iolib "tlsflow/lib/io"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

type State uint8

const (
	StateUp State = iota
	StateClosed
	StateTimeout
	StateIOException
	StateSocketException
	StateDataAvailable
)

func (s State) String() string {
	switch s {
	case StateUp:
		return "UP"
	case StateClosed:
		return "CLOSED"
	case StateTimeout:
		return "TIMEOUT"
	case StateIOException:
		return "IO_EXCEPTION"
	case StateSocketException:
		return "SOCKET_EXCEPTION"
	case StateDataAvailable:
		return "DATA_AVAILABLE"
	}
	return "UNKNOWN"
}

func (s State) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// Terminal reports whether no more data can be expected from the port.
func (s State) Terminal() bool {
	switch s {
	case StateClosed, StateTimeout, StateIOException, StateSocketException:
		return true
	}
	return false
}

var ErrPortIO = errors.New("port i/o failure")

// Port moves raw protocol bytes for one connection end.
//
// FetchData blocks until some bytes arrive or the port reaches a terminal
// state. Reaching a terminal state is not an error: FetchData returns no
// data and State reports why.
type Port interface {
	FetchData() ([]byte, error)
	SendData(b []byte) error
	State() State
	Close() error
}

const DefaultReadSize = 1 << 15

type StreamPort struct {
	conn     Conn
	clock    clock.Clock
	timeout  time.Duration
	readSize int

	mu    sync.Mutex
	state State
}

var _ Port = (*StreamPort)(nil)

type StreamPortOption func(*StreamPort)

func WithClock(c clock.Clock) StreamPortOption { return func(p *StreamPort) { p.clock = c } }

// WithTimeout bounds every FetchData call. Zero means wait forever.
func WithTimeout(d time.Duration) StreamPortOption { return func(p *StreamPort) { p.timeout = d } }

func WithReadSize(n int) StreamPortOption { return func(p *StreamPort) { p.readSize = n } }

func NewStreamPort(conn Conn, opts ...StreamPortOption) *StreamPort {
	p := &StreamPort{
		conn:     conn,
		clock:    clock.New(),
		readSize: DefaultReadSize,
		state:    StateUp,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *StreamPort) FetchData() ([]byte, error) {
	if st := p.State(); st.Terminal() {
		return nil, nil
	}

	if p.timeout > 0 {
		p.conn.SetReadDeadLine(p.clock.Now().Add(p.timeout))
	} else {
		p.conn.SetReadDeadLine(time.Time{})
	}

	b, err := iolib.ReadSome(p.conn, p.readSize)
	switch {
	case err == nil:
		if len(b) == p.readSize {
			p.setState(StateDataAvailable)
		} else {
			p.setState(StateUp)
		}
		return b, nil
	case errors.Is(err, ErrDeadLineExceeded):
		p.setState(StateTimeout)
		return b, nil
	case errors.Is(err, ErrConnClosed):
		p.setState(StateClosed)
		return b, nil
	}

	p.setState(StateIOException)
	return b, errors.Wrap(ErrPortIO, err.Error())
}

func (p *StreamPort) SendData(b []byte) error {
	if _, err := iolib.WriteFull(p.conn, b); err != nil {
		p.setState(StateSocketException)
		return errors.Wrap(ErrPortIO, err.Error())
	}
	return nil
}

func (p *StreamPort) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *StreamPort) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *StreamPort) Close() error {
	p.setState(StateClosed)
	return p.conn.Close()
}
