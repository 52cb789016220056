package transport

import (
	"bytes"
	"sync"

	"tlsflow/lib/ds/queue"
)

// MemoryPort replays queued chunks and records everything sent.
// Once the queue is drained FetchData reports the configured end state.
type MemoryPort struct {
	mu   sync.Mutex
	in   *queue.NaiveQueue[[]byte]
	out  bytes.Buffer
	sent [][]byte
	end  State

	closed bool
}

var _ Port = (*MemoryPort)(nil)

func NewMemoryPort(chunks ...[]byte) *MemoryPort {
	p := &MemoryPort{in: queue.NewNaive[[]byte](uint(len(chunks))), end: StateClosed}
	for _, c := range chunks {
		p.in.Enqueue(c)
	}
	return p
}

// EndWith changes the state reported once the queue is empty.
func (p *MemoryPort) EndWith(s State) *MemoryPort {
	p.mu.Lock()
	p.end = s
	p.mu.Unlock()
	return p
}

func (p *MemoryPort) Push(chunk []byte) {
	p.mu.Lock()
	p.in.Enqueue(chunk)
	p.mu.Unlock()
}

func (p *MemoryPort) FetchData() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, nil
	}

	b, err := p.in.Dequeue()
	if err != nil {
		return nil, nil
	}
	return b, nil
}

func (p *MemoryPort) SendData(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortIO
	}
	p.out.Write(b)
	p.sent = append(p.sent, append([]byte(nil), b...))
	return nil
}

// Sent returns every SendData payload in order.
func (p *MemoryPort) Sent() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// Written returns the concatenation of all sent payloads.
func (p *MemoryPort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.out.Bytes())
}

func (p *MemoryPort) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.closed:
		return StateClosed
	case p.in.Len() > 0:
		return StateDataAvailable
	}
	return p.end
}

func (p *MemoryPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
