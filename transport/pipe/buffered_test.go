package pipe

import (
	"testing"
	"time"

	"tlsflow/transport"
	"tlsflow/transport/test"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type BufferedPipeTestSuite struct {
	test.BufferedConnTestSuite
}

func TestBufferedPipeTestSuite(t *testing.T) {
	suite.Run(t, new(BufferedPipeTestSuite))
}

func (s *BufferedPipeTestSuite) SetupTest() {
	s.BufferedConnTestSuite.SetupTest()
	s.C1, s.C2 = BufferedPipe("A", "B", s.Clock, 20)
}

func TestBufferedPipeDeadLineWakesReader(t *testing.T) {
	mock := clock.NewMock()
	c1, c2 := BufferedPipe("A", "B", mock, 8)
	defer c1.Close()
	defer c2.Close()

	c1.SetReadDeadLine(mock.Now().Add(time.Second))

	errc := make(chan error, 1)
	go func() {
		_, err := c1.Read(make([]byte, 1))
		errc <- err
	}()

	// Let the reader block before the deadline passes.
	time.Sleep(20 * time.Millisecond)
	mock.Add(2 * time.Second)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, transport.ErrDeadLineExceeded)
	case <-time.After(time.Second):
		require.FailNow(t, "reader was not woken by the deadline")
	}
}

func TestBufferedPipeZeroBuffer(t *testing.T) {
	assert.Panics(t, func() { BufferedPipe("A", "B", clock.New(), 0) })
}
