/***
    Copyright (c) 2016, Hector Sanjuan

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU Lesser General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU Lesser General Public License for more details.

    You should have received a copy of the GNU Lesser General Public License
    along with this program.  If not, see <http://www.gnu.org/licenses/>.
***/

package serial

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tarmserial "github.com/tarm/serial"
)

// fakePort is an in-memory io.ReadWriteCloser standing in for the real
// UART device, so Start/Stop/Write/readLoop can be exercised without
// hardware.
type fakePort struct {
	r      *io.PipeReader
	w      *io.PipeWriter
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{r: r, w: w}
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.writes = append(p.writes, append([]byte(nil), b...))
	p.mu.Unlock()
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.r.Close()
	return p.w.Close()
}

type recordingClient struct {
	mu     sync.Mutex
	reads  [][]byte
	errs   []error
	readCh chan struct{}
}

func (c *recordingClient) Read(data []byte) {
	c.mu.Lock()
	c.reads = append(c.reads, data)
	c.mu.Unlock()
	if c.readCh != nil {
		c.readCh <- struct{}{}
	}
}

func (c *recordingClient) Error(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func newTestHAL(t *testing.T, port *fakePort) *HAL {
	h := New(Config{Name: "/dev/fake"}, nil)
	h.openPort = func(*tarmserial.Config) (io.ReadWriteCloser, error) {
		return port, nil
	}
	return h
}

func TestStartFailurePropagatesOpenError(t *testing.T) {
	h := New(Config{Name: "/dev/fake"}, nil)
	wantErr := errors.New("no such device")
	h.openPort = func(*tarmserial.Config) (io.ReadWriteCloser, error) {
		return nil, wantErr
	}
	require.False(t, h.Start(&recordingClient{}))
}

func TestReadLoopDeliversBytesToClient(t *testing.T) {
	port := newFakePort()
	h := newTestHAL(t, port)
	c := &recordingClient{readCh: make(chan struct{}, 1)}
	require.True(t, h.Start(c))

	go port.w.Write([]byte{0x01, 0x02, 0x03})

	select {
	case <-c.readCh:
	case <-time.After(time.Second):
		t.Fatal("no data delivered")
	}
	require.Equal(t, []byte{0x01, 0x02, 0x03}, c.reads[0])
	h.Stop()
}

func TestWriteWritesEveryChunk(t *testing.T) {
	port := newFakePort()
	h := newTestHAL(t, port)
	c := &recordingClient{readCh: make(chan struct{}, 1)}
	require.True(t, h.Start(c))
	defer h.Stop()

	var done bool
	h.Write([][]byte{{0x01, 0x02}, {0x03}}, func(ok bool) { done = ok })
	require.True(t, done)
	require.Equal(t, [][]byte{{0x01, 0x02}, {0x03}}, port.writes)
}

func TestWriteBeforeStartFails(t *testing.T) {
	h := New(Config{Name: "/dev/fake"}, nil)
	var done bool
	h.Write([][]byte{{0x01}}, func(ok bool) { done = ok })
	require.False(t, done)
}

func TestStopSuppressesPendingReadError(t *testing.T) {
	port := newFakePort()
	h := newTestHAL(t, port)
	c := &recordingClient{}
	require.True(t, h.Start(c))

	h.Stop()
	time.Sleep(10 * time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	require.Empty(t, c.errs)
}
