/***
    Copyright (c) 2020, Hector Sanjuan

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

// Package loopback provides a trivial hal.HAL implementation used for
// testing: it records every write and lets the test feed bytes back to
// the client whenever it likes. It plays the role the teacher's
// drivers/dummy package played for CommandDriver.
package loopback

import (
	"errors"
	"sync"

	"github.com/ponte-nfc/ncicore/hal"
)

// Write is a single recorded call to HAL.Write.
type Write struct {
	Chunks [][]byte
}

// Bytes concatenates the chunks of a recorded write.
func (w Write) Bytes() []byte {
	var out []byte
	for _, c := range w.Chunks {
		out = append(out, c...)
	}
	return out
}

// HAL is an in-memory transport for tests. Nothing is written anywhere;
// writes are simply recorded and immediately acknowledged unless the
// test configures otherwise via FailNextWrite.
type HAL struct {
	mu      sync.Mutex
	client  hal.Client
	started bool
	writes  []Write
	failNext bool
	held    []func(ok bool)
}

// New returns a ready-to-use loopback HAL.
func New() *HAL {
	return &HAL{}
}

func (h *HAL) Start(client hal.Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.client = client
	h.started = true
	return true
}

func (h *HAL) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = false
}

func (h *HAL) Write(chunks [][]byte, onDone func(ok bool)) {
	h.mu.Lock()
	cp := make([][]byte, len(chunks))
	for i, c := range chunks {
		b := make([]byte, len(c))
		copy(b, c)
		cp[i] = b
	}
	h.writes = append(h.writes, Write{Chunks: cp})
	fail := h.failNext
	h.failNext = false
	h.mu.Unlock()
	onDone(!fail)
}

func (h *HAL) CancelWrite() {
	// The loopback HAL completes writes synchronously, so there is
	// never an in-flight write left to cancel.
}

// FailNextWrite makes the next call to Write report a failure.
func (h *HAL) FailNextWrite() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failNext = true
}

// Deliver pushes bytes to the registered client, simulating an inbound
// read from the NFCC.
func (h *HAL) Deliver(data []byte) error {
	h.mu.Lock()
	client := h.client
	started := h.started
	h.mu.Unlock()
	if !started || client == nil {
		return errors.New("loopback: HAL not started")
	}
	client.Read(data)
	return nil
}

// DeliverError reports a transport error to the registered client.
func (h *HAL) DeliverError(err error) {
	h.mu.Lock()
	client := h.client
	h.mu.Unlock()
	if client != nil {
		client.Error(err)
	}
}

// Writes returns every write recorded so far.
func (h *HAL) Writes() []Write {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Write, len(h.writes))
	copy(out, h.writes)
	return out
}
