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

// Package serial implements hal.HAL over a UART-attached NFC
// Controller, the real-hardware counterpart to hal/loopback and
// hal/simulator.
package serial

import (
	"io"
	"sync"

	"github.com/tarm/serial"
	"go.uber.org/zap"

	"github.com/ponte-nfc/ncicore/hal"
)

// DefaultBaud is the baud rate most UART-attached NFCCs default to.
const DefaultBaud = 115200

// Config selects the serial device to open.
type Config struct {
	// Name is the device path, e.g. "/dev/ttyUSB0" or "COM3".
	Name string
	// Baud defaults to DefaultBaud when zero.
	Baud int
}

// HAL drives an NFCC over a serial port. One read goroutine is started
// by Start and stopped by Stop; writes happen synchronously on the
// caller's goroutine, since serial writes to a short UART buffer don't
// warrant a queue of their own.
type HAL struct {
	cfg Config
	log *zap.Logger

	mu      sync.Mutex
	port    io.ReadWriteCloser
	client  hal.Client
	stopped chan struct{}

	openPort func(*serial.Config) (io.ReadWriteCloser, error)
}

// New returns a HAL that will open cfg.Name on Start.
func New(cfg Config, log *zap.Logger) *HAL {
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HAL{
		cfg: cfg,
		log: log,
		openPort: func(c *serial.Config) (io.ReadWriteCloser, error) {
			return serial.OpenPort(c)
		},
	}
}

func (h *HAL) Start(client hal.Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	port, err := h.openPort(&serial.Config{Name: h.cfg.Name, Baud: h.cfg.Baud})
	if err != nil {
		h.log.Error("opening serial port", zap.String("device", h.cfg.Name), zap.Error(err))
		return false
	}
	h.port = port
	h.client = client
	h.stopped = make(chan struct{})
	go h.readLoop(port, client, h.stopped)
	return true
}

func (h *HAL) readLoop(port io.ReadWriteCloser, client hal.Client, stopped chan struct{}) {
	buf := make([]byte, 512)
	for {
		n, err := port.Read(buf)
		select {
		case <-stopped:
			return
		default:
		}
		if err != nil {
			client.Error(err)
			return
		}
		if n > 0 {
			client.Read(append([]byte(nil), buf[:n]...))
		}
	}
}

func (h *HAL) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.port == nil {
		return
	}
	close(h.stopped)
	h.port.Close()
	h.port = nil
	h.client = nil
}

// Write blocks until the chunks have been handed to the OS, then calls
// onDone on the same goroutine — there is no separate write completion
// callback from the underlying serial library to defer on.
func (h *HAL) Write(chunks [][]byte, onDone func(ok bool)) {
	h.mu.Lock()
	port := h.port
	h.mu.Unlock()
	if port == nil {
		onDone(false)
		return
	}
	for _, c := range chunks {
		if _, err := port.Write(c); err != nil {
			h.log.Error("serial write failed", zap.Error(err))
			onDone(false)
			return
		}
	}
	onDone(true)
}

// CancelWrite is a no-op: writes to the serial port complete
// synchronously inside Write, so there is never one in flight to
// cancel by the time a caller could observe it.
func (h *HAL) CancelWrite() {}
