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

// Package sar implements NCI segmentation and reassembly: fragmenting
// outbound command and data packets to the negotiated MTU, reassembling
// inbound fragments, credit-based flow control per logical connection,
// and command-priority round-robin scheduling of the single underlying
// write channel. It corresponds to the teacher's commander.go in spirit
// (the layer that turns logical operations into wire bytes) but nothing
// of that file's APDU framing survives: NCI has its own fixed 3-byte
// header instead of ISO 7816-4 command APDUs.
package sar

import (
	"errors"

	"go.uber.org/zap"

	"github.com/ponte-nfc/ncicore/hal"
	"github.com/ponte-nfc/ncicore/wire"
)

// DefaultMTU is used for the control channel and for any logical
// connection before a larger value is negotiated.
const DefaultMTU = 32

// MinMTU is the smallest MTU SetMaxControlMTU/SetMaxDataMTU will accept;
// a smaller request reverts to DefaultMTU.
const MinMTU = 4

// UnlimitedCredit is the sentinel connection-credit value (0xff) meaning
// the connection is never blocked by flow control.
const UnlimitedCredit = 0xff

// ErrUnknownConnection is reported when a connection id outside the
// configured range is referenced.
var ErrUnknownConnection = errors.New("sar: unknown logical connection")

// ErrFragmentMismatch is reported when a continuation fragment's GID/OID
// does not match the message currently being reassembled.
var ErrFragmentMismatch = errors.New("sar: fragment does not match message in progress")

// ErrWriteFailed is reported when the HAL fails to write a segment.
var ErrWriteFailed = errors.New("sar: write failed")

// Scheduler defers a function to run later on the owning event loop. A
// *loop.Loop satisfies this; tests may supply a synchronous stand-in.
type Scheduler interface {
	Post(func())
}

// Client receives reassembled control messages and connection data, and
// transport-level errors, from the SAR layer.
type Client interface {
	HandleControl(h wire.Header, payload []byte)
	HandleData(connID byte, payload []byte)
	Error(err error)
}

type connection struct {
	credit     int // 0..254, or UnlimitedCredit
	queue      []*packet
	reassembly *reassemblyBuffer
}

type packet struct {
	id         uint32
	header     wire.Header
	payload    []byte
	pos        int
	onComplete func(ok bool)
	suppressed bool
	lastSegLen int
}

type reassemblyBuffer struct {
	header wire.Header
	buf    []byte
}

// SAR owns the outbound queues, inbound reassembly state, and the single
// write-in-flight slot for one NFCC transport.
type SAR struct {
	hal       hal.HAL
	client    Client
	scheduler Scheduler
	log       *zap.Logger

	started bool

	controlMTU int
	dataMTU    int

	cmdQueue []*packet
	conns    []*connection
	rrCursor int

	controlReassembly *reassemblyBuffer
	inbuf             []byte

	lastID uint32

	writing       *packet
	writeInFlight bool
}

// New returns a SAR with a single logical connection (id 0) and default
// MTUs, ready to Start.
func New(h hal.HAL, client Client, scheduler Scheduler, log *zap.Logger) *SAR {
	if log == nil {
		log = zap.NewNop()
	}
	return &SAR{
		hal:        h,
		client:     client,
		scheduler:  scheduler,
		log:        log,
		controlMTU: DefaultMTU,
		dataMTU:    DefaultMTU,
		conns:      []*connection{{}},
	}
}

// Start begins delivering inbound bytes and enables writes.
func (s *SAR) Start() bool {
	if s.started {
		return true
	}
	if !s.hal.Start(s) {
		return false
	}
	s.started = true
	return true
}

// Reset drops every queued and in-flight packet without invoking
// completion callbacks, clears reassembly state and credits, and stops
// the transport. It mirrors a CORE_RESET: everything in flight is
// presumed lost, not merely cancelled.
func (s *SAR) Reset() {
	s.hal.Stop()
	s.started = false
	s.cmdQueue = nil
	for _, c := range s.conns {
		c.queue = nil
		c.reassembly = nil
		c.credit = 0
	}
	s.controlReassembly = nil
	s.inbuf = nil
	s.writing = nil
	s.writeInFlight = false
}

// SetMaxLogicalConnections resizes the connection table. Shrinking drops
// any packets still queued on removed connections without invoking
// their completion callbacks.
func (s *SAR) SetMaxLogicalConnections(n int) {
	if n < 1 {
		n = 1
	}
	for len(s.conns) < n {
		s.conns = append(s.conns, &connection{})
	}
	if len(s.conns) > n {
		s.conns = s.conns[:n]
	}
}

// SetMaxControlMTU sets the fragment size used for Command/Response/
// Notification packets. A value below MinMTU reverts to DefaultMTU.
func (s *SAR) SetMaxControlMTU(mtu int) {
	if mtu < MinMTU {
		mtu = DefaultMTU
	}
	s.controlMTU = mtu
}

// SetMaxDataMTU sets the fragment size used for Data packets.
func (s *SAR) SetMaxDataMTU(mtu int) {
	if mtu < MinMTU {
		mtu = DefaultMTU
	}
	s.dataMTU = mtu
}

// SetInitialCredits sets the credit counter for a logical connection,
// replacing whatever was there. Pass UnlimitedCredit for an
// always-writable connection.
func (s *SAR) SetInitialCredits(connID byte, credit int) error {
	c, err := s.connByID(connID)
	if err != nil {
		return err
	}
	c.credit = clampCredit(credit)
	s.scheduleAttempt()
	return nil
}

// AddCredits increments a connection's credit counter, saturating at
// UnlimitedCredit, in response to a CORE_CONN_CREDITS_NTF.
func (s *SAR) AddCredits(connID byte, n int) error {
	c, err := s.connByID(connID)
	if err != nil {
		return err
	}
	if c.credit == UnlimitedCredit {
		return nil
	}
	c.credit = clampCredit(c.credit + n)
	s.scheduleAttempt()
	return nil
}

func clampCredit(v int) int {
	if v < 0 {
		return 0
	}
	if v >= UnlimitedCredit {
		return UnlimitedCredit
	}
	return v
}

func (s *SAR) connByID(connID byte) (*connection, error) {
	if int(connID) >= len(s.conns) {
		return nil, ErrUnknownConnection
	}
	return s.conns[connID], nil
}

// SendCommand enqueues a control message (CORE or RF group command) for
// transmission and returns a non-zero packet id that can later be
// passed to Cancel. The command is not written to the wire until a
// later loop iteration.
func (s *SAR) SendCommand(gid, oid byte, payload []byte, onComplete func(ok bool)) uint32 {
	p := &packet{
		id: s.nextID(),
		header: wire.Header{
			Type: wire.Command,
			GID:  gid,
			OID:  oid,
		},
		payload:    payload,
		onComplete: onComplete,
	}
	s.cmdQueue = append(s.cmdQueue, p)
	s.scheduleAttempt()
	return p.id
}

// SendData enqueues a payload for transmission on a logical connection
// and returns a non-zero packet id. onComplete fires exactly once, with
// true once every fragment has been written, or false if a write
// failed. It never fires if the packet is cancelled first.
func (s *SAR) SendData(connID byte, payload []byte, onComplete func(ok bool)) (uint32, error) {
	c, err := s.connByID(connID)
	if err != nil {
		return 0, err
	}
	p := &packet{
		id: s.nextID(),
		header: wire.Header{
			Type:   wire.Data,
			ConnID: connID,
		},
		payload:    payload,
		onComplete: onComplete,
	}
	c.queue = append(c.queue, p)
	s.scheduleAttempt()
	return p.id, nil
}

func (s *SAR) nextID() uint32 {
	s.lastID++
	if s.lastID == 0 {
		s.lastID = 1
	}
	return s.lastID
}

// Cancel removes a queued packet, or suppresses the completion callback
// of one currently being written, without ever invoking its completion
// callback. Cancelling an unknown or already-finished id is a no-op.
func (s *SAR) Cancel(id uint32) {
	if s.writing != nil && s.writing.id == id {
		s.writing.suppressed = true
		return
	}
	for i, p := range s.cmdQueue {
		if p.id == id {
			s.cmdQueue = append(s.cmdQueue[:i], s.cmdQueue[i+1:]...)
			return
		}
	}
	for _, c := range s.conns {
		for i, p := range c.queue {
			if p.id == id {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				return
			}
		}
	}
}

func (s *SAR) scheduleAttempt() {
	s.scheduler.Post(s.attemptWrite)
}

// attemptWrite picks the next packet to write, if any, and submits one
// fragment to the HAL. Commands always take priority over data; among
// data connections, round-robin avoids starving any single connection.
func (s *SAR) attemptWrite() {
	if s.writeInFlight || !s.started {
		return
	}
	if s.writing == nil {
		s.writing = s.popNext()
		if s.writing == nil {
			return
		}
	}
	p := s.writing
	mtu := s.controlMTU
	if p.header.Type == wire.Data {
		mtu = s.dataMTU
	}
	remaining := p.payload[p.pos:]
	seg := remaining
	pbf := false
	if len(remaining) > mtu {
		seg = remaining[:mtu]
		pbf = true
	}
	h := p.header
	h.PBF = pbf
	h.Length = byte(len(seg))
	p.lastSegLen = len(seg)

	hdrBytes := h.Bytes()
	s.writeInFlight = true
	s.hal.Write([][]byte{hdrBytes[:], seg}, func(ok bool) {
		s.scheduler.Post(func() { s.handleWriteDone(ok) })
	})
}

// popNext dequeues the next packet to start writing: the head of the
// command queue if non-empty, else the first data connection (in
// round-robin order starting after the last one served) with a
// non-empty queue and available credit.
func (s *SAR) popNext() *packet {
	if len(s.cmdQueue) > 0 {
		p := s.cmdQueue[0]
		s.cmdQueue = s.cmdQueue[1:]
		return p
	}
	n := len(s.conns)
	for i := 0; i < n; i++ {
		idx := (s.rrCursor + i) % n
		c := s.conns[idx]
		if len(c.queue) == 0 || c.credit == 0 {
			continue
		}
		p := c.queue[0]
		c.queue = c.queue[1:]
		if c.credit != UnlimitedCredit {
			c.credit--
		}
		s.rrCursor = (idx + 1) % n
		return p
	}
	return nil
}

func (s *SAR) handleWriteDone(ok bool) {
	s.writeInFlight = false
	p := s.writing
	if p == nil {
		return
	}
	if !ok {
		s.writing = nil
		if !p.suppressed && p.onComplete != nil {
			p.onComplete(false)
		}
		s.client.Error(ErrWriteFailed)
		s.scheduleAttempt()
		return
	}
	p.pos += p.lastSegLen
	if p.pos >= len(p.payload) {
		s.writing = nil
		if !p.suppressed && p.onComplete != nil {
			p.onComplete(true)
		}
	}
	s.scheduleAttempt()
}

// Read implements hal.Client. It copies data immediately (the HAL may
// reuse its buffer once Read returns) and defers processing onto the
// scheduler so inbound bytes are handled in the same serialized order
// as everything else.
func (s *SAR) Read(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	s.scheduler.Post(func() { s.handleRead(buf) })
}

// Error implements hal.Client.
func (s *SAR) Error(err error) {
	s.scheduler.Post(func() { s.client.Error(err) })
}

func (s *SAR) handleRead(data []byte) {
	if len(s.inbuf) > 0 {
		data = append(s.inbuf, data...)
		s.inbuf = nil
	}
	for len(data) >= wire.HeaderLen {
		l := int(data[2])
		if len(data) < wire.HeaderLen+l {
			break
		}
		h, err := wire.Decode(data[:wire.HeaderLen])
		if err != nil {
			s.client.Error(err)
			return
		}
		payload := data[wire.HeaderLen : wire.HeaderLen+l]
		s.dispatch(h, payload)
		data = data[wire.HeaderLen+l:]
	}
	if len(data) > 0 {
		s.inbuf = append([]byte(nil), data...)
	}
}

func (s *SAR) dispatch(h wire.Header, payload []byte) {
	if h.Type == wire.Data {
		s.dispatchData(h, payload)
		return
	}
	s.dispatchControl(h, payload)
}

func (s *SAR) dispatchControl(h wire.Header, payload []byte) {
	if s.controlReassembly != nil {
		if !wire.SameControlMessage(s.controlReassembly.header, h) {
			s.controlReassembly = nil
			s.client.Error(ErrFragmentMismatch)
			return
		}
		s.controlReassembly.buf = append(s.controlReassembly.buf, payload...)
		if h.PBF {
			return
		}
		rb := s.controlReassembly
		s.controlReassembly = nil
		s.client.HandleControl(rb.header, rb.buf)
		return
	}
	if h.PBF {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		s.controlReassembly = &reassemblyBuffer{header: h, buf: buf}
		return
	}
	s.client.HandleControl(h, payload)
}

func (s *SAR) dispatchData(h wire.Header, payload []byte) {
	c, err := s.connByID(h.ConnID)
	if err != nil {
		s.client.Error(err)
		return
	}
	if c.reassembly != nil {
		c.reassembly.buf = append(c.reassembly.buf, payload...)
		if h.PBF {
			return
		}
		rb := c.reassembly
		c.reassembly = nil
		s.client.HandleData(h.ConnID, rb.buf)
		return
	}
	if h.PBF {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		c.reassembly = &reassemblyBuffer{header: h, buf: buf}
		return
	}
	s.client.HandleData(h.ConnID, payload)
}
