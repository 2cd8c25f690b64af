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

// Package ncicore is the public façade of an NCI Device Host: it wires a
// hal.HAL to the SAR and state-machine layers and exposes the contract
// an application talking to an NFC Controller actually needs — start/
// restart, technology and mode selection, parameter access, sending
// application data, and subscribing to state/activation/data/parameter
// events. It plays the role the teacher's device.go played for a single
// Type 4 Tag (New(cmdDriver) *Device), generalized from one tag
// operation (Read/Update) to a standing connection to a controller chip.
package ncicore

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ponte-nfc/ncicore/hal"
	"github.com/ponte-nfc/ncicore/loop"
	"github.com/ponte-nfc/ncicore/metrics"
	"github.com/ponte-nfc/ncicore/sar"
	"github.com/ponte-nfc/ncicore/sm"
	"github.com/ponte-nfc/ncicore/wire"
)

// DefaultCmdTimeout is how long Core waits for a control response before
// declaring the command failed.
const DefaultCmdTimeout = 2000 * time.Millisecond

// ErrCommandInFlight names the condition of a control command being
// already outstanding — NCI allows only one at a time per control
// channel. Send does not return it: it rejects such a command by
// calling its onResponse with ok=false and returning id 0.
var ErrCommandInFlight = errors.New("ncicore: a command is already awaiting its response")

// Core is the entry point of the library: one per physical or
// simulated NFC Controller.
type Core struct {
	loop *loop.Loop
	sar  *sar.SAR
	sm   *sm.SM
	log  *zap.Logger

	cmdTimeout time.Duration
	pending    *pendingCommand

	params Params

	onParamChanged []func(name string, value interface{})
	onIncomingData []func(connID byte, payload []byte)
	subs           map[uuid.UUID]func()

	metrics    *metrics.Metrics
	cmdStarted time.Time
}

type pendingCommand struct {
	gid, oid   byte
	onResponse func(ok bool, payload []byte)
	timer      *time.Timer
	packetID   uint32
}

// New returns a Core wired to h, with everything but Start() ready:
// default parameters, a single logical connection, and the state
// machine's full set of transitions registered. Metrics collection is
// disabled; use NewWithMetrics to enable it.
func New(h hal.HAL, log *zap.Logger) *Core {
	return NewWithMetrics(h, log, nil)
}

// NewWithMetrics is New with Prometheus instrumentation. m may be nil,
// in which case Core behaves exactly as New.
func NewWithMetrics(h hal.HAL, log *zap.Logger, m *metrics.Metrics) *Core {
	if log == nil {
		log = zap.NewNop()
	}
	l := loop.New()
	c := &Core{
		loop:       l,
		log:        log,
		cmdTimeout: DefaultCmdTimeout,
		params:     defaultParams(),
		subs:       map[uuid.UUID]func(){},
		metrics:    m,
	}
	c.sar = sar.New(h, c, l, log)
	c.sm = sm.New(c, l, log)
	c.sm.AddTransition(sm.StateInit, sm.NewReset())
	c.sm.AddTransition(sm.StateError, sm.NewReset())
	c.sm.AddTransition(sm.StateIdle, sm.NewIdleToDiscovery())
	c.sm.AddTransition(sm.StateDiscovery, sm.NewDiscoveryToIdle())
	c.sm.AddTransition(sm.StatePollActive, sm.NewPollActiveToIdle())
	c.sm.AddTransition(sm.StatePollActive, sm.NewPollActiveToDiscovery())
	c.sm.AddTransition(sm.StateListenActive, sm.NewListenActiveToIdle())
	if m != nil {
		var lastRecorded sm.StateID = sm.StateInit
		c.sm.OnLastStateChanged(func(s sm.StateID) {
			m.RecordTransition(lastRecorded.String(), s.String())
			lastRecorded = s
		})
	}
	return c
}

// Start begins operation: the HAL is started and a reset handshake is
// kicked off, taking the machine from Init to Idle.
func (c *Core) Start() bool {
	return loop.Call(c.loop, func() bool {
		if !c.sar.Start() {
			return false
		}
		c.sm.SwitchTo(sm.StateIdle)
		return true
	})
}

// Restart drops everything in flight and runs the reset handshake
// again, as if the library had just been constructed. Used after a
// transport error or an application-requested recovery.
func (c *Core) Restart() {
	c.loop.Post(c.restartLocked)
}

// SetOpMode selects poll, listen, or both for the next discovery.
func (c *Core) SetOpMode(mode sm.OpMode) {
	c.loop.Post(func() { c.sm.SetOpMode(mode) })
}

// Discover moves the machine from Idle into Discovery, starting a new
// RF_DISCOVER_CMD round with the currently configured op-mode/tech.
// From any other state the request follows SM.SwitchTo: a registered
// transition to Discovery runs directly (e.g. from PollActive),
// otherwise the machine is first taken to Idle and Discovery follows.
func (c *Core) Discover() {
	c.loop.Post(func() { c.sm.SwitchTo(sm.StateDiscovery) })
}

// Deactivate moves an active or discovering machine back towards Idle
// (or, from a poll-active target, back into Discovery when toward is
// sm.StateDiscovery). From a state with no transition registered
// toward it, the request follows SM.SwitchTo's routing through Idle
// (using the reset handshake when no deactivation to Idle is
// registered); requesting a state with no route from Idle itself
// stalls the machine into Error.
func (c *Core) Deactivate(toward sm.StateID) {
	c.loop.Post(func() { c.sm.SwitchTo(toward) })
}

// SetTech selects which RF technologies discovery should target and
// returns the mask actually applied.
func (c *Core) SetTech(tech sm.Tech) sm.Tech {
	return loop.Call(c.loop, func() sm.Tech { return c.sm.SetTech(tech) })
}

// Discovered returns the endpoints reported so far while the machine
// waits in W4_ALL_DISCOVERIES/W4_HOST_SELECT for a host selection.
func (c *Core) Discovered() []sm.DiscoveredEndpoint {
	return loop.Call(c.loop, func() []sm.DiscoveredEndpoint { return c.sm.Discovered() })
}

// SelectDiscovery sends RF_DISCOVER_SELECT_CMD choosing one of the
// endpoints returned by Discovered, resolving a W4_HOST_SELECT wait
// when more than one endpoint was reported in the same poll cycle.
func (c *Core) SelectDiscovery(discoveryID, protocol, rfInterface byte) {
	c.loop.Post(func() { c.sm.SelectDiscovery(discoveryID, protocol, rfInterface) })
}

// CurrentState returns the machine's last confirmed state.
func (c *Core) CurrentState() sm.StateID {
	return loop.Call(c.loop, func() sm.StateID { return c.sm.LastState() })
}

// NextState returns the state the machine is transitioning to, equal to
// CurrentState when nothing is in flight.
func (c *Core) NextState() sm.StateID {
	return loop.Call(c.loop, func() sm.StateID { return c.sm.NextState() })
}

// SendDataMsg submits payload for transmission on connID and returns a
// non-zero packet id usable with Cancel. onComplete fires exactly once.
func (c *Core) SendDataMsg(connID byte, payload []byte, onComplete func(ok bool)) uint32 {
	return loop.Call(c.loop, func() uint32 {
		id, err := c.sar.SendData(connID, payload, onComplete)
		if err != nil {
			if onComplete != nil {
				onComplete(false)
			}
			return 0
		}
		c.metrics.RecordDataSent(len(payload))
		return id
	})
}

// Cancel cancels a packet previously returned by SendDataMsg or an
// internally tracked command id; unknown ids are a no-op.
func (c *Core) Cancel(id uint32) {
	c.loop.Post(func() {
		if c.pending != nil && c.pending.packetID == id {
			c.pending.timer.Stop()
			c.pending = nil
		}
		c.sar.Cancel(id)
	})
}

// Send implements sm.Io: it is how the state machine issues control
// commands, arming the single cmd_timeout for each one.
func (c *Core) Send(gid, oid byte, payload []byte, onResponse func(ok bool, payload []byte)) uint32 {
	if c.pending != nil {
		onResponse(false, nil)
		return 0
	}
	pc := &pendingCommand{gid: gid, oid: oid, onResponse: onResponse}
	c.cmdStarted = time.Now()
	pc.packetID = c.sar.SendCommand(gid, oid, payload, func(ok bool) {
		if !ok {
			c.failPending(pc)
		}
	})
	pc.timer = time.AfterFunc(c.cmdTimeout, func() {
		c.loop.Post(func() { c.timeoutPending(pc) })
	})
	c.pending = pc
	return pc.packetID
}

func (c *Core) failPending(pc *pendingCommand) {
	if c.pending != pc {
		return
	}
	c.pending = nil
	pc.timer.Stop()
	c.metrics.RecordCommand(pc.gid, pc.oid, false, time.Since(c.cmdStarted).Seconds())
	pc.onResponse(false, nil)
}

func (c *Core) timeoutPending(pc *pendingCommand) {
	if c.pending != pc {
		return
	}
	c.pending = nil
	c.sar.Cancel(pc.packetID)
	c.log.Warn("command timed out", zap.Uint8("gid", pc.gid), zap.Uint8("oid", pc.oid))
	c.metrics.RecordCommandTimeout(pc.gid, pc.oid)
	c.metrics.RecordCommand(pc.gid, pc.oid, false, time.Since(c.cmdStarted).Seconds())
	pc.onResponse(false, nil)
}

// HandleControl implements sar.Client.
func (c *Core) HandleControl(h wire.Header, payload []byte) {
	switch h.Type {
	case wire.Response:
		c.handleResponse(h, payload)
	case wire.Notification:
		c.sm.HandleNotification(h.GID, h.OID, payload)
		c.handleUniversalNotification(h, payload)
	}
}

func (c *Core) handleResponse(h wire.Header, payload []byte) {
	if c.pending == nil || c.pending.gid != h.GID || c.pending.oid != h.OID {
		return
	}
	pc := c.pending
	c.pending = nil
	pc.timer.Stop()
	status := byte(0xff)
	if len(payload) > 0 {
		status = payload[0]
	}
	ok := status == wire.StatusOK
	c.metrics.RecordCommand(pc.gid, pc.oid, ok, time.Since(c.cmdStarted).Seconds())
	pc.onResponse(ok, payload)
}

// handleUniversalNotification applies notifications that are not
// specific to any one RF state: credit top-ups always adjust SAR flow
// control, wherever the machine currently is.
func (c *Core) handleUniversalNotification(h wire.Header, payload []byte) {
	if h.GID != wire.GidCore || h.OID != wire.OidCoreConnCredit {
		return
	}
	if len(payload) < 1 {
		return
	}
	count := int(payload[0])
	for i := 0; i < count && 1+2*i+1 < len(payload); i++ {
		connID := payload[1+2*i]
		delta := int(payload[1+2*i+1])
		c.sar.AddCredits(connID, delta)
	}
}

// HandleData implements sar.Client.
func (c *Core) HandleData(connID byte, payload []byte) {
	c.metrics.RecordDataReceived(len(payload))
	for _, f := range c.onIncomingData {
		if f != nil {
			f(connID, payload)
		}
	}
}

// Error implements sar.Client: a transport failure stalls the machine,
// since nothing further can be negotiated with the NFCC.
func (c *Core) Error(err error) {
	c.log.Error("transport error", zap.Error(err))
	c.metrics.RecordTransportError()
	c.sm.Stall(sm.StallError)
}
