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

// Package sm implements the RF communication state machine: the states
// an NFC Controller can be driven through (idle, discovery, poll-active,
// listen-active, ...) and the transitions between them, each of which is
// a short-lived exchange of commands and notifications. It corresponds
// to no single teacher file (go-nfctype4 has no state machine of its
// own, since libnfc hides RF-level state from it); its shape is
// translated from original_source/src/nci_sm.c and nci_state.c into Go
// interfaces instead of a GObject class hierarchy.
package sm

import (
	"go.uber.org/zap"

	"github.com/ponte-nfc/ncicore/activation"
	"github.com/ponte-nfc/ncicore/wire"
)

// StateID identifies one of the RF states (or one of the three internal
// pseudo-states: Init, Error, Stop).
type StateID int

const (
	StateInit StateID = iota
	StateError
	StateStop
	StateIdle
	StateDiscovery
	StateW4AllDiscoveries
	StateW4HostSelect
	StatePollActive
	StateListenActive
	StateListenSleep
)

func (id StateID) String() string {
	switch id {
	case StateInit:
		return "INIT"
	case StateError:
		return "ERROR"
	case StateStop:
		return "STOP"
	case StateIdle:
		return "RFST_IDLE"
	case StateDiscovery:
		return "RFST_DISCOVERY"
	case StateW4AllDiscoveries:
		return "RFST_W4_ALL_DISCOVERIES"
	case StateW4HostSelect:
		return "RFST_W4_HOST_SELECT"
	case StatePollActive:
		return "RFST_POLL_ACTIVE"
	case StateListenActive:
		return "RFST_LISTEN_ACTIVE"
	case StateListenSleep:
		return "RFST_LISTEN_SLEEP"
	default:
		return "UNKNOWN"
	}
}

// State reacts to notifications that arrive while it is the current
// state (i.e. no transition is in progress).
type State interface {
	ID() StateID
	Enter(m *SM)
	HandleNotification(m *SM, gid, oid byte, payload []byte)
}

// Transition drives one short exchange of commands/notifications that
// moves the machine from one state to another. Exactly one transition
// is ever active at a time.
type Transition interface {
	// Target is the state this transition leads to on success.
	Target() StateID
	// Start begins the exchange. Returning false fails the transition
	// immediately (e.g. Io.Send rejected the command outright).
	Start(m *SM) bool
	// HandleNotification is offered every notification while this
	// transition is active, before the current state sees it. Returning
	// true means the transition consumed it.
	HandleNotification(m *SM, gid, oid byte, payload []byte) bool
	// Leave is called if the transition is abandoned before finishing,
	// e.g. superseded by a higher-priority switch_to.
	Leave(m *SM)
}

// Io is the SM's dependency on the rest of the core: sending a command
// and being told its outcome, and cancelling one still in flight. The
// façade implements this on top of sar.SAR plus its own cmd_timeout.
type Io interface {
	Send(gid, oid byte, payload []byte, onResponse func(ok bool, payload []byte)) uint32
	Cancel(id uint32)
}

// Capabilities holds the fields parsed out of CORE_INIT_RSP.
type Capabilities struct {
	NFCCFeatures         uint32
	MaxLogicalConns      byte
	MaxRoutingTableSize  uint16
	MaxControlPacketSize byte
	MaxDataPacketSize    uint16
	NumInitialCredits    byte
	RFInterfaces         []byte
	Version              Version
}

// Version distinguishes the NCI 1.0 CORE_INIT_RSP layout (the RF
// interface list right after nfcc_features, followed by the fixed
// connection/size fields) from the NCI 2.x layout (the fixed fields
// first, and the RF interface list at the end). See parseInitRsp.
type Version int

const (
	Version1 Version = iota
	Version2
)

// OpMode is the discovery/listen mode mask (poll vs listen).
type OpMode int

const (
	OpModePoll OpMode = 1 << iota
	OpModeListen
)

// Tech is a bitmask of RF technologies to discover/listen for.
type Tech int

const (
	TechA Tech = 1 << iota
	TechB
	TechF
	TechV
)

// SM owns the current/next state, the active transition (if any), the
// deferred next-switch slot, and the NFCC parameters learned at reset.
type SM struct {
	io        Io
	scheduler Scheduler
	log       *zap.Logger

	states      map[StateID]State
	transitions map[transitionKey]Transition

	last StateID
	next StateID

	active      Transition
	pendingNext *StateID
	idleFallback Transition

	caps    Capabilities
	opMode  OpMode
	techs   Tech

	llcVersion byte
	llcWKS     uint16
	laNFCID1   []byte

	discovered []DiscoveredEndpoint

	onLastState []func(StateID)
	onNextState []func(StateID)
	onIntfActivated []func(IntfActivation)
}

// Scheduler defers a function to run later on the owning event loop.
type Scheduler interface {
	Post(func())
}

// IntfActivation is the payload passed to interface-activated
// subscribers, parsed out of RF_INTF_ACTIVATED_NTF.
type IntfActivation struct {
	DiscoveryID byte
	Interface   byte
	Protocol    byte
	Mode        byte
	Param       activation.ActivationParam
}

// DiscoveredEndpoint is one entry reported by RF_DISCOVER_NTF while the
// machine accumulates endpoints in W4_ALL_DISCOVERIES, ahead of a
// consumer's RF_DISCOVER_SELECT_CMD choice.
type DiscoveredEndpoint struct {
	DiscoveryID byte
	Protocol    byte
	Mode        byte
	Param       activation.ModeParam
}

// New returns an SM positioned in the Init pseudo-state, with no
// technology or op-mode selected.
func New(io Io, scheduler Scheduler, log *zap.Logger) *SM {
	if log == nil {
		log = zap.NewNop()
	}
	m := &SM{
		io:          io,
		scheduler:   scheduler,
		log:         log,
		states:      map[StateID]State{},
		transitions: map[transitionKey]Transition{},
		last:        StateInit,
		next:        StateInit,
		llcVersion:  0x11,
		llcWKS:      0x0003,
	}
	for _, st := range []State{
		&idleState{}, &discoveryState{}, &w4AllDiscoveriesState{},
		&w4HostSelectState{}, &pollActiveState{}, &listenActiveState{},
		&listenSleepState{},
	} {
		m.states[st.ID()] = st
	}
	return m
}

// LastState is the current confirmed state.
func (m *SM) LastState() StateID { return m.last }

// NextState is the state being transitioned to, equal to LastState when
// no transition is active.
func (m *SM) NextState() StateID { return m.next }

// OnLastStateChanged subscribes to current-state-changed events. It
// returns an unsubscribe function.
func (m *SM) OnLastStateChanged(f func(StateID)) func() {
	m.onLastState = append(m.onLastState, f)
	idx := len(m.onLastState) - 1
	return func() { m.onLastState[idx] = nil }
}

// OnNextStateChanged subscribes to next-state-changed events.
func (m *SM) OnNextStateChanged(f func(StateID)) func() {
	m.onNextState = append(m.onNextState, f)
	idx := len(m.onNextState) - 1
	return func() { m.onNextState[idx] = nil }
}

// OnInterfaceActivated subscribes to interface-activated events.
func (m *SM) OnInterfaceActivated(f func(IntfActivation)) func() {
	m.onIntfActivated = append(m.onIntfActivated, f)
	idx := len(m.onIntfActivated) - 1
	return func() { m.onIntfActivated[idx] = nil }
}

func (m *SM) emitIntfActivated(a IntfActivation) {
	for _, f := range m.onIntfActivated {
		if f != nil {
			f(a)
		}
	}
}

func (m *SM) emitLastState(id StateID) {
	for _, f := range m.onLastState {
		if f != nil {
			f(id)
		}
	}
}

func (m *SM) emitNextState(id StateID) {
	for _, f := range m.onNextState {
		if f != nil {
			f(id)
		}
	}
}

// SetOpMode sets which of poll/listen discovery should target. Changing
// it while the machine is already discovering or active forces a
// restart through Discovery so the new mode takes effect immediately,
// rather than waiting for the next explicit Discover() call.
func (m *SM) SetOpMode(mode OpMode) {
	if mode == m.opMode {
		return
	}
	m.opMode = mode
	m.restartDiscoveryIfActive()
}

// SetTech sets which RF technologies discovery should target and
// returns the mask now in effect, which is tech as given: it is not
// filtered against Capabilities. As with SetOpMode, a change forces a
// restart through Discovery if the machine is not idle.
func (m *SM) SetTech(tech Tech) Tech {
	if tech != m.techs {
		m.techs = tech
		m.restartDiscoveryIfActive()
	}
	return m.techs
}

// restartDiscoveryIfActive re-requests Discovery after an op-mode/tech
// change, reusing switch_to's own IDLE-routing (startTransition) to tear
// down whatever is currently running — poll/listen activity included —
// before re-entering Discovery with the new settings. It is a no-op
// from any pseudo-state or from Idle itself, where there is nothing
// running to restart.
func (m *SM) restartDiscoveryIfActive() {
	if isInternalState(m.last) || m.last == StateIdle {
		return
	}
	m.SwitchTo(StateDiscovery)
}

// Capabilities returns the parameters learned from the last CORE_INIT_RSP.
func (m *SM) Capabilities() Capabilities { return m.caps }

// OpMode returns the currently selected poll/listen mask.
func (m *SM) OpMode() OpMode { return m.opMode }

// Tech returns the currently selected technology mask.
func (m *SM) Tech() Tech { return m.techs }

// Discovered returns the endpoints accumulated so far while waiting for
// a host selection in W4_ALL_DISCOVERIES/W4_HOST_SELECT.
func (m *SM) Discovered() []DiscoveredEndpoint {
	return append([]DiscoveredEndpoint(nil), m.discovered...)
}

func (m *SM) addDiscovered(e DiscoveredEndpoint) { m.discovered = append(m.discovered, e) }

func (m *SM) clearDiscovered() { m.discovered = nil }

// SelectDiscovery sends RF_DISCOVER_SELECT_CMD choosing one of the
// endpoints accumulated in Discovered, the W4_HOST_SELECT response to a
// consumer's selection among several simultaneously discovered
// endpoints. On failure it falls back to Idle, mirroring
// original_source's deactivate-to-idle registration for
// RFST_W4_HOST_SELECT.
func (m *SM) SelectDiscovery(discoveryID, protocol, rfInterface byte) {
	if m.last != StateW4HostSelect {
		return
	}
	m.Send(wire.GidRF, wire.OidRFDiscoverSelect, []byte{discoveryID, protocol, rfInterface}, func(ok bool, payload []byte) {
		if !ok {
			m.SwitchTo(StateIdle)
		}
	})
}

// transitionKey identifies a registered transition by the state it runs
// from and the state it leads to — the same target (e.g. Idle) is
// reached by several distinct transitions depending on where the
// machine is coming from (a fresh reset vs. a deactivate handshake).
type transitionKey struct {
	from StateID
	to   StateID
}

// AddTransition registers the transition to run when switching to its
// target state while currently in from. The transition registered from
// Init doubles as the idle-routing fallback used when switch_to needs
// to pass through Idle but has no state-specific transition to get
// there (see startTransition) — original_source/src/nci_sm.c's
// nci_sm_switch_internal calls this the "universal reset".
func (m *SM) AddTransition(from StateID, t Transition) {
	m.transitions[transitionKey{from, t.Target()}] = t
	if from == StateInit && t.Target() == StateIdle {
		m.idleFallback = t
	}
}

func isInternalState(id StateID) bool {
	return id == StateInit || id == StateError || id == StateStop
}

// SwitchTo requests a move to id. If a transition is already active,
// the request is remembered and acted on once the active transition
// finishes or is abandoned — switch_to never runs two transitions at
// once.
func (m *SM) SwitchTo(id StateID) {
	if m.active != nil {
		m.pendingNext = &id
		return
	}
	m.startTransition(id)
}

// startTransition implements switch_to's direct-lookup/IDLE-routing
// algorithm (original_source/src/nci_sm.c's nci_sm_switch_internal,
// no-active-transition branch): a registered (last, id) transition runs
// directly; failing that, an internal pseudo-state target is entered
// directly (there's nothing to negotiate); failing that, it tries to
// route through Idle — start a transition to Idle (state-specific if
// one is registered, else the universal reset), defer id as the
// pending switch unless id is Idle itself, and let CompleteTransition's call to consumePending
// try again once Idle is reached. If even the Idle leg can't be found,
// or the machine is already in Idle with nowhere else to go, it stalls.
func (m *SM) startTransition(id StateID) {
	if t, ok := m.transitions[transitionKey{m.last, id}]; ok {
		m.runTransition(t, id)
		return
	}
	if isInternalState(id) {
		m.enterState(id)
		return
	}
	if m.last == StateIdle {
		m.Stall(StallError)
		return
	}
	toIdle, ok := m.transitions[transitionKey{m.last, StateIdle}]
	if !ok {
		toIdle = m.idleFallback
	}
	if toIdle == nil {
		m.Stall(StallError)
		return
	}
	if id != StateIdle {
		next := id
		m.pendingNext = &next
	}
	m.runTransition(toIdle, StateIdle)
}

func (m *SM) runTransition(t Transition, target StateID) {
	m.next = target
	m.emitNextState(target)
	m.active = t
	if !t.Start(m) {
		m.abortActive()
		m.Stall(StallError)
	}
}

// CompleteTransition is called by the active transition once its
// exchange has succeeded.
func (m *SM) CompleteTransition() {
	t := m.active
	if t == nil {
		return
	}
	m.active = nil
	m.enterState(t.Target())
	m.consumePending()
}

// FailTransition is called by the active transition when its exchange
// fails; the machine stalls into the error state.
func (m *SM) FailTransition() {
	m.abortActive()
	m.Stall(StallError)
}

func (m *SM) abortActive() {
	t := m.active
	if t == nil {
		return
	}
	m.active = nil
	t.Leave(m)
}

func (m *SM) consumePending() {
	if m.pendingNext == nil {
		return
	}
	id := *m.pendingNext
	m.pendingNext = nil
	m.startTransition(id)
}

func (m *SM) enterState(id StateID) {
	m.last = id
	m.next = id
	if st := m.states[id]; st != nil {
		st.Enter(m)
	}
	m.emitLastState(id)
}

// StallType distinguishes the two internal pseudo-states a stall can
// land in.
type StallType int

const (
	StallError StallType = iota
	StallStop
)

// Stall abandons any active transition and moves directly to the Error
// or Stop pseudo-state, bypassing the normal transition machinery
// entirely (there is nothing to negotiate with the NFCC any more).
func (m *SM) Stall(t StallType) {
	m.abortActive()
	m.pendingNext = nil
	id := StateError
	if t == StallStop {
		id = StateStop
	}
	m.enterState(id)
}

// HandleNotification routes an inbound control notification to the
// active transition first, falling back to the current state if the
// transition doesn't consume it (or there is none).
func (m *SM) HandleNotification(gid, oid byte, payload []byte) {
	if m.active != nil && m.active.HandleNotification(m, gid, oid, payload) {
		return
	}
	if st := m.states[m.last]; st != nil {
		st.HandleNotification(m, gid, oid, payload)
	}
}

// Send is a convenience forward to the Io, used by states and
// transitions.
func (m *SM) Send(gid, oid byte, payload []byte, onResponse func(ok bool, payload []byte)) uint32 {
	return m.io.Send(gid, oid, payload, onResponse)
}
