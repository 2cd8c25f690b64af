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

package sm

import "github.com/ponte-nfc/ncicore/wire"

// deactivateTransition sends RF_DEACTIVATE_CMD with a given deactivation
// type and waits for RF_DEACTIVATE_NTF before declaring the target state
// reached. original_source keeps four near-identical transition files
// (discovery-to-idle, poll-active-to-idle, poll-active-to-discovery,
// and a generic active-to-idle/discovery fallback) that differ only in
// the deactivation type byte and the target state; this type is the one
// parametrized implementation backing all of them; NewDiscoveryToIdle
// etc. below are the named constructors the façade registers.
//
// RF_DEACTIVATE_NTF carries its own type byte (NCI 1.0 Table 62), which
// can differ from the type requested in RF_DEACTIVATE_CMD — the NFCC is
// authoritative about where the link actually ended up, so the reached
// state is resolved from the notification rather than assumed from
// deactivationType.
//
// listenActiveRace additionally handles the NCI 2.0 ordering quirk
// where, for a listen-mode deactivation requested by the host,
// CORE_INTERFACE_ERROR_NTF can arrive instead of, or racing with, the
// expected RF_DEACTIVATE_NTF: either is accepted as completion, and
// whichever comes first is remembered (pendingNTF) until the
// RF_DEACTIVATE_RSP itself arrives, since the transition must not
// complete before its own command is acknowledged.
type deactivateTransition struct {
	target           StateID
	deactivationType byte
	listenActiveRace bool
	retryToIdle      bool
	pending          uint32

	rspDone    bool
	pendingNTF bool
}

func newDeactivate(target StateID, deactivationType byte, listenActiveRace, retryToIdle bool) *deactivateTransition {
	return &deactivateTransition{target: target, deactivationType: deactivationType, listenActiveRace: listenActiveRace, retryToIdle: retryToIdle}
}

// NewDiscoveryToIdle: RFST_DISCOVERY -> RFST_IDLE.
func NewDiscoveryToIdle() Transition {
	return newDeactivate(StateIdle, wire.DeactivateToIdle, false, false)
}

// NewPollActiveToIdle: RFST_POLL_ACTIVE -> RFST_IDLE.
func NewPollActiveToIdle() Transition {
	return newDeactivate(StateIdle, wire.DeactivateToIdle, false, false)
}

// NewPollActiveToDiscovery: RFST_POLL_ACTIVE -> RFST_DISCOVERY. If the
// NFCC rejects RF_DEACTIVATE_CMD(Discovery) outright, a plain
// deactivate-to-idle is retried before giving up — the endpoint may no
// longer support re-entering discovery directly from an active link,
// but dropping to Idle always works.
func NewPollActiveToDiscovery() Transition {
	return newDeactivate(StateDiscovery, wire.DeactivateToDiscovery, false, true)
}

// NewListenActiveToIdle: RFST_LISTEN_ACTIVE -> RFST_IDLE, tolerating the
// CORE_INTERFACE_ERROR_NTF/RF_DEACTIVATE_NTF race.
func NewListenActiveToIdle() Transition {
	return newDeactivate(StateIdle, wire.DeactivateToIdle, true, false)
}

func (t *deactivateTransition) Target() StateID { return t.target }

func (t *deactivateTransition) Start(m *SM) bool {
	t.rspDone = false
	t.pendingNTF = false
	t.pending = m.Send(wire.GidRF, wire.OidRFDeactivate, []byte{t.deactivationType}, func(ok bool, payload []byte) {
		if !ok {
			if t.retryToIdle {
				t.retryAsIdle(m)
				return
			}
			m.FailTransition()
			return
		}
		t.rspDone = true
		if t.pendingNTF {
			m.CompleteTransition()
		}
	})
	return true
}

// retryAsIdle re-issues the command as a plain deactivate-to-idle after
// the original deactivation type was rejected.
func (t *deactivateTransition) retryAsIdle(m *SM) {
	t.target = StateIdle
	t.deactivationType = wire.DeactivateToIdle
	t.retryToIdle = false
	t.pending = m.Send(wire.GidRF, wire.OidRFDeactivate, []byte{t.deactivationType}, func(ok bool, payload []byte) {
		if !ok {
			m.FailTransition()
			return
		}
		t.rspDone = true
		if t.pendingNTF {
			m.CompleteTransition()
		}
	})
}

func (t *deactivateTransition) HandleNotification(m *SM, gid, oid byte, payload []byte) bool {
	switch {
	case gid == wire.GidRF && oid == wire.OidRFDeactivate:
		if notified, ok := deactivateTargetFor(payload); ok {
			t.target = notified
		}
		t.finish(m)
		return true
	case t.listenActiveRace && gid == wire.GidCore && oid == wire.OidCoreIntfError:
		t.finish(m)
		return true
	}
	return false
}

// finish completes the transition once the notification has arrived,
// or remembers it (pendingNTF) if the command's own response is still
// outstanding.
func (t *deactivateTransition) finish(m *SM) {
	if !t.rspDone {
		t.pendingNTF = true
		return
	}
	m.CompleteTransition()
}

// deactivateTargetFor maps RF_DEACTIVATE_NTF's type byte to the state
// it actually reached. Sleep_AF resolves to ListenSleep; plain Sleep
// (and any unknown type) is left unresolved and the transition's
// originally requested target is kept.
func deactivateTargetFor(payload []byte) (StateID, bool) {
	if len(payload) < 1 {
		return StateIdle, false
	}
	switch payload[0] {
	case wire.DeactivateToIdle:
		return StateIdle, true
	case wire.DeactivateToDiscovery:
		return StateDiscovery, true
	case wire.DeactivateToSleepAF:
		return StateListenSleep, true
	default:
		return StateIdle, false
	}
}

func (t *deactivateTransition) Leave(m *SM) {
	m.io.Cancel(t.pending)
}
