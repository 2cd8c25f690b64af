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

import (
	"github.com/ponte-nfc/ncicore/activation"
	"github.com/ponte-nfc/ncicore/wire"
)

// idleState is RFST_IDLE: discovery is stopped and nothing is active.
// It reacts to nothing; the only way out is SwitchTo(StateDiscovery).
type idleState struct{}

func (s *idleState) ID() StateID         { return StateIdle }
func (s *idleState) Enter(m *SM)         {}
func (s *idleState) HandleNotification(m *SM, gid, oid byte, payload []byte) {}

// discoveryState is RFST_DISCOVERY: RF_DISCOVER_NTF may arrive reporting
// a remote endpoint, or RF_INTF_ACTIVATED_NTF may arrive directly when
// the NFCC auto-activates a single discovered endpoint.
type discoveryState struct{}

func (s *discoveryState) ID() StateID { return StateDiscovery }
func (s *discoveryState) Enter(m *SM) { m.clearDiscovered() }

func (s *discoveryState) HandleNotification(m *SM, gid, oid byte, payload []byte) {
	if gid != wire.GidRF {
		return
	}
	switch oid {
	case wire.OidRFDiscoverNtf:
		if recordDiscovery(m, payload) {
			m.enterState(StateW4HostSelect)
		} else {
			m.enterState(StateW4AllDiscoveries)
		}
	case wire.OidRFIntfActivated:
		handleIntfActivated(m, payload)
		if len(payload) >= 4 && payload[3]&0x80 != 0 {
			m.enterState(StateListenActive)
		} else {
			m.enterState(StatePollActive)
		}
	}
}

// w4AllDiscoveriesState is RFST_W4_ALL_DISCOVERIES: multiple endpoints
// were discovered in the same poll cycle and the NFCC is still
// reporting them one by one.
type w4AllDiscoveriesState struct{}

func (s *w4AllDiscoveriesState) ID() StateID { return StateW4AllDiscoveries }
func (s *w4AllDiscoveriesState) Enter(m *SM) {}

func (s *w4AllDiscoveriesState) HandleNotification(m *SM, gid, oid byte, payload []byte) {
	if gid == wire.GidRF && oid == wire.OidRFDiscoverNtf {
		if recordDiscovery(m, payload) {
			m.enterState(StateW4HostSelect)
		}
		// Else: still more to come, stay in W4_ALL_DISCOVERIES.
	}
}

// recordDiscovery parses one RF_DISCOVER_NTF, appends it to the
// accumulated endpoint list, and reports whether this was the last
// notification of the batch (NCI 1.0 Table 52: notification type 2
// means more are coming; anything else, including the limit-reached
// variant, means this is the last one).
func recordDiscovery(m *SM, payload []byte) (last bool) {
	if len(payload) < 5 {
		return true
	}
	n := int(payload[3])
	if len(payload) < 5+n {
		return true
	}
	mode := payload[2]
	modeParam, _ := activation.ParseModeParam(activation.Mode(mode), payload[4:4+n])
	m.addDiscovered(DiscoveredEndpoint{
		DiscoveryID: payload[0],
		Protocol:    payload[1],
		Mode:        mode,
		Param:       modeParam,
	})
	return payload[4+n] != 2 // 2 = More Notification to follow
}

// w4HostSelectState is RFST_W4_HOST_SELECT: the consumer picks one of
// the discovered endpoints via SM.SelectDiscovery (which sends
// RF_DISCOVER_SELECT_CMD); a failed selection, or a generic error
// reported before activation completes, falls back to Idle.
type w4HostSelectState struct{}

func (s *w4HostSelectState) ID() StateID { return StateW4HostSelect }
func (s *w4HostSelectState) Enter(m *SM) {}

func (s *w4HostSelectState) HandleNotification(m *SM, gid, oid byte, payload []byte) {
	switch {
	case gid == wire.GidRF && oid == wire.OidRFIntfActivated:
		handleIntfActivated(m, payload)
		m.enterState(StatePollActive)
	case gid == wire.GidCore && oid == wire.OidCoreGenericErr:
		m.SwitchTo(StateIdle)
	}
}

// pollActiveState is RFST_POLL_ACTIVE: a remote endpoint is activated in
// poll mode. An unsolicited RF_DEACTIVATE_NTF ends it;
// CORE_INTERFACE_ERROR_NTF is not handled in this state.
type pollActiveState struct{}

func (s *pollActiveState) ID() StateID { return StatePollActive }
func (s *pollActiveState) Enter(m *SM) {}

func (s *pollActiveState) HandleNotification(m *SM, gid, oid byte, payload []byte) {
	if gid == wire.GidRF && oid == wire.OidRFDeactivate {
		// Unsolicited deactivation (peer removed): land back in
		// discovery, mirroring RF_DEACTIVATE_NTF(Discovery) semantics.
		m.SwitchTo(StateDiscovery)
	}
}

// listenActiveState is RFST_LISTEN_ACTIVE: this NFCC is the target of a
// remote reader. CORE_INTERFACE_ERROR_NTF here is an unsolicited,
// recoverable link drop (distinct from the host-requested deactivation
// the dedicated listenActiveToIdle transition exists to resolve), and
// is answered by going back to discovery to listen for a new reader.
type listenActiveState struct{}

func (s *listenActiveState) ID() StateID { return StateListenActive }
func (s *listenActiveState) Enter(m *SM) {}

func (s *listenActiveState) HandleNotification(m *SM, gid, oid byte, payload []byte) {
	if gid != wire.GidCore {
		return
	}
	if oid == wire.OidCoreIntfError {
		m.SwitchTo(StateDiscovery)
	}
}

// listenSleepState is RFST_LISTEN_SLEEP: listening continues but the
// remote link is quiescent.
type listenSleepState struct{}

func (s *listenSleepState) ID() StateID { return StateListenSleep }
func (s *listenSleepState) Enter(m *SM) {}

func (s *listenSleepState) HandleNotification(m *SM, gid, oid byte, payload []byte) {
	if gid == wire.GidRF && oid == wire.OidRFIntfActivated {
		handleIntfActivated(m, payload)
		m.enterState(StateListenActive)
	}
}

// handleIntfActivated parses the fixed-position fields of
// RF_INTF_ACTIVATED_NTF common to every RF interface, hands the
// variable tail to the activation package for typed decoding, and
// emits the interface-activated event.
func handleIntfActivated(m *SM, payload []byte) {
	if len(payload) < 4 {
		return
	}
	discoveryID, rfInterface, protocol, mode := payload[0], payload[1], payload[2], payload[3]
	param, _ := activation.ParseActivationParam(rfInterface, activation.Mode(mode), payload[4:])
	m.emitIntfActivated(IntfActivation{
		DiscoveryID: discoveryID,
		Interface:   rfInterface,
		Protocol:    protocol,
		Mode:        mode,
		Param:       param,
	})
}
