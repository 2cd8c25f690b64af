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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ponte-nfc/ncicore/wire"
)

// fakeIo is a minimal Io: every Send is recorded and answered
// synchronously (or left pending) by the test.
type fakeIo struct {
	sent     []sentCmd
	cancelled []uint32
	nextID   uint32
}

type sentCmd struct {
	gid, oid byte
	payload  []byte
	resp     func(ok bool, payload []byte)
}

func (f *fakeIo) Send(gid, oid byte, payload []byte, onResponse func(ok bool, payload []byte)) uint32 {
	f.nextID++
	f.sent = append(f.sent, sentCmd{gid, oid, payload, onResponse})
	return f.nextID
}

func (f *fakeIo) Cancel(id uint32) {
	f.cancelled = append(f.cancelled, id)
}

func (f *fakeIo) last() sentCmd {
	return f.sent[len(f.sent)-1]
}

func newTestSM() (*SM, *fakeIo) {
	io := &fakeIo{}
	m := New(io, nil, nil)
	m.AddTransition(StateInit, NewReset())
	m.AddTransition(StateIdle, NewIdleToDiscovery())
	m.AddTransition(StateDiscovery, NewDiscoveryToIdle())
	m.AddTransition(StatePollActive, NewPollActiveToIdle())
	m.AddTransition(StatePollActive, NewPollActiveToDiscovery())
	m.AddTransition(StateListenActive, NewListenActiveToIdle())
	return m, io
}

func TestResetReachesIdleAndParsesV1Capabilities(t *testing.T) {
	m, io := newTestSM()
	m.SwitchTo(StateIdle)
	require.Equal(t, StateIdle, m.NextState())

	// CORE_RESET_RSP, NCI 1.0 layout: status, nci_version, config_status.
	require.Len(t, io.sent, 1)
	io.last().resp(true, []byte{0x00, 0x10, 0x00})

	// CORE_INIT_RSP, NCI 1.0 layout: status, features(4), numIf(1)=1,
	// rf_interfaces(1), max_logical_conns(1), max_routing_table_size(2),
	// max_ctrl_pkt_size(1), max_data_pkt_size(2), num_initial_credits(1).
	initRsp := []byte{
		0x00,             // status
		0x01, 0x00, 0x00, 0x00, // nfcc_features
		0x01, // numIf
		0x01, // rf_interfaces[0] = Frame RF interface
		0x01, // max_logical_conns
		0x20, 0x00, // max_routing_table_size = 32 LE
		0x20,       // max_ctrl_pkt_size
		0x20, 0x00, // max_data_pkt_size = 32 LE
		0x01, // num_initial_credits
	}
	io.last().resp(true, initRsp)

	// CORE_SET_CONFIG_RSP: the handshake lands in Idle once it arrives.
	require.Equal(t, byte(wire.OidCoreSetConfig), io.last().oid)
	io.last().resp(true, []byte{0x00})

	require.Equal(t, StateIdle, m.LastState())
	require.Equal(t, Version1, m.Capabilities().Version)
	require.Equal(t, byte(1), m.Capabilities().MaxLogicalConns)
	require.Equal(t, uint16(32), m.Capabilities().MaxRoutingTableSize)
}

func TestIdleToDiscoverySendsSelectedTech(t *testing.T) {
	m, io := newTestSM()
	m.SetTech(TechA)
	m.SetOpMode(OpModePoll)
	m.enterState(StateIdle) // test-only shortcut: skip the reset handshake

	m.SwitchTo(StateDiscovery)

	// CORE_GET_CONFIG_CMD: nothing held yet, every listen parameter
	// mismatches and triggers a CORE_SET_CONFIG_CMD.
	require.Equal(t, byte(wire.OidCoreGetConfig), io.last().oid)
	io.last().resp(true, []byte{0x00, 0x00})

	require.Equal(t, byte(wire.OidCoreSetConfig), io.last().oid)
	io.last().resp(true, []byte{0x00})

	// MaxRoutingTableSize is zero (no reset handshake ran), so routing
	// is skipped and RF_DISCOVER_MAP_CMD follows directly.
	require.Equal(t, byte(wire.OidRFDiscoverMap), io.last().oid)
	io.last().resp(true, []byte{0x00})

	cmd := io.last()
	require.Equal(t, byte(wire.GidRF), cmd.gid)
	require.Equal(t, byte(wire.OidRFDiscover), cmd.oid)
	require.Equal(t, []byte{0x01, modeNFCAPassivePoll, 0x01}, cmd.payload)

	cmd.resp(true, []byte{0x00})
	require.Equal(t, StateDiscovery, m.LastState())
}

func TestDiscoveryToPollActiveOnIntfActivated(t *testing.T) {
	m, _ := newTestSM()
	m.enterState(StateDiscovery)

	var got IntfActivation
	m.OnInterfaceActivated(func(a IntfActivation) { got = a })

	// discovery_id, rf_interface=ISO-DEP, protocol=ISO-DEP, mode=poll A,
	// then a minimal one-byte ATS (length=1, T0=0x00: no TA/TB/TC).
	m.HandleNotification(wire.GidRF, wire.OidRFIntfActivated, []byte{0x01, 0x02, 0x04, 0x00, 0x01, 0x00})
	require.Equal(t, StatePollActive, m.LastState())
	require.Equal(t, byte(0x01), got.DiscoveryID)
	require.NotNil(t, got.Param.ISODEPPollA)
	require.Equal(t, 16, got.Param.ISODEPPollA.FSC)
}

func TestPollActiveToIdleViaDeactivate(t *testing.T) {
	m, io := newTestSM()
	m.enterState(StatePollActive)

	m.SwitchTo(StateIdle)
	require.Equal(t, byte(wire.OidRFDeactivate), io.last().oid)
	io.last().resp(true, nil)
	require.Equal(t, StatePollActive, m.LastState(), "completes only on the NTF, not the RSP")

	m.HandleNotification(wire.GidRF, wire.OidRFDeactivate, nil)
	require.Equal(t, StateIdle, m.LastState())
}

func TestListenActiveToIdleAcceptsIntfErrorRace(t *testing.T) {
	m, io := newTestSM()
	m.enterState(StateListenActive)

	m.SwitchTo(StateIdle)
	io.last().resp(true, nil)

	// CORE_INTERFACE_ERROR_NTF arrives instead of RF_DEACTIVATE_NTF.
	m.HandleNotification(wire.GidCore, wire.OidCoreIntfError, nil)
	require.Equal(t, StateIdle, m.LastState())
}

func TestSwitchToWhileTransitionActiveIsDeferred(t *testing.T) {
	m, io := newTestSM()
	m.enterState(StatePollActive)

	m.SwitchTo(StateIdle) // starts poll-active -> idle
	m.SwitchTo(StateDiscovery) // requested again before the first finishes

	require.Equal(t, StateIdle, m.NextState(), "next reflects the in-flight transition, not the queued one")

	io.last().resp(true, nil)
	m.HandleNotification(wire.GidRF, wire.OidRFDeactivate, nil)
	require.Equal(t, StateIdle, m.LastState(), "first transition completes normally")

	// The deferred switch now runs.
	require.Equal(t, StateDiscovery, m.NextState())
}

func TestOnlyOneActiveTransitionAtATime(t *testing.T) {
	m, io := newTestSM()
	m.enterState(StatePollActive)

	m.SwitchTo(StateIdle)
	sentBefore := len(io.sent)
	m.SwitchTo(StateDiscovery) // must not start a second exchange yet
	require.Equal(t, sentBefore, len(io.sent))
}

func TestNotificationRoutedToActiveTransitionNotCurrentState(t *testing.T) {
	m, io := newTestSM()
	m.enterState(StatePollActive)
	m.SwitchTo(StateIdle)
	io.last().resp(true, nil)

	// pollActiveState would otherwise treat a bare RF_DEACTIVATE_NTF as
	// an unsolicited deactivation back to Discovery; since a transition
	// is active it must be consumed there instead, landing in Idle.
	m.HandleNotification(wire.GidRF, wire.OidRFDeactivate, nil)
	require.Equal(t, StateIdle, m.LastState())
}

func TestStallAbandonsActiveTransitionAndCancelsIO(t *testing.T) {
	m, io := newTestSM()
	m.enterState(StatePollActive)
	m.SwitchTo(StateIdle)

	m.Stall(StallError)
	require.Equal(t, StateError, m.LastState())
	require.Len(t, io.cancelled, 1)
}
