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

// Package simulator implements a software NFC Controller: unlike
// loopback, which merely records writes and lets a test hand back
// whatever bytes it likes, HAL here actually parses incoming NCI
// commands and answers them the way a real NFCC would, enough to drive
// a Core through reset, discovery, and a simulated tag activation
// without any hardware. It generalizes the teacher's
// DummyCommandDriver (pre-programmed canned responses, played back in
// order) into a driver that understands the commands it receives, the
// way a real NFCC responder must.
package simulator

import (
	"sync"

	"github.com/ponte-nfc/ncicore/hal"
	"github.com/ponte-nfc/ncicore/wire"
)

// HAL simulates an NFCC that supports RF discovery of a single Type A
// poll target. It is intended for integration tests and for exercising
// cmd/ncictl without hardware.
type HAL struct {
	mu      sync.Mutex
	client  hal.Client
	started bool

	// NFCID1 is the identifier the simulated tag reports on activation.
	NFCID1 []byte
}

// New returns a simulator pre-configured with a 4-byte NFCID1.
func New() *HAL {
	return &HAL{NFCID1: []byte{0xDE, 0xAD, 0xBE, 0xEF}}
}

func (h *HAL) Start(client hal.Client) bool {
	h.mu.Lock()
	h.client = client
	h.started = true
	h.mu.Unlock()
	return true
}

func (h *HAL) Stop() {
	h.mu.Lock()
	h.started = false
	h.mu.Unlock()
}

func (h *HAL) CancelWrite() {}

// Write is handed a fully framed header+payload command and answers
// synchronously via the registered Client, as a transport over a fast
// local bus would.
func (h *HAL) Write(chunks [][]byte, onDone func(ok bool)) {
	var frame []byte
	for _, c := range chunks {
		frame = append(frame, c...)
	}
	onDone(true)
	hdr, err := wire.Decode(frame)
	if err != nil {
		return
	}
	payload := frame[wire.HeaderLen:]
	if hdr.Type != wire.Command {
		return
	}
	h.handleCommand(hdr, payload)
}

func (h *HAL) handleCommand(hdr wire.Header, payload []byte) {
	switch {
	case hdr.GID == wire.GidCore && hdr.OID == wire.OidCoreReset:
		// NCI 1.0-layout CORE_RESET_RSP: status, nci_version, config_status.
		h.respond(wire.Response, hdr.GID, hdr.OID, []byte{wire.StatusOK, 0x10, 0x00})
	case hdr.GID == wire.GidCore && hdr.OID == wire.OidCoreInit:
		h.respond(wire.Response, hdr.GID, hdr.OID, h.initRsp())
	case hdr.GID == wire.GidCore && hdr.OID == wire.OidCoreGetConfig:
		// No parameters held; every comparison in idle_to_discovery
		// mismatches and gets written back via CORE_SET_CONFIG_CMD below.
		h.respond(wire.Response, hdr.GID, hdr.OID, []byte{wire.StatusOK, 0x00})
	case hdr.GID == wire.GidCore && hdr.OID == wire.OidCoreSetConfig:
		h.respond(wire.Response, hdr.GID, hdr.OID, []byte{wire.StatusOK})
	case hdr.GID == wire.GidRF && hdr.OID == wire.OidRFSetListenMode:
		h.respond(wire.Response, hdr.GID, hdr.OID, []byte{wire.StatusOK})
	case hdr.GID == wire.GidRF && hdr.OID == wire.OidRFDiscoverMap:
		h.respond(wire.Response, hdr.GID, hdr.OID, []byte{wire.StatusOK})
	case hdr.GID == wire.GidRF && hdr.OID == wire.OidRFDiscover:
		h.respond(wire.Response, hdr.GID, hdr.OID, []byte{wire.StatusOK})
		h.notifyDiscovery()
	case hdr.GID == wire.GidRF && hdr.OID == wire.OidRFDeactivate:
		h.respond(wire.Response, hdr.GID, hdr.OID, []byte{wire.StatusOK})
		h.notifyDeactivated(payload)
	}
}

// initRsp builds an NCI 1.0-layout CORE_INIT_RSP advertising poll A.
func (h *HAL) initRsp() []byte {
	return []byte{
		wire.StatusOK,
		0x00, 0x00, 0x00, 0x00, // nfcc_features
		0x01,       // num_rf_interfaces
		0x01,       // rf_interfaces[0] = frame
		0x01,       // max_logical_conns
		0x20, 0x00, // max_routing_table_size
		0x20,       // max_ctrl_pkt_size
		0x20, 0x00, // max_data_pkt_size
		0x01, // num_initial_credits
	}
}

// notifyDiscovery delivers RF_INTF_ACTIVATED_NTF a moment after
// RF_DISCOVER_CMD succeeds, simulating a Type A tag entering the field.
func (h *HAL) notifyDiscovery() {
	payload := []byte{
		0x01,             // discovery id
		0x02,             // rf interface = ISO-DEP
		0x04,             // protocol = ISO-DEP
		0x00,             // mode = poll A
		byte(len(h.NFCID1)),
	}
	payload = append(payload, h.NFCID1...)
	h.respond(wire.Notification, wire.GidRF, wire.OidRFIntfActivated, payload)
}

func (h *HAL) notifyDeactivated(cmdPayload []byte) {
	deactType := byte(wire.DeactivateToIdle)
	if len(cmdPayload) > 0 {
		deactType = cmdPayload[0]
	}
	h.respond(wire.Notification, wire.GidRF, wire.OidRFDeactivate,
		[]byte{deactType, wire.DeactivateReasonDHRequest})
}

func (h *HAL) respond(t wire.MessageType, gid, oid byte, payload []byte) {
	h.mu.Lock()
	client := h.client
	started := h.started
	h.mu.Unlock()
	if !started || client == nil {
		return
	}
	hdr := wire.Header{Type: t, GID: gid, OID: oid, Length: byte(len(payload))}
	b := hdr.Bytes()
	frame := append(append([]byte(nil), b[:]...), payload...)
	client.Read(frame)
}
