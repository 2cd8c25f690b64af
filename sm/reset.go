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
	"github.com/ponte-nfc/ncicore/tlv"
	"github.com/ponte-nfc/ncicore/wire"
)

// resetTransition drives CORE_RESET_CMD followed by CORE_INIT_CMD and
// CORE_SET_CONFIG_CMD, landing in Idle with Capabilities populated. It
// corresponds to original_source/src/nci_transition_reset.c.
//
// CORE_RESET_RSP's payload length tells NCI 1.0 and 2.x apart: a 3-byte
// response (status, nci_version, config_status) is 1.0 and CORE_INIT_CMD
// follows immediately with no payload; a 1-byte response (status only)
// is 2.x, where CORE_RESET_NTF must arrive before CORE_INIT_CMD{0,0} is
// sent.
type resetTransition struct {
	version2 bool
}

// NewReset returns the transition registered for StateInit/StateError
// that performs the full reset handshake.
func NewReset() Transition { return &resetTransition{} }

func (t *resetTransition) Target() StateID { return StateIdle }

func (t *resetTransition) Start(m *SM) bool {
	// Keep Configuration: 0 = keep, 1 = reset to manufacturer defaults.
	m.Send(wire.GidCore, wire.OidCoreReset, []byte{0x00}, func(ok bool, payload []byte) {
		if !ok {
			m.FailTransition()
			return
		}
		t.version2 = len(payload) < 3
		if t.version2 {
			return // wait for CORE_RESET_NTF, handled in HandleNotification
		}
		t.sendInit(m, nil)
	})
	return true
}

func (t *resetTransition) sendInit(m *SM, payload []byte) {
	m.Send(wire.GidCore, wire.OidCoreInit, payload, func(ok bool, rsp []byte) {
		if !ok {
			m.FailTransition()
			return
		}
		t.parseInitRsp(m, rsp)
		t.setConfig(m)
	})
}

// HandleNotification waits for CORE_RESET_NTF on the NCI 2.x path
// before issuing CORE_INIT_CMD.
func (t *resetTransition) HandleNotification(m *SM, gid, oid byte, payload []byte) bool {
	if t.version2 && gid == wire.GidCore && oid == wire.OidCoreReset {
		t.sendInit(m, []byte{0x00, 0x00})
		return true
	}
	return false
}

// parseInitRsp decodes CORE_INIT_RSP. The NCI 1.0 layout is:
//
//	status(1) nfcc_features(4) num_rf_interfaces(1) rf_interfaces(n)
//	max_logical_conns(1) max_routing_table_size(2,LE)
//	max_ctrl_pkt_size(1) max_data_pkt_size(2,LE) num_initial_credits(1)
//
// The NCI 2.x layout is:
//
//	status(1) nfcc_features(4) max_logical_conns(1)
//	max_routing_table_size(2,LE) max_ctrl_pkt_size(1)
//	max_hci_data_pkt_size(1) num_hci_credits(1) max_nfcv_frame_size(2,LE)
//	num_rf_interfaces(1) then one 2-byte entry per interface, whose
//	first byte is the interface type
//
// The static-HCI fields are not kept, so MaxDataPacketSize and
// NumInitialCredits stay zero on this path. Anything shorter than the
// fixed prefix is treated as a truncated response and leaves zero-value
// Capabilities for the caller to detect via len(RFInterfaces) == 0.
func (t *resetTransition) parseInitRsp(m *SM, payload []byte) {
	const v1Prefix = 1 + 4 + 1
	if len(payload) < v1Prefix {
		return
	}
	// Disambiguate by trying the NCI 1.0 layout first: if the declared
	// RF interface count is consistent with the remaining bytes once
	// the fixed v1.0 trailer is subtracted, it's v1.0. Otherwise assume
	// v2.x.
	numIf := int(payload[5])
	v1Total := v1Prefix + numIf + 1 + 2 + 1 + 2 + 1
	if len(payload) == v1Total {
		m.caps = Capabilities{
			Version:              Version1,
			NFCCFeatures:         le32(payload[1:5]),
			RFInterfaces:         append([]byte(nil), payload[6:6+numIf]...),
			MaxLogicalConns:      payload[6+numIf],
			MaxRoutingTableSize:  wire.Uint16LE(payload[7+numIf : 9+numIf]),
			MaxControlPacketSize: payload[9+numIf],
			MaxDataPacketSize:    wire.Uint16LE(payload[10+numIf : 12+numIf]),
			NumInitialCredits:    payload[12+numIf],
		}
		return
	}
	const v2Prefix = 1 + 4 + 1 + 2 + 1 + 1 + 1 + 2
	if len(payload) < v2Prefix+1 {
		return
	}
	numIf2 := int(payload[v2Prefix])
	var ifs []byte
	for i := 0; i < numIf2 && v2Prefix+1+2*i < len(payload); i++ {
		ifs = append(ifs, payload[v2Prefix+1+2*i])
	}
	m.caps = Capabilities{
		Version:              Version2,
		NFCCFeatures:         le32(payload[1:5]),
		MaxLogicalConns:      payload[5],
		MaxRoutingTableSize:  wire.Uint16LE(payload[6:8]),
		MaxControlPacketSize: payload[8],
		RFInterfaces:         ifs,
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// LLCP general-byte TLV types, NFC Forum LLCP 1.3 §4.5.
const (
	llcpTLVVersion = 0x01
	llcpTLVMIUX    = 0x02
	llcpTLVWKS     = 0x03
	llcpTLVLTO     = 0x04
	llcpTLVOPT     = 0x07
)

var llcpMagic = []byte{0x46, 0x66, 0x6d}

// setConfig builds and sends CORE_SET_CONFIG_CMD carrying the LLCP
// general-bytes block for NFC-DEP negotiation (ATR_REQ/ATR_RES
// PN/LN_ATR_*_GEN_BYTES) plus the bail-out/ATR-config entries. It
// finishes into Idle regardless of the outcome: a rejected
// CORE_SET_CONFIG_CMD here does not prevent discovery from working.
func (t *resetTransition) setConfig(m *SM) {
	llcpEntries := []tlv.Entry{
		{Type: llcpTLVVersion, Value: []byte{m.llcVersion}},
		{Type: llcpTLVMIUX, Value: []byte{0x07, 0xff}},
		{Type: llcpTLVWKS, Value: []byte{byte(m.llcWKS >> 8), byte(m.llcWKS)}},
		{Type: llcpTLVLTO, Value: []byte{0x64}},
		{Type: llcpTLVOPT, Value: []byte{0x03}},
	}
	llcpBytes, err := tlv.MarshalAll(llcpEntries)
	if err != nil {
		m.CompleteTransition()
		return
	}
	gb := append(append([]byte(nil), llcpMagic...), llcpBytes...)

	entries := []tlv.Entry{
		{Type: 0x00, Value: []byte{0xf4, 0x01}}, // TOTAL_DURATION = 500ms, LE
		{Type: 0x08, Value: []byte{0x00}},        // PA_BAIL_OUT
		{Type: 0x11, Value: []byte{0x00}},        // PB_BAIL_OUT
		{Type: 0x62, Value: []byte{0x30}},        // LN_ATR_RES_CONFIG
		{Type: 0x2a, Value: []byte{0x30}},        // PN_ATR_REQ_CONFIG
		{Type: 0x61, Value: gb},                  // LN_ATR_RES_GEN_BYTES
		{Type: 0x29, Value: gb},                  // PN_ATR_REQ_GEN_BYTES
	}
	body, err := tlv.MarshalAll(entries)
	if err != nil {
		m.CompleteTransition()
		return
	}
	payload := append([]byte{byte(len(entries))}, body...)
	m.Send(wire.GidCore, wire.OidCoreSetConfig, payload, func(ok bool, rsp []byte) {
		m.CompleteTransition()
	})
}

func (t *resetTransition) Leave(m *SM) {}
