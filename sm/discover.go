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
	"github.com/ponte-nfc/ncicore/tlv"
	"github.com/ponte-nfc/ncicore/wire"
)

// idleToDiscoveryTransition brings the NFCC's listen-mode parameters and
// routing table in line with the currently selected op_mode/tech before
// issuing RF_DISCOVER_CMD: CORE_GET_CONFIG_CMD/CORE_SET_CONFIG_CMD first
// reconcile the LA_* listen parameters, then (when listen is requested
// and the NFCC supports routing) RF_SET_LISTEN_MODE_ROUTING_CMD installs
// the routing table, then RF_DISCOVER_MAP_CMD maps protocols to RF
// interfaces, and finally RF_DISCOVER_CMD starts the poll/listen cycle.
// It corresponds to original_source/src/nci_transition_idle_to_discovery.c.
type idleToDiscoveryTransition struct{}

// NewIdleToDiscovery: RFST_IDLE -> RFST_DISCOVERY.
func NewIdleToDiscovery() Transition { return &idleToDiscoveryTransition{} }

func (t *idleToDiscoveryTransition) Target() StateID { return StateDiscovery }

func (t *idleToDiscoveryTransition) Start(m *SM) bool {
	t.getConfig(m)
	return true
}

func (t *idleToDiscoveryTransition) HandleNotification(m *SM, gid, oid byte, payload []byte) bool {
	return false
}

func (t *idleToDiscoveryTransition) Leave(m *SM) {}

// Listen-parameter ids, NCI 1.0 table 16.
const (
	configLASensRes1     = 0x30
	configLASelInfo      = 0x32
	configLANFCID1       = 0x33
	configLFProtocolType = 0x50
)

const (
	laSensRes1NFCID1LenMask = 0xc0
	laSelInfoISODEP         = 0x20
	lfProtocolTypeNFCDEP    = 0x02
)

func (t *idleToDiscoveryTransition) getConfig(m *SM) {
	ids := []byte{configLASensRes1, configLANFCID1, configLASelInfo, configLFProtocolType}
	payload := append([]byte{byte(len(ids))}, ids...)
	m.Send(wire.GidCore, wire.OidCoreGetConfig, payload, func(ok bool, rsp []byte) {
		actual := map[byte][]byte{}
		if ok && len(rsp) >= 2 {
			n := int(rsp[1])
			pos := 2
			for i := 0; i < n && pos+2 <= len(rsp); i++ {
				id, l := rsp[pos], int(rsp[pos+1])
				pos += 2
				if pos+l > len(rsp) {
					break
				}
				actual[id] = rsp[pos : pos+l]
				pos += l
			}
		}
		t.setConfig(m, actual)
	})
}

// setConfig builds CORE_SET_CONFIG_CMD for whichever listen parameters
// don't already match the value op_mode/techs requires, skipping the
// round trip entirely when everything already matches. Any error here
// is ignored: the discovery attempt proceeds regardless,
// mirroring the teacher's "continuing anyway" handling.
func (t *idleToDiscoveryTransition) setConfig(m *SM, actual map[byte][]byte) {
	var entries []tlv.Entry
	if v, ok := resolveConfigByte(actual[configLASensRes1], laSensRes1NFCID1LenMask, laNFCID1LenBits(m.laNFCID1)); !ok {
		entries = append(entries, tlv.Entry{Type: configLASensRes1, Value: []byte{v}})
	}
	if v, ok := resolveNFCID1(actual[configLANFCID1], m.laNFCID1); !ok {
		entries = append(entries, tlv.Entry{Type: configLANFCID1, Value: v})
	}
	if v, ok := resolveConfigByte(actual[configLASelInfo], laSelInfoISODEP, expectedLASelInfo(m)); !ok {
		entries = append(entries, tlv.Entry{Type: configLASelInfo, Value: []byte{v}})
	}
	if v, ok := resolveConfigByte(actual[configLFProtocolType], lfProtocolTypeNFCDEP, 0); !ok {
		entries = append(entries, tlv.Entry{Type: configLFProtocolType, Value: []byte{v}})
	}
	if len(entries) == 0 {
		t.setRouting(m)
		return
	}
	body, err := tlv.MarshalAll(entries)
	if err != nil {
		t.setRouting(m)
		return
	}
	payload := append([]byte{byte(len(entries))}, body...)
	m.Send(wire.GidCore, wire.OidCoreSetConfig, payload, func(ok bool, rsp []byte) {
		t.setRouting(m)
	})
}

// resolveConfigByte reproduces the teacher's "only the masked bits
// matter" comparison: bits outside mask are left as the NFCC already
// has them, and only mismatches in the masked bits trigger a write.
func resolveConfigByte(actual []byte, mask, desired byte) (value byte, ok bool) {
	var have byte
	if len(actual) == 1 {
		have = actual[0]
	}
	if len(actual) == 1 && have&mask == desired&mask {
		return 0, true
	}
	return (have &^ mask) | (desired & mask), false
}

// laNFCID1LenBits returns the SENS_RES NFCID1-size bits matching a
// statically configured NFCID1, or the single-size/dynamic-generation
// bits (0x00) when none is set — DIGITAL specifies nfcid1[0]==0x08 asks
// the NFCC to generate the rest.
func laNFCID1LenBits(nfcid1 []byte) byte {
	switch len(nfcid1) {
	case 7:
		return 0x40
	case 10:
		return 0x80
	default:
		return 0x00
	}
}

func resolveNFCID1(actual, configured []byte) (value []byte, ok bool) {
	expected := configured
	if len(expected) != 4 && len(expected) != 7 && len(expected) != 10 {
		expected = []byte{0x08, 0x00, 0x00, 0x00}
	}
	if bytesEqual(actual, expected) {
		return nil, true
	}
	return expected, false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// expectedLASelInfo asks for ISO-DEP listen support whenever listen
// mode is enabled at all; this core has no separate peer-mode concept,
// so the NFC-DEP bit (card-emulation-only NFCCs don't need it) is never
// requested.
func expectedLASelInfo(m *SM) byte {
	if m.opMode&OpModeListen != 0 {
		return laSelInfoISODEP
	}
	return 0
}

// setRouting installs the listen-mode routing table when the NFCC
// reports support for one (MaxRoutingTableSize > 0) and listen mode is
// requested, trying a combined protocol+technology table first, falling
// back to protocol-only and then technology-only on rejection — the
// same mixed/protocol/technology cascade as the teacher.
func (t *idleToDiscoveryTransition) setRouting(m *SM) {
	if m.caps.MaxRoutingTableSize == 0 || m.opMode&OpModeListen == 0 {
		t.discoverMap(m)
		return
	}
	t.sendRouting(m, mixedRoutingEntries(m), func(ok bool) {
		if ok {
			t.discoverMap(m)
			return
		}
		t.sendRouting(m, protocolRoutingEntries(m), func(ok bool) {
			if ok {
				t.discoverMap(m)
				return
			}
			t.sendRouting(m, technologyRoutingEntries(m), func(ok bool) {
				t.discoverMap(m)
			})
		})
	})
}

func (t *idleToDiscoveryTransition) sendRouting(m *SM, entries []tlv.Entry, done func(ok bool)) {
	body, err := tlv.MarshalAll(entries)
	if err != nil {
		done(false)
		return
	}
	payload := append([]byte{0x00, byte(len(entries))}, body...)
	m.Send(wire.GidRF, wire.OidRFSetListenMode, payload, func(ok bool, rsp []byte) {
		done(ok)
	})
}

const (
	routingEntryTypeTechnology = 0x00
	routingEntryTypeProtocol   = 0x01
	routingEntryPowerOn        = 0x01
	nfceeIDDH                  = 0x00

	protocolISODEP = 0x04
)

func routingEntry(entryType, value byte) tlv.Entry {
	return tlv.Entry{Type: entryType, Value: []byte{nfceeIDDH, routingEntryPowerOn, value}}
}

func protocolRoutingEntries(m *SM) []tlv.Entry {
	if m.techs&(TechA|TechB) == 0 {
		return nil
	}
	return []tlv.Entry{routingEntry(routingEntryTypeProtocol, protocolISODEP)}
}

// NCI RF Technology values (table 3), distinct from the
// technology-and-mode bytes RF_DISCOVER_CMD uses.
const (
	rfTechnologyA = 0x00
	rfTechnologyB = 0x01
	rfTechnologyF = 0x02
)

func technologyRoutingEntries(m *SM) []tlv.Entry {
	var entries []tlv.Entry
	if m.techs&TechF != 0 {
		entries = append(entries, routingEntry(routingEntryTypeTechnology, rfTechnologyF))
	}
	if m.techs&TechB != 0 {
		entries = append(entries, routingEntry(routingEntryTypeTechnology, rfTechnologyB))
	}
	if m.techs&TechA != 0 {
		entries = append(entries, routingEntry(routingEntryTypeTechnology, rfTechnologyA))
	}
	return entries
}

func mixedRoutingEntries(m *SM) []tlv.Entry {
	return append(protocolRoutingEntries(m), technologyRoutingEntries(m)...)
}

func (t *idleToDiscoveryTransition) discoverMap(m *SM) {
	payload := buildDiscoverMapPayload(m.opMode, m.techs)
	m.Send(wire.GidRF, wire.OidRFDiscoverMap, payload, func(ok bool, rsp []byte) {
		if !ok {
			m.FailTransition()
			return
		}
		t.discover(m)
	})
}

func (t *idleToDiscoveryTransition) discover(m *SM) {
	payload := buildDiscoverCmdPayload(m.opMode, m.techs)
	m.Send(wire.GidRF, wire.OidRFDiscover, payload, func(ok bool, rsp []byte) {
		if !ok {
			m.FailTransition()
			return
		}
		m.CompleteTransition()
	})
}

// mapEntry is one (protocol, mode, rf interface) triple of
// RF_DISCOVER_MAP_CMD.
type mapEntry struct {
	protocol, mode, rfInterface byte
}

const (
	protocolT1T = 0x01
	protocolT2T = 0x02
	protocolT3T = 0x03
	protocolT5T = 0x06

	discoverMapModePoll   = 0x01
	discoverMapModeListen = 0x02
)

// buildDiscoverMapPayload assembles RF_DISCOVER_MAP_CMD: this core has
// no separate peer/NFC-DEP op-mode, so poll maps every selected
// technology onto a tag-reader RF interface and listen maps the
// card-emulation technologies onto ISO-DEP.
func buildDiscoverMapPayload(mode OpMode, tech Tech) []byte {
	var entries []mapEntry
	if mode&OpModePoll != 0 {
		if tech&TechA != 0 {
			entries = append(entries,
				mapEntry{protocolT1T, discoverMapModePoll, activation.InterfaceFrame},
				mapEntry{protocolT2T, discoverMapModePoll, activation.InterfaceFrame})
		}
		if tech&TechF != 0 {
			entries = append(entries, mapEntry{protocolT3T, discoverMapModePoll, activation.InterfaceFrame})
		}
		if tech&TechV != 0 {
			entries = append(entries, mapEntry{protocolT5T, discoverMapModePoll, activation.InterfaceFrame})
		}
		if tech&(TechA|TechB) != 0 {
			entries = append(entries, mapEntry{protocolISODEP, discoverMapModePoll, activation.InterfaceISODEP})
		}
	}
	if mode&OpModeListen != 0 && tech&(TechA|TechB) != 0 {
		entries = append(entries, mapEntry{protocolISODEP, discoverMapModeListen, activation.InterfaceISODEP})
	}
	payload := make([]byte, 1, 1+3*len(entries))
	payload[0] = byte(len(entries))
	for _, e := range entries {
		payload = append(payload, e.protocol, e.mode, e.rfInterface)
	}
	return payload
}

// discoverEntry pairs one RF_DISCOVER_CMD technology/mode entry with its
// frequency field, fixed at 1 (every period) since the core does not
// expose duty-cycle control.
type discoverEntry struct {
	techMode byte
	freq     byte
}

// NCI RF_DISCOVER_CMD technology-and-mode values (table 59/60).
const (
	modeNFCAPassivePoll   = 0x00
	modeNFCBPassivePoll   = 0x01
	modeNFCFPassivePoll   = 0x02
	modeNFCAPassiveListen = 0x80
	modeNFCBPassiveListen = 0x81
	modeNFCFPassiveListen = 0x82
	modeNFCVPassivePoll   = 0x06
)

// buildDiscoverCmdPayload assembles RF_DISCOVER_CMD: a count byte
// followed by that many (technology-and-mode, frequency) pairs, one
// for each technology bit selected and each mode (poll/listen) enabled.
func buildDiscoverCmdPayload(mode OpMode, tech Tech) []byte {
	var entries []discoverEntry
	if mode&OpModePoll != 0 {
		if tech&TechA != 0 {
			entries = append(entries, discoverEntry{modeNFCAPassivePoll, 1})
		}
		if tech&TechB != 0 {
			entries = append(entries, discoverEntry{modeNFCBPassivePoll, 1})
		}
		if tech&TechF != 0 {
			entries = append(entries, discoverEntry{modeNFCFPassivePoll, 1})
		}
		if tech&TechV != 0 {
			entries = append(entries, discoverEntry{modeNFCVPassivePoll, 1})
		}
	}
	if mode&OpModeListen != 0 {
		if tech&TechA != 0 {
			entries = append(entries, discoverEntry{modeNFCAPassiveListen, 1})
		}
		if tech&TechB != 0 {
			entries = append(entries, discoverEntry{modeNFCBPassiveListen, 1})
		}
		if tech&TechF != 0 {
			entries = append(entries, discoverEntry{modeNFCFPassiveListen, 1})
		}
	}
	payload := make([]byte, 1, 1+2*len(entries))
	payload[0] = byte(len(entries))
	for _, e := range entries {
		payload = append(payload, e.techMode, e.freq)
	}
	return payload
}
