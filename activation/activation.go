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

// Package activation parses the RF-technology-specific and activation-
// specific parameter blocks carried inside RF_DISCOVER_NTF and
// RF_INTF_ACTIVATED_NTF into typed, immutable records. It corresponds
// to no teacher file (go-nfctype4's APDU layer sits above activation,
// not inside it) and is instead translated from
// original_source/src/nci_util.c's nci_parse_mode_param and
// nci_parse_activation_param byte-table decoders.
package activation

// Mode identifies the RF technology and poll/listen side a parameter
// block was parsed for, matching the NCI Table 53 mode byte values.
type Mode byte

const (
	ModePassivePollA   Mode = 0x00
	ModePassivePollB   Mode = 0x01
	ModePassivePollF   Mode = 0x02
	ModeActivePollA    Mode = 0x03
	ModeActivePollF    Mode = 0x05
	ModePassiveListenA Mode = 0x80
	ModePassiveListenB Mode = 0x81
	ModePassiveListenF Mode = 0x82
	ModeActiveListenA  Mode = 0x83
	ModeActiveListenF  Mode = 0x85
	ModePassivePollV   Mode = 0x06
	ModePassiveListenV Mode = 0x86
)

// PollA is NCI Table 54: Specific Parameters for NFC-A Poll Mode.
type PollA struct {
	SensRes [2]byte
	NFCID1  []byte
	SelRes  byte
	// HasSelRes is false when the SEL_RES length field was zero.
	HasSelRes bool
}

var fscTable = [...]int{16, 24, 32, 40, 48, 64, 96, 128, 256}

func fscFromFSCI(fsci byte) int {
	if int(fsci) < len(fscTable) {
		return fscTable[fsci]
	}
	return fscTable[len(fscTable)-1]
}

// ParsePollA decodes the NFC-A poll mode parameter block: 2-byte
// SENS_RES, a length-prefixed NFCID1 (0, 4, 7, or 10 bytes), and a
// length-prefixed SEL_RES (0 or 1 byte).
func ParsePollA(b []byte) (PollA, bool) {
	if len(b) < 4 {
		return PollA{}, false
	}
	var p PollA
	p.SensRes[0], p.SensRes[1] = b[0], b[1]
	n := int(b[2])
	if n > 10 || len(b) < n+4 {
		return PollA{}, false
	}
	p.NFCID1 = append([]byte(nil), b[3:3+n]...)
	selLen := int(b[n+3])
	if len(b) < n+4+selLen {
		return PollA{}, false
	}
	if selLen > 0 {
		p.HasSelRes = true
		p.SelRes = b[n+4]
	}
	return p, true
}

// PollB is NCI Table 56: Specific Parameters for NFC-B Poll Mode.
type PollB struct {
	NFCID0   [4]byte
	FSC      int
	AppData  [4]byte
	ProtInfo []byte
}

// ParsePollB decodes the NFC-B poll mode parameter block, the tail of
// SENSB_RES from byte 2 onward.
func ParsePollB(b []byte) (PollB, bool) {
	if len(b) < 1 || b[0] < 11 || len(b) < int(b[0])+1 {
		return PollB{}, false
	}
	var p PollB
	copy(p.NFCID0[:], b[1:5])
	copy(p.AppData[:], b[5:9])
	p.FSC = fscFromFSCI(b[10] >> 4)
	protLen := int(b[0]) - 8
	if protLen > 0 {
		p.ProtInfo = append([]byte(nil), b[9:9+protLen]...)
	}
	return p, true
}

// PollF is NCI Table 58: Specific Parameters for NFC-F Poll Mode.
type PollF struct {
	Bitrate byte
	NFCID2  [8]byte
}

// ParsePollF decodes the NFC-F poll mode parameter block.
func ParsePollF(b []byte) (PollF, bool) {
	if len(b) < 2 || b[1] < 8 || len(b) < int(b[1])+2 {
		return PollF{}, false
	}
	var p PollF
	p.Bitrate = b[0]
	copy(p.NFCID2[:], b[2:10])
	return p, true
}

// PollV is the NCI 2.0 Table 74: Specific Parameters for NFC-V Poll
// Mode.
type PollV struct {
	ResFlag byte
	DSFID   byte
	UID     [8]byte
}

// ParsePollV decodes the NFC-V poll mode parameter block.
func ParsePollV(b []byte) (PollV, bool) {
	if len(b) < 10 {
		return PollV{}, false
	}
	var p PollV
	p.ResFlag = b[0]
	p.DSFID = b[1]
	copy(p.UID[:], b[2:10])
	return p, true
}

// ListenF is NCI Table 59: Specific Parameters for NFC-F Listen Mode.
type ListenF struct {
	// NFCID2 is nil when the local NFCC generated none.
	NFCID2 []byte
}

// ParseListenF decodes the NFC-F listen mode parameter block: a
// length-prefixed NFCID2 that is either empty or exactly 8 bytes.
func ParseListenF(b []byte) (ListenF, bool) {
	if len(b) < 1 || len(b) < int(b[0])+1 {
		return ListenF{}, false
	}
	switch b[0] {
	case 0:
		return ListenF{}, true
	case 8:
		return ListenF{NFCID2: append([]byte(nil), b[1:9]...)}, true
	default:
		return ListenF{}, false
	}
}

// ModeParam holds whichever mode-specific parameter block was parsed
// for the technology reported in the notification, with only the
// matching pointer set.
type ModeParam struct {
	PollA   *PollA
	PollB   *PollB
	PollF   *PollF
	PollV   *PollV
	ListenF *ListenF
}

// ParseModeParam dispatches to the parser matching mode. Technologies
// with no defined parameter block (A/B listen under NCI 1.0) and
// unrecognized modes return a zero ModeParam and false.
func ParseModeParam(mode Mode, b []byte) (ModeParam, bool) {
	switch mode {
	case ModePassivePollA, ModeActivePollA:
		if mode == ModeActivePollA && len(b) == 0 {
			return ModeParam{}, false
		}
		p, ok := ParsePollA(b)
		return ModeParam{PollA: &p}, ok
	case ModePassivePollB:
		p, ok := ParsePollB(b)
		return ModeParam{PollB: &p}, ok
	case ModePassivePollF, ModeActivePollF:
		p, ok := ParsePollF(b)
		return ModeParam{PollF: &p}, ok
	case ModePassiveListenF, ModeActiveListenF:
		p, ok := ParseListenF(b)
		return ModeParam{ListenF: &p}, ok
	case ModePassivePollV:
		p, ok := ParsePollV(b)
		return ModeParam{PollV: &p}, ok
	default:
		return ModeParam{}, false
	}
}
