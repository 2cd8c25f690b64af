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

package activation

// RF interface values (NCI Table 3), identifying which of the
// activation-parameter parsers below applies to a given
// RF_INTF_ACTIVATED_NTF.
const (
	InterfaceFrame  = 0x01
	InterfaceISODEP = 0x02
	InterfaceNFCDEP = 0x03
)

// ATS format byte T0 bits (NCI/ISO14443 Digital Protocol), gating
// which of TA/TB/TC follow in the ATS response.
const (
	atsT0A    = 0x10
	atsT0B    = 0x20
	atsT0C    = 0x40
	atsFSCIMask = 0x0f
)

// ISODEPPollA is NCI Table 76: Activation Parameters for NFC-A/ISO-DEP
// Poll Mode, decoded from the RATS response.
type ISODEPPollA struct {
	FSC      int
	T0       byte
	TA, TB, TC byte
	HasTA, HasTB, HasTC bool
	// T1 is the historical bytes (T1 to Tk).
	T1 []byte
}

// ParseISODEPPollA decodes a length-prefixed RATS response (byte 0 is
// its length, starting from the format byte T0).
func ParseISODEPPollA(b []byte) (ISODEPPollA, bool) {
	if len(b) < 1 {
		return ISODEPPollA{}, false
	}
	atsLen := int(b[0])
	if atsLen < 1 || len(b) < atsLen+1 {
		return ISODEPPollA{}, false
	}
	ats := b[1 : 1+atsLen]
	pos := 0
	t0 := ats[pos]
	pos++
	var p ISODEPPollA
	p.T0 = t0
	if t0&atsT0A != 0 {
		if pos >= len(ats) {
			return ISODEPPollA{}, false
		}
		p.HasTA, p.TA = true, ats[pos]
		pos++
	}
	if t0&atsT0B != 0 {
		if pos >= len(ats) {
			return ISODEPPollA{}, false
		}
		p.HasTB, p.TB = true, ats[pos]
		pos++
	}
	if t0&atsT0C != 0 {
		if pos >= len(ats) {
			return ISODEPPollA{}, false
		}
		p.HasTC, p.TC = true, ats[pos]
		pos++
	}
	if pos > len(ats) {
		return ISODEPPollA{}, false
	}
	p.FSC = fscFromFSCI(t0 & atsFSCIMask)
	if pos < len(ats) {
		p.T1 = append([]byte(nil), ats[pos:]...)
	}
	return p, true
}

// ISODEPPollB is NCI Table 75: Activation Parameters for NFC-B/ISO-DEP
// Poll Mode, decoded from the ATTRIB response.
type ISODEPPollB struct {
	MBLI byte
	DID  byte
	// HLR is the Higher Layer Response, nil when absent.
	HLR []byte
}

// ParseISODEPPollB decodes a length-prefixed ATTRIB response.
func ParseISODEPPollB(b []byte) (ISODEPPollB, bool) {
	if len(b) < 2 {
		return ISODEPPollB{}, false
	}
	n := int(b[0])
	if n < 1 || len(b) < n+1 {
		return ISODEPPollB{}, false
	}
	var p ISODEPPollB
	p.MBLI = (b[1] & 0xf0) >> 4
	p.DID = b[1] & 0x0f
	if n >= 2 {
		p.HLR = append([]byte(nil), b[2:1+n]...)
	}
	return p, true
}

// ISODEPListenA is NCI Table 78: Activation Parameters for NFC-A/ISO-
// DEP Listen Mode, decoded from byte 2 (PARAM) of the RATS command.
type ISODEPListenA struct {
	FSD int
	DID byte
}

// ParseISODEPListenA decodes the single-byte RATS command PARAM field.
func ParseISODEPListenA(b []byte) (ISODEPListenA, bool) {
	if len(b) < 1 {
		return ISODEPListenA{}, false
	}
	return ISODEPListenA{
		FSD: fscFromFSCI(b[0] >> 4),
		DID: b[0] & 0x0f,
	}, true
}

// ISODEPListenB is NCI Table 79: Activation Parameters for NFC-B/ISO-
// DEP Listen Mode, decoded from the ATTRIB command.
type ISODEPListenB struct {
	NFCID0 [4]byte
	Param  [4]byte
	// HLC is the Higher Layer Command, nil when absent.
	HLC []byte
}

// ParseISODEPListenB decodes a length-prefixed ATTRIB command starting
// at byte 2.
func ParseISODEPListenB(b []byte) (ISODEPListenB, bool) {
	if len(b) < 1 {
		return ISODEPListenB{}, false
	}
	n := int(b[0])
	if n < 8 || len(b) <= n {
		return ISODEPListenB{}, false
	}
	var p ISODEPListenB
	copy(p.NFCID0[:], b[1:5])
	copy(p.Param[:], b[5:9])
	if n > 8 {
		p.HLC = append([]byte(nil), b[9:1+n]...)
	}
	return p, true
}

// NFCDEPPoll is NCI Table 82: Activation Parameters for NFC-DEP Poll
// Mode, decoded from ATR_RES starting at byte 3.
type NFCDEPPoll struct {
	NFCID3       [10]byte
	DID, BS, BR, TO, PP byte
	// G is the general bytes, nil when absent.
	G []byte
}

// ParseNFCDEPPoll decodes a length-prefixed ATR_RES.
func ParseNFCDEPPoll(b []byte) (NFCDEPPoll, bool) {
	if len(b) < 1 {
		return NFCDEPPoll{}, false
	}
	n := int(b[0])
	if n < 15 || len(b) < n+1 {
		return NFCDEPPoll{}, false
	}
	atr := b[1 : 1+n]
	var p NFCDEPPoll
	copy(p.NFCID3[:], atr[:10])
	p.DID, p.BS, p.BR, p.TO, p.PP = atr[10], atr[11], atr[12], atr[13], atr[14]
	if n > 15 {
		p.G = append([]byte(nil), atr[15:]...)
	}
	return p, true
}

// NFCDEPListen is NCI Table 83: Activation Parameters for NFC-DEP
// Listen Mode, decoded from ATR_REQ starting at byte 3.
type NFCDEPListen struct {
	NFCID3   [10]byte
	DID, BS, BR, PP byte
	// G is the general bytes, nil when absent.
	G []byte
}

// ParseNFCDEPListen decodes a length-prefixed ATR_REQ.
func ParseNFCDEPListen(b []byte) (NFCDEPListen, bool) {
	if len(b) < 1 {
		return NFCDEPListen{}, false
	}
	n := int(b[0])
	if n < 14 || len(b) < n+1 {
		return NFCDEPListen{}, false
	}
	atr := b[1 : 1+n]
	var p NFCDEPListen
	copy(p.NFCID3[:], atr[:10])
	p.DID, p.BS, p.BR, p.PP = atr[10], atr[11], atr[12], atr[13]
	if n > 14 {
		p.G = append([]byte(nil), atr[14:]...)
	}
	return p, true
}

// ActivationParam holds whichever activation-parameter block was
// parsed for the RF interface/mode pair reported in
// RF_INTF_ACTIVATED_NTF, with only the matching pointer set.
type ActivationParam struct {
	ISODEPPollA   *ISODEPPollA
	ISODEPPollB   *ISODEPPollB
	ISODEPListenA *ISODEPListenA
	ISODEPListenB *ISODEPListenB
	NFCDEPPoll    *NFCDEPPoll
	NFCDEPListen  *NFCDEPListen
}

// ParseActivationParam dispatches to the parser matching (rfInterface,
// mode). Frame-interface activations (raw tag access, no ISO-DEP/NFC-
// DEP negotiation) and unrecognized combinations return a zero
// ActivationParam and false.
func ParseActivationParam(rfInterface byte, mode Mode, b []byte) (ActivationParam, bool) {
	switch rfInterface {
	case InterfaceISODEP:
		switch mode {
		case ModePassivePollA, ModeActivePollA:
			p, ok := ParseISODEPPollA(b)
			return ActivationParam{ISODEPPollA: &p}, ok
		case ModePassivePollB:
			p, ok := ParseISODEPPollB(b)
			return ActivationParam{ISODEPPollB: &p}, ok
		case ModePassiveListenA, ModeActiveListenA:
			p, ok := ParseISODEPListenA(b)
			return ActivationParam{ISODEPListenA: &p}, ok
		case ModePassiveListenB:
			p, ok := ParseISODEPListenB(b)
			return ActivationParam{ISODEPListenB: &p}, ok
		}
	case InterfaceNFCDEP:
		switch mode {
		case ModePassivePollA, ModeActivePollA, ModePassivePollF, ModeActivePollF:
			p, ok := ParseNFCDEPPoll(b)
			return ActivationParam{NFCDEPPoll: &p}, ok
		case ModePassiveListenA, ModeActiveListenA, ModePassiveListenF, ModeActiveListenF:
			p, ok := ParseNFCDEPListen(b)
			return ActivationParam{NFCDEPListen: &p}, ok
		}
	}
	return ActivationParam{}, false
}
