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

package commands

import (
	"fmt"

	"github.com/ponte-nfc/ncicore/activation"
	"github.com/ponte-nfc/ncicore/sm"
)

func opModeString(mode sm.OpMode) string {
	var parts []string
	if mode&sm.OpModePoll != 0 {
		parts = append(parts, "poll")
	}
	if mode&sm.OpModeListen != 0 {
		parts = append(parts, "listen")
	}
	if len(parts) == 0 {
		return "(none)"
	}
	return join(parts)
}

var techLetters = []struct {
	letter string
	bit    sm.Tech
}{
	{"A", sm.TechA}, {"B", sm.TechB}, {"F", sm.TechF}, {"V", sm.TechV},
}

func techString(tech sm.Tech) string {
	var parts []string
	for _, tl := range techLetters {
		if tech&tl.bit != 0 {
			parts = append(parts, tl.letter)
		}
	}
	if len(parts) == 0 {
		return "(none)"
	}
	return join(parts)
}

// activationParamString renders whichever field of an ActivationParam
// was actually populated; only one ever is, matching the RF interface
// and mode reported alongside it in RF_INTF_ACTIVATED_NTF.
func activationParamString(p activation.ActivationParam) string {
	switch {
	case p.ISODEPPollA != nil:
		return fmt.Sprintf("iso-dep-poll-a{fsc=%d, t1=%x}", p.ISODEPPollA.FSC, p.ISODEPPollA.T1)
	case p.ISODEPPollB != nil:
		return fmt.Sprintf("iso-dep-poll-b{mbli=%d, did=%d, hlr=%x}", p.ISODEPPollB.MBLI, p.ISODEPPollB.DID, p.ISODEPPollB.HLR)
	case p.ISODEPListenA != nil:
		return fmt.Sprintf("iso-dep-listen-a{fsd=%d, did=%d}", p.ISODEPListenA.FSD, p.ISODEPListenA.DID)
	case p.ISODEPListenB != nil:
		return fmt.Sprintf("iso-dep-listen-b{nfcid0=%x}", p.ISODEPListenB.NFCID0)
	case p.NFCDEPPoll != nil:
		return fmt.Sprintf("nfc-dep-poll{nfcid3=%x}", p.NFCDEPPoll.NFCID3)
	case p.NFCDEPListen != nil:
		return fmt.Sprintf("nfc-dep-listen{nfcid3=%x}", p.NFCDEPListen.NFCID3)
	default:
		return "(none)"
	}
}

func join(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "," + p
	}
	return out
}
