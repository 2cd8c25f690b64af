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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePollA4ByteNFCID1(t *testing.T) {
	b := []byte{0x04, 0x00, 0x04, 0xAA, 0xBB, 0xCC, 0xDD, 0x01, 0x20}
	p, ok := ParsePollA(b)
	require.True(t, ok)
	require.Equal(t, [2]byte{0x04, 0x00}, p.SensRes)
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, p.NFCID1)
	require.True(t, p.HasSelRes)
	require.Equal(t, byte(0x20), p.SelRes)
}

func TestParsePollANoSelRes(t *testing.T) {
	b := []byte{0x04, 0x00, 0x00, 0x00}
	p, ok := ParsePollA(b)
	require.True(t, ok)
	require.Empty(t, p.NFCID1)
	require.False(t, p.HasSelRes)
}

func TestParsePollATooShortFails(t *testing.T) {
	_, ok := ParsePollA([]byte{0x04, 0x00, 0x04})
	require.False(t, ok)
}

func TestParsePollB(t *testing.T) {
	b := make([]byte, 13)
	b[0] = 12
	copy(b[1:5], []byte{0x11, 0x22, 0x33, 0x44})
	copy(b[5:9], []byte{0x01, 0x02, 0x03, 0x04})
	b[10] = 0x50 // Protocol Info byte 2: FSCI nibble = 5 -> FSC 64
	p, ok := ParsePollB(b)
	require.True(t, ok)
	require.Equal(t, [4]byte{0x11, 0x22, 0x33, 0x44}, p.NFCID0)
	require.Equal(t, 64, p.FSC)
	require.Len(t, p.ProtInfo, 4) // 12 - 8
}

func TestParsePollF(t *testing.T) {
	b := append([]byte{0x01, 0x08}, make([]byte, 8)...)
	copy(b[2:], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	p, ok := ParsePollF(b)
	require.True(t, ok)
	require.Equal(t, byte(1), p.Bitrate)
	require.Equal(t, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, p.NFCID2)
}

func TestParsePollV(t *testing.T) {
	b := append([]byte{0x01, 0x02}, make([]byte, 8)...)
	p, ok := ParsePollV(b)
	require.True(t, ok)
	require.Equal(t, byte(1), p.ResFlag)
	require.Equal(t, byte(2), p.DSFID)
}

func TestParseListenFEmptyAndEightByte(t *testing.T) {
	p, ok := ParseListenF([]byte{0x00})
	require.True(t, ok)
	require.Nil(t, p.NFCID2)

	b := append([]byte{0x08}, make([]byte, 8)...)
	p, ok = ParseListenF(b)
	require.True(t, ok)
	require.Len(t, p.NFCID2, 8)
}

func TestParseModeParamDispatchesByMode(t *testing.T) {
	b := []byte{0x04, 0x00, 0x00, 0x00}
	mp, ok := ParseModeParam(ModePassivePollA, b)
	require.True(t, ok)
	require.NotNil(t, mp.PollA)
	require.Nil(t, mp.PollB)
}

func TestParseISODEPPollAWithAllInterfaceBytes(t *testing.T) {
	// ats: T0 advertises TA/TB/TC present (bits A|B|C), FSCI=2 -> FSC 32,
	// one historical byte follows.
	t0 := byte(0x10 | 0x20 | 0x40 | 0x02)
	ats := []byte{t0, 0xAA, 0xBB, 0xCC, 0xEE}
	b := append([]byte{byte(len(ats))}, ats...)
	p, ok := ParseISODEPPollA(b)
	require.True(t, ok)
	require.True(t, p.HasTA && p.HasTB && p.HasTC)
	require.Equal(t, byte(0xAA), p.TA)
	require.Equal(t, byte(0xBB), p.TB)
	require.Equal(t, byte(0xCC), p.TC)
	require.Equal(t, 32, p.FSC)
	require.Equal(t, []byte{0xEE}, p.T1)
}

func TestParseISODEPListenA(t *testing.T) {
	p, ok := ParseISODEPListenA([]byte{0x20 | 0x03}) // FSDI=2 -> FSD 32, DID=3
	require.True(t, ok)
	require.Equal(t, 32, p.FSD)
	require.Equal(t, byte(3), p.DID)
}

func TestParseNFCDEPPollRequiresMinimumATRLength(t *testing.T) {
	atr := make([]byte, 15)
	copy(atr, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	atr[10], atr[11], atr[12], atr[13], atr[14] = 0x01, 0x02, 0x03, 0x04, 0x05
	b := append([]byte{byte(len(atr))}, atr...)
	p, ok := ParseNFCDEPPoll(b)
	require.True(t, ok)
	require.Equal(t, byte(0x01), p.DID)
	require.Nil(t, p.G)

	_, ok = ParseNFCDEPPoll([]byte{14})
	require.False(t, ok)
}

func TestParseActivationParamDispatchesByInterfaceAndMode(t *testing.T) {
	ap, ok := ParseActivationParam(InterfaceISODEP, ModePassivePollA,
		append([]byte{1}, 0x00))
	require.True(t, ok)
	require.NotNil(t, ap.ISODEPPollA)

	_, ok = ParseActivationParam(InterfaceFrame, ModePassivePollA, []byte{0x00})
	require.False(t, ok)
}
