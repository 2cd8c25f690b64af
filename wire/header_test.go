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

package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		h    Header
		want [3]byte
	}{
		{
			name: "core reset cmd",
			h:    Header{Type: Command, GID: GidCore, OID: OidCoreReset, Length: 1},
			want: [3]byte{0x20, 0x00, 0x01},
		},
		{
			name: "core init cmd v2",
			h:    Header{Type: Command, GID: GidCore, OID: OidCoreInit, Length: 2},
			want: [3]byte{0x20, 0x01, 0x02},
		},
		{
			name: "fragmented rsp",
			h:    Header{Type: Response, PBF: true, GID: GidCore, OID: OidCoreSetConfig, Length: 32},
			want: [3]byte{0x50, 0x02, 0x20},
		},
		{
			name: "data packet on connection 3",
			h:    Header{Type: Data, ConnID: 3, Length: 5},
			want: [3]byte{0x03, 0x00, 0x05},
		},
		{
			name: "fragmented data packet",
			h:    Header{Type: Data, PBF: true, ConnID: 0, Length: 255},
			want: [3]byte{0x10, 0x00, 0xff},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, c.h.Bytes())

			decoded, err := Decode(c.want[:])
			require.NoError(t, err)
			if c.h.Type == Data {
				// GID/OID are not populated by Decode for data packets.
				c.h.GID, c.h.OID = 0, 0
			} else {
				c.h.ConnID = 0
			}
			require.Equal(t, c.h, decoded)
		})
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode([]byte{0x20, 0x00})
	require.ErrorIs(t, err, ErrShortHeader)
}

func TestSameControlMessage(t *testing.T) {
	a := Header{Type: Response, GID: GidCore, OID: OidCoreInit}
	b := Header{Type: Response, GID: GidCore, OID: OidCoreInit, PBF: true, Length: 9}
	require.True(t, SameControlMessage(a, b))

	c := Header{Type: Response, GID: GidRF, OID: OidCoreInit}
	require.False(t, SameControlMessage(a, c))
}

func TestUint16LERoundTrip(t *testing.T) {
	b := PutUint16LE(0x1234)
	require.Equal(t, [2]byte{0x34, 0x12}, b)
	require.Equal(t, uint16(0x1234), Uint16LE(b[:]))
}
