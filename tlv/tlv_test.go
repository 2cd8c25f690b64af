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

package tlv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryRoundTrip(t *testing.T) {
	e := Entry{Type: 0x00, Value: []byte{0x04, 0x01, 0x80, 0x01}}
	b, err := e.Marshal()
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x04, 0x04, 0x01, 0x80, 0x01}, b)

	decoded, n, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, len(b), n)
	require.Equal(t, e, decoded)
}

func TestUnmarshalAll(t *testing.T) {
	entries := []Entry{
		{Type: 0x00, Value: []byte{0x04, 0x01, 0x80, 0x01}},
		{Type: 0x01, Value: []byte{0x02, 0x01, 0x80, 0x02}},
	}
	buf, err := MarshalAll(entries)
	require.NoError(t, err)

	decoded, err := UnmarshalAll(buf)
	require.NoError(t, err)
	require.Equal(t, entries, decoded)
}

func TestUnmarshalTooShort(t *testing.T) {
	_, _, err := Unmarshal([]byte{0x01})
	require.ErrorIs(t, err, ErrTooShort)

	_, _, err = Unmarshal([]byte{0x01, 0x03, 0x00})
	require.ErrorIs(t, err, ErrTooShort)
}

func TestMarshalValueTooLong(t *testing.T) {
	e := Entry{Type: 0x00, Value: make([]byte, 256)}
	_, err := e.Marshal()
	require.Error(t, err)
}
