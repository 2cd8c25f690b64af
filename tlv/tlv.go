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

// Package tlv encodes and decodes the type-length-value records the NCI
// spec uses in two places: listen-mode routing table entries (§4.2.2)
// and the LLCP general-byte blocks built into CORE_SET_CONFIG_CMD during
// reset (§4.2.1). Unlike the NFC Forum Type 4 Tag TLVs this is derived
// from, NCI only ever uses the single-byte length form.
package tlv

import (
	"bytes"
	"errors"
	"fmt"
)

// Entry is a single Type-Length-Value record.
type Entry struct {
	Type  byte
	Value []byte
}

// ErrTooShort is returned when there are not enough bytes to decode an
// Entry's header or value.
var ErrTooShort = errors.New("tlv: not enough bytes to decode")

// Unmarshal decodes a single Entry from the head of buf and returns the
// number of bytes consumed.
func Unmarshal(buf []byte) (Entry, int, error) {
	if len(buf) < 2 {
		return Entry{}, 0, ErrTooShort
	}
	l := int(buf[1])
	if len(buf) < 2+l {
		return Entry{}, 0, ErrTooShort
	}
	value := make([]byte, l)
	copy(value, buf[2:2+l])
	return Entry{Type: buf[0], Value: value}, 2 + l, nil
}

// UnmarshalAll decodes every Entry packed back-to-back in buf. It fails if
// there are leftover bytes that don't form a complete entry.
func UnmarshalAll(buf []byte) ([]Entry, error) {
	var entries []Entry
	for len(buf) > 0 {
		e, n, err := Unmarshal(buf)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		buf = buf[n:]
	}
	return entries, nil
}

// Marshal encodes a single Entry. It errors if Value is longer than a
// single length byte can express (255 bytes).
func (e Entry) Marshal() ([]byte, error) {
	if len(e.Value) > 0xff {
		return nil, fmt.Errorf("tlv: value too long: %d bytes", len(e.Value))
	}
	var buf bytes.Buffer
	buf.WriteByte(e.Type)
	buf.WriteByte(byte(len(e.Value)))
	buf.Write(e.Value)
	return buf.Bytes(), nil
}

// MarshalAll concatenates the encoded form of every entry, in order.
func MarshalAll(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range entries {
		b, err := e.Marshal()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}
