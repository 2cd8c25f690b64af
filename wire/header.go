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

// Package wire implements the 3-byte NCI packet header: encoding and
// decoding of the message-type/PBF/GID-or-CID byte, the OID byte and
// the payload-length byte, per the NCI 1.0/2.0 framing rules.
package wire

import "fmt"

// HeaderLen is the fixed size of every NCI packet header.
const HeaderLen = 3

// MessageType identifies the kind of packet carried by a header, encoded
// in the top 3 bits of byte 0 (mask 0xE0).
type MessageType byte

const (
	Data         MessageType = 0x00
	Command      MessageType = 0x20
	Response     MessageType = 0x40
	Notification MessageType = 0x60
)

func (t MessageType) String() string {
	switch t {
	case Data:
		return "DATA"
	case Command:
		return "CMD"
	case Response:
		return "RSP"
	case Notification:
		return "NTF"
	default:
		return fmt.Sprintf("MessageType(0x%02x)", byte(t))
	}
}

const (
	messageTypeMask = 0xE0
	pbfMask         = 0x10
	gidMask         = 0x0F
	oidMask         = 0x3F
)

// Header is the parsed form of the 3-byte NCI header. For control packets
// (Command/Response/Notification) GID/OID are meaningful and ConnID is
// unused; for Data packets ConnID is meaningful and GID/OID are unused.
type Header struct {
	Type   MessageType
	PBF    bool // more fragments follow
	GID    byte // group id, control packets only (low 4 bits)
	OID    byte // operation id, control packets only (low 6 bits)
	ConnID byte // logical connection id, data packets only (low 4 bits)
	Length byte // payload length, 0..255
}

// Encode writes the 3-byte header into buf[:3]. buf must have length >= 3.
func (h Header) Encode(buf []byte) {
	b0 := byte(h.Type) & messageTypeMask
	if h.PBF {
		b0 |= pbfMask
	}
	if h.Type == Data {
		b0 |= h.ConnID & gidMask
	} else {
		b0 |= h.GID & gidMask
	}
	buf[0] = b0
	if h.Type == Data {
		buf[1] = 0
	} else {
		buf[1] = h.OID & oidMask
	}
	buf[2] = h.Length
}

// Bytes returns the 3-byte encoded form of the header.
func (h Header) Bytes() [3]byte {
	var b [3]byte
	h.Encode(b[:])
	return b
}

// ErrShortHeader is returned by Decode when fewer than HeaderLen bytes
// are available.
var ErrShortHeader = fmt.Errorf("wire: need at least %d bytes to decode a header", HeaderLen)

// Decode parses the first 3 bytes of buf into a Header. It does not
// require the payload to be present.
func Decode(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, ErrShortHeader
	}
	h := Header{
		Type:   MessageType(buf[0] & messageTypeMask),
		PBF:    buf[0]&pbfMask != 0,
		Length: buf[2],
	}
	if h.Type == Data {
		h.ConnID = buf[0] & gidMask
	} else {
		h.GID = buf[0] & gidMask
		h.OID = buf[1] & oidMask
	}
	return h, nil
}

// SameControlMessage reports whether two control-packet headers belong to
// the same logical message: identical message type, GID and OID. Used to
// validate that consecutive reassembly fragments are not interleaved with
// an unrelated message.
func SameControlMessage(a, b Header) bool {
	return a.Type == b.Type && a.GID == b.GID && a.OID == b.OID
}
