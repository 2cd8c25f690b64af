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

// Group identifiers (GID), NCI 1.0/2.0 table 2.
const (
	GidCore = 0x0
	GidRF   = 0x1
)

// CORE group operation identifiers.
const (
	OidCoreReset      = 0x00
	OidCoreInit       = 0x01
	OidCoreSetConfig  = 0x02
	OidCoreGetConfig  = 0x03
	OidCoreConnCreate = 0x04
	OidCoreConnClose  = 0x05
	OidCoreConnCredit = 0x06
	OidCoreGenericErr = 0x07
	OidCoreIntfError  = 0x08
)

// RF group operation identifiers.
const (
	OidRFDiscoverMap    = 0x00
	OidRFSetListenMode  = 0x01
	OidRFDiscover       = 0x03
	OidRFDiscoverSelect = 0x04
	OidRFIntfActivated  = 0x05
	OidRFDeactivate     = 0x06
	OidRFDiscoverNtf    = 0x03
)

// Uint16LE decodes a little-endian 2-byte field, as used by every
// multi-byte integer in NCI payloads (e.g. max-routing-table-size).
func Uint16LE(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

// PutUint16LE encodes v as a little-endian 2-byte field.
func PutUint16LE(v uint16) [2]byte {
	return [2]byte{byte(v), byte(v >> 8)}
}

// StatusOK is the NCI status byte value indicating success.
const StatusOK = 0x00

// RF_DEACTIVATE_CMD deactivation types.
const (
	DeactivateToIdle      = 0x00
	DeactivateToSleep     = 0x01
	DeactivateToSleepAF   = 0x02
	DeactivateToDiscovery = 0x03
)

// RF_DEACTIVATE_NTF deactivation reasons.
const (
	DeactivateReasonDHRequest  = 0x00
	DeactivateReasonEndpoint   = 0x01
	DeactivateReasonRFLinkLoss = 0x02
	DeactivateReasonNFCBBadAFI = 0x03
)
