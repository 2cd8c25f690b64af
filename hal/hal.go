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

// Package hal defines the byte-stream transport contract the core
// consumes to talk to a physical or simulated NFC Controller. It plays
// the role the teacher's CommandDriver interface played for Type 4 Tag
// transports, but is push/async rather than request/response: the HAL
// owns the read direction and calls back into the core's Client whenever
// bytes arrive or the link fails, while writes are submitted with a
// completion callback instead of being transceived synchronously.
//
// Implementations may call back into Client, and invoke a write's
// onDone, from inside Start, Stop, Write or CancelWrite: the loopback,
// simulator and serial HALs all complete writes before Write returns.
// The core is single-threaded cooperative (spec.md §5), so the SAR
// layer does not act on these callbacks in place; it posts them to its
// scheduler and handles them on a later turn of the loop.
package hal

// Client receives asynchronous notifications from a HAL.
type Client interface {
	// Read delivers a chunk of raw bytes received from the NFCC. The HAL
	// may deliver one byte, one packet, or many packets per call; the
	// SAR layer is responsible for reassembling packet boundaries.
	Read(data []byte)

	// Error reports a transport failure. The HAL is expected to stop
	// delivering Read callbacks afterwards unless Start is called again.
	Error(err error)
}

// HAL is the minimal interface a transport to the NFCC must provide.
type HAL interface {
	// Start begins operation and registers client as the receiver of
	// Read/Error callbacks. It returns false if the transport could not
	// be started.
	Start(client Client) bool

	// Stop halts the transport. No further callbacks are delivered
	// until a subsequent Start.
	Stop()

	// Write submits chunks (e.g. header + payload) as a single vectored
	// write. onDone is invoked exactly once, with true on success, with
	// false if the write failed. onDone may be called before Write
	// returns.
	Write(chunks [][]byte, onDone func(ok bool))

	// CancelWrite requests cancellation of the in-flight write, if any.
	// Whether the write lands on the wire or not is transport-specific;
	// the SAR layer does not assume either outcome, only that onDone
	// still fires exactly once.
	CancelWrite()
}
