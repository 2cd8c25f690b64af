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

package ncicore

import (
	"time"

	"github.com/ponte-nfc/ncicore/loop"
)

// CmdTimeout returns the duration Core waits for a control response
// before failing the outstanding command. The arm/cancel/expiry
// machinery itself lives alongside Send in core.go, since it is
// inseparable from pendingCommand bookkeeping; this file only exposes
// the knob an application configures before Start.
func (c *Core) CmdTimeout() time.Duration {
	return loop.Call(c.loop, func() time.Duration { return c.cmdTimeout })
}

// SetCmdTimeout changes the command timeout. It only affects commands
// sent after the call; one already in flight keeps its original timer.
func (c *Core) SetCmdTimeout(d time.Duration) {
	c.loop.Post(func() { c.cmdTimeout = d })
}
