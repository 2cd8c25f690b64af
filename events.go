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
	"github.com/google/uuid"

	"github.com/ponte-nfc/ncicore/loop"
	"github.com/ponte-nfc/ncicore/sm"
)

// Five independent event streams are exposed, each returning an opaque
// uuid.UUID handle that Unsubscribe accepts. A single Unsubscribe works
// across all five, since the handle itself records how to detach.

// OnCurrentStateChanged fires whenever the state machine's last
// confirmed state changes.
func (c *Core) OnCurrentStateChanged(f func(sm.StateID)) uuid.UUID {
	return loop.Call(c.loop, func() uuid.UUID {
		remove := c.sm.OnLastStateChanged(f)
		return c.addSub(remove)
	})
}

// OnNextStateChanged fires whenever the state machine starts moving
// toward a new target state.
func (c *Core) OnNextStateChanged(f func(sm.StateID)) uuid.UUID {
	return loop.Call(c.loop, func() uuid.UUID {
		remove := c.sm.OnNextStateChanged(f)
		return c.addSub(remove)
	})
}

// OnInterfaceActivated fires whenever RF_INTF_ACTIVATED_NTF reports a
// remote endpoint or reader activating.
func (c *Core) OnInterfaceActivated(f func(sm.IntfActivation)) uuid.UUID {
	return loop.Call(c.loop, func() uuid.UUID {
		remove := c.sm.OnInterfaceActivated(f)
		return c.addSub(remove)
	})
}

// OnIncomingData fires for every reassembled data packet delivered on
// any logical connection.
func (c *Core) OnIncomingData(f func(connID byte, payload []byte)) uuid.UUID {
	return loop.Call(c.loop, func() uuid.UUID {
		c.onIncomingData = append(c.onIncomingData, f)
		idx := len(c.onIncomingData) - 1
		return c.addSub(func() { c.onIncomingData[idx] = nil })
	})
}

// OnParamChanged fires whenever SetParams or ResetParam actually
// changes a parameter's value.
func (c *Core) OnParamChanged(f func(name string, value interface{})) uuid.UUID {
	return loop.Call(c.loop, func() uuid.UUID {
		c.onParamChanged = append(c.onParamChanged, f)
		idx := len(c.onParamChanged) - 1
		return c.addSub(func() { c.onParamChanged[idx] = nil })
	})
}

func (c *Core) addSub(remove func()) uuid.UUID {
	id := uuid.New()
	c.subs[id] = remove
	return id
}

// Unsubscribe detaches a handle returned by any of the five On*
// methods. Unsubscribing an unknown or already-removed handle is a
// no-op.
func (c *Core) Unsubscribe(id uuid.UUID) {
	c.loop.Post(func() {
		if remove, ok := c.subs[id]; ok {
			remove()
			delete(c.subs, id)
		}
	})
}
