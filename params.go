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
	"errors"

	"github.com/ponte-nfc/ncicore/loop"
	"github.com/ponte-nfc/ncicore/sm"
)

// Parameter names, used with GetParam/ResetParam/SetParams.
const (
	ParamLLCVersion = "LLC_VERSION"
	ParamLLCWKS     = "LLC_WKS"
	ParamLANFCID1   = "LA_NFCID1"
)

// Default parameter values.
const (
	DefaultLLCVersion byte   = 0x11
	DefaultLLCWKS     uint16 = 0x0003
)

// Params is the parameter table's current values.
type Params struct {
	LLCVersion byte
	LLCWKS     uint16
	// LANFCID1 is the Listen A NFCID1. Empty means "dynamic": the NFCC
	// picks a fresh one on every listen activation rather than using a
	// fixed identity.
	LANFCID1 []byte
}

func defaultParams() Params {
	return Params{LLCVersion: DefaultLLCVersion, LLCWKS: DefaultLLCWKS}
}

// ErrUnknownParam is returned by GetParam/ResetParam/SetParams for a
// name outside {LLC_VERSION, LLC_WKS, LA_NFCID1}.
var ErrUnknownParam = errors.New("ncicore: unknown parameter")

type paramResult struct {
	Value interface{}
	Err   error
}

// GetParam returns the current value of a named parameter.
func (c *Core) GetParam(name string) (interface{}, error) {
	r := loop.Call(c.loop, func() paramResult {
		switch name {
		case ParamLLCVersion:
			return paramResult{c.params.LLCVersion, nil}
		case ParamLLCWKS:
			return paramResult{c.params.LLCWKS, nil}
		case ParamLANFCID1:
			return paramResult{append([]byte(nil), c.params.LANFCID1...), nil}
		default:
			return paramResult{nil, ErrUnknownParam}
		}
	})
	return r.Value, r.Err
}

// ResetParam restores name to its default value, emitting a
// parameter-changed event if the value actually changed. LLC_VERSION,
// LLC_WKS and LA_NFCID1 are only actually sent to the NFCC as part of
// the reset handshake's CORE_SET_CONFIG_CMD, so when the value changed
// ResetParam restarts the machine itself to send it to the controller.
func (c *Core) ResetParam(name string) error {
	return loop.Call(c.loop, func() error {
		var changed bool
		var err error
		switch name {
		case ParamLLCVersion:
			changed, err = c.applyParam(name, DefaultLLCVersion, func(v byte) { c.params.LLCVersion = v }, c.params.LLCVersion)
		case ParamLLCWKS:
			changed, err = c.applyParamU16(name, DefaultLLCWKS, c.params.LLCWKS)
		case ParamLANFCID1:
			changed, err = c.applyParamBytes(name, nil, c.params.LANFCID1)
		default:
			err = ErrUnknownParam
		}
		if err != nil {
			return err
		}
		if changed {
			c.restartLocked()
		}
		return nil
	})
}

// SetParams validates and applies every entry in values, emitting one
// parameter-changed event per key whose value actually changed. It is
// all-or-nothing: an unknown key or a value of the wrong type leaves
// every parameter untouched. If resetFirst is true and anything
// actually changed, Restart is triggered so the new values are sent to
// the NFCC immediately rather than waiting for the next natural reset.
func (c *Core) SetParams(values map[string]interface{}, resetFirst bool) error {
	return loop.Call(c.loop, func() error {
		for name, v := range values {
			switch name {
			case ParamLLCVersion:
				if _, ok := v.(byte); !ok {
					return ErrUnknownParam
				}
			case ParamLLCWKS:
				if _, ok := v.(uint16); !ok {
					return ErrUnknownParam
				}
			case ParamLANFCID1:
				if _, ok := v.([]byte); !ok {
					return ErrUnknownParam
				}
			default:
				return ErrUnknownParam
			}
		}
		var changed bool
		for name, v := range values {
			var didChange bool
			switch name {
			case ParamLLCVersion:
				didChange, _ = c.applyParam(name, v.(byte), func(nv byte) { c.params.LLCVersion = nv }, c.params.LLCVersion)
			case ParamLLCWKS:
				didChange, _ = c.applyParamU16(name, v.(uint16), c.params.LLCWKS)
			case ParamLANFCID1:
				didChange, _ = c.applyParamBytes(name, v.([]byte), c.params.LANFCID1)
			}
			changed = changed || didChange
		}
		if resetFirst && changed {
			c.restartLocked()
		}
		return nil
	})
}

// restartLocked re-runs the reset handshake from within a function
// already running on the event loop (ResetParam/SetParams are both
// loop.Call'd in), so it drives the loop directly instead of going
// through Restart's own c.loop.Post.
func (c *Core) restartLocked() {
	if c.pending != nil {
		c.pending.timer.Stop()
		c.pending = nil
	}
	c.sar.Reset()
	c.sm.Stall(sm.StallStop)
	c.sar.Start()
	c.sm.SwitchTo(sm.StateIdle)
}

func (c *Core) applyParam(name string, newValue byte, set func(byte), old byte) (bool, error) {
	if newValue == old {
		return false, nil
	}
	set(newValue)
	c.emitParamChanged(name, newValue)
	return true, nil
}

func (c *Core) applyParamU16(name string, newValue, old uint16) (bool, error) {
	if newValue == old {
		return false, nil
	}
	c.params.LLCWKS = newValue
	c.emitParamChanged(name, newValue)
	return true, nil
}

func (c *Core) applyParamBytes(name string, newValue, old []byte) (bool, error) {
	if bytesEqual(newValue, old) {
		return false, nil
	}
	c.params.LANFCID1 = append([]byte(nil), newValue...)
	c.emitParamChanged(name, c.params.LANFCID1)
	return true, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c *Core) emitParamChanged(name string, value interface{}) {
	for _, f := range c.onParamChanged {
		if f != nil {
			f(name, value)
		}
	}
}
