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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/ponte-nfc/ncicore/hal/loopback"
	"github.com/ponte-nfc/ncicore/hal/simulator"
	"github.com/ponte-nfc/ncicore/metrics"
	"github.com/ponte-nfc/ncicore/sm"
	"github.com/ponte-nfc/ncicore/wire"
)

// waitFor polls until cond returns true or the deadline passes, needed
// because Core does real work on its own loop goroutine.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStartDrivesResetToIdle(t *testing.T) {
	h := loopback.New()
	c := New(h, nil)
	require.True(t, c.Start())

	waitFor(t, func() bool { return len(h.Writes()) >= 1 })
	require.NoError(t, h.Deliver([]byte{0x40, 0x00, 0x03, wire.StatusOK, 0x10, 0x00}))

	waitFor(t, func() bool { return len(h.Writes()) >= 2 })
	initRsp := []byte{
		wire.StatusOK,
		0x01, 0x00, 0x00, 0x00,
		0x01,
		0x02,
		0x01,
		0x20, 0x00,
		0x20,
		0x20, 0x00,
		0x01,
	}
	require.NoError(t, h.Deliver(append([]byte{0x40, 0x01, byte(len(initRsp))}, initRsp...)))

	waitFor(t, func() bool { return len(h.Writes()) >= 3 })
	require.NoError(t, h.Deliver([]byte{0x40, 0x02, 0x02, wire.StatusOK, 0x00}))

	waitFor(t, func() bool { return c.CurrentState() == sm.StateIdle })
}

func TestCommandTimeoutFailsPendingTransition(t *testing.T) {
	h := loopback.New()
	c := New(h, nil)
	c.SetCmdTimeout(10 * time.Millisecond)
	require.True(t, c.Start())

	waitFor(t, func() bool { return c.CurrentState() == sm.StateError })
}

func TestIncomingDataSubscriptionFires(t *testing.T) {
	h := loopback.New()
	c := New(h, nil)
	require.True(t, c.Start())

	received := make(chan []byte, 1)
	c.OnIncomingData(func(connID byte, payload []byte) {
		received <- payload
	})

	require.NoError(t, h.Deliver([]byte{0x00, 0x00, 0x02, 0xAA, 0xBB}))

	select {
	case payload := <-received:
		require.Equal(t, []byte{0xAA, 0xBB}, payload)
	case <-time.After(2 * time.Second):
		t.Fatal("incoming data never delivered")
	}
}

func TestResetParamRestoresDefaultAndEmitsEvent(t *testing.T) {
	h := loopback.New()
	c := New(h, nil)

	changed := make(chan struct{ name string; value interface{} }, 1)
	c.OnParamChanged(func(name string, value interface{}) {
		changed <- struct {
			name  string
			value interface{}
		}{name, value}
	})

	require.NoError(t, c.SetParams(map[string]interface{}{ParamLLCVersion: byte(0x20)}, false))
	select {
	case ev := <-changed:
		require.Equal(t, ParamLLCVersion, ev.name)
	case <-time.After(time.Second):
		t.Fatal("parameter-changed not emitted on SetParams")
	}

	require.NoError(t, c.ResetParam(ParamLLCVersion))
	select {
	case ev := <-changed:
		require.Equal(t, ParamLLCVersion, ev.name)
		require.Equal(t, DefaultLLCVersion, ev.value)
	case <-time.After(time.Second):
		t.Fatal("parameter-changed not emitted on ResetParam")
	}
	v, err := c.GetParam(ParamLLCVersion)
	require.NoError(t, err)
	require.Equal(t, DefaultLLCVersion, v)
}

func TestNewWithMetricsRecordsResetCommands(t *testing.T) {
	m := metrics.NewMetrics(nil)
	c := NewWithMetrics(simulator.New(), nil, m)
	require.True(t, c.Start())

	waitFor(t, func() bool { return c.CurrentState() == sm.StateIdle })

	ch := make(chan prometheus.Metric, 1)
	m.CommandsTotal.WithLabelValues("0x00", "0x01", "ok").Collect(ch)
	got := &dto.Metric{}
	require.NoError(t, (<-ch).Write(got))
	require.Equal(t, float64(1), got.Counter.GetValue())
}
