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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	require.NoError(t, (<-ch).Write(m))
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestNilMetricsMethodsAreNoOps(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordCommand(0x00, 0x01, true, 0.01)
		m.RecordCommandTimeout(0x00, 0x01)
		m.RecordTransition("RFST_IDLE", "RFST_DISCOVERY")
		m.RecordDataSent(4)
		m.RecordDataReceived(4)
		m.RecordTransportError()
	})
}

func TestNewMetricsWithoutRegistererDoesNotPanic(t *testing.T) {
	m := NewMetrics(nil)
	require.NotNil(t, m)
	m.RecordCommand(0x00, 0x01, true, 0.01)
	require.Equal(t, float64(1), counterValue(t, m.CommandsTotal.WithLabelValues("0x00", "0x01", "ok")))
}

func TestRecordCommandTimeoutIncrementsCounter(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordCommandTimeout(0x01, 0x02)
	require.Equal(t, float64(1), counterValue(t, m.CommandTimeoutsTotal.WithLabelValues("0x01", "0x02")))
}

func TestRecordTransitionUpdatesCurrentStateGauge(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordTransition("RFST_IDLE", "RFST_DISCOVERY")
	require.Equal(t, float64(0), counterValue(t, m.CurrentState.WithLabelValues("RFST_IDLE")))
	require.Equal(t, float64(1), counterValue(t, m.CurrentState.WithLabelValues("RFST_DISCOVERY")))
}

func TestRecordDataTracksBytesAndCounts(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordDataSent(10)
	m.RecordDataSent(5)
	m.RecordDataReceived(3)
	require.Equal(t, float64(2), counterValue(t, m.DataSent))
	require.Equal(t, float64(15), counterValue(t, m.BytesSent))
	require.Equal(t, float64(1), counterValue(t, m.DataReceived))
	require.Equal(t, float64(3), counterValue(t, m.BytesReceived))
}

func TestNewMetricsRegistersWithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)
	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
