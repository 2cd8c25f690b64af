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

// Package metrics provides optional Prometheus instrumentation for
// ncicore.Core. All methods handle a nil *Metrics receiver gracefully,
// so a Core constructed without metrics pays no overhead beyond the
// nil check.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks NCI-level Prometheus metrics. All metric names use the
// nci_ prefix.
type Metrics struct {
	CommandsTotal       *prometheus.CounterVec
	CommandDuration     *prometheus.HistogramVec
	CommandTimeoutsTotal *prometheus.CounterVec

	StateTransitionsTotal *prometheus.CounterVec
	CurrentState          *prometheus.GaugeVec

	DataSent     prometheus.Counter
	DataReceived prometheus.Counter
	BytesSent    prometheus.Counter
	BytesReceived prometheus.Counter

	TransportErrorsTotal prometheus.Counter
}

// NewMetrics creates NCI metrics with the nci_ prefix. Pass reg nil to
// build an unregistered Metrics, useful for tests or when metrics are
// disabled; pass a real prometheus.Registerer (typically
// prometheus.DefaultRegisterer) to expose them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nci_commands_total",
				Help: "Total control commands sent by GID/OID and outcome",
			},
			[]string{"gid", "oid", "outcome"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nci_command_duration_seconds",
				Help:    "Control command round-trip duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"gid", "oid"},
		),
		CommandTimeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nci_command_timeouts_total",
				Help: "Total control commands that hit cmd_timeout",
			},
			[]string{"gid", "oid"},
		),
		StateTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nci_state_transitions_total",
				Help: "Total RF state machine transitions by source and destination state",
			},
			[]string{"from", "to"},
		),
		CurrentState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nci_current_state",
				Help: "1 for the RF state the machine currently occupies, 0 otherwise",
			},
			[]string{"state"},
		),
		DataSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nci_data_packets_sent_total",
			Help: "Total data packets handed to the SAR for transmission",
		}),
		DataReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nci_data_packets_received_total",
			Help: "Total reassembled data packets delivered to the application",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nci_bytes_sent_total",
			Help: "Total application payload bytes sent",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nci_bytes_received_total",
			Help: "Total application payload bytes received",
		}),
		TransportErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nci_transport_errors_total",
			Help: "Total HAL transport errors reported to the core",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.CommandsTotal,
			m.CommandDuration,
			m.CommandTimeoutsTotal,
			m.StateTransitionsTotal,
			m.CurrentState,
			m.DataSent,
			m.DataReceived,
			m.BytesSent,
			m.BytesReceived,
			m.TransportErrorsTotal,
		)
	}
	return m
}

// RecordCommand records a completed control command.
func (m *Metrics) RecordCommand(gid, oid byte, ok bool, durationSeconds float64) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	g, o := gidLabel(gid), oidLabel(oid)
	m.CommandsTotal.WithLabelValues(g, o, outcome).Inc()
	m.CommandDuration.WithLabelValues(g, o).Observe(durationSeconds)
}

// RecordCommandTimeout records a command that hit cmd_timeout.
func (m *Metrics) RecordCommandTimeout(gid, oid byte) {
	if m == nil {
		return
	}
	m.CommandTimeoutsTotal.WithLabelValues(gidLabel(gid), oidLabel(oid)).Inc()
}

// RecordTransition records a state machine transition and updates the
// current-state gauge vector so exactly one state reads 1.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.StateTransitionsTotal.WithLabelValues(from, to).Inc()
	m.CurrentState.WithLabelValues(from).Set(0)
	m.CurrentState.WithLabelValues(to).Set(1)
}

// RecordDataSent records an outbound application data packet.
func (m *Metrics) RecordDataSent(bytes int) {
	if m == nil {
		return
	}
	m.DataSent.Inc()
	m.BytesSent.Add(float64(bytes))
}

// RecordDataReceived records an inbound application data packet.
func (m *Metrics) RecordDataReceived(bytes int) {
	if m == nil {
		return
	}
	m.DataReceived.Inc()
	m.BytesReceived.Add(float64(bytes))
}

// RecordTransportError records a HAL transport failure.
func (m *Metrics) RecordTransportError() {
	if m == nil {
		return
	}
	m.TransportErrorsTotal.Inc()
}

func gidLabel(gid byte) string {
	return hexByte(gid)
}

func oidLabel(oid byte) string {
	return hexByte(oid)
}

const hexDigits = "0123456789abcdef"

func hexByte(b byte) string {
	return string([]byte{'0', 'x', hexDigits[b>>4], hexDigits[b&0x0f]})
}
