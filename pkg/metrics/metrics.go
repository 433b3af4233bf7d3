// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package metrics holds the prometheus counters of discovery and sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "serialdevice"

// Probe results.
const (
	ProbeMatch      = "match"
	ProbeMismatch   = "mismatch"
	ProbeNoReply    = "no_reply"
	ProbeOpenFailed = "open_failed"
)

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

type Metrics struct {
	FramesReceived  prometheus.Counter
	FramesSent      prometheus.Counter
	Resyncs         prometheus.Counter
	MalformedFrames prometheus.Counter
	BytesRead       prometheus.Counter
	BytesWritten    prometheus.Counter
	PortsProbed     *prometheus.CounterVec // labels: result
	Open            prometheus.Gauge
}

// New creates the counters and registers them with reg. A nil reg leaves
// them unregistered, which is what library users get by default.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames decoded from the device.",
		}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the device.",
		}),
		Resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resyncs_total",
			Help:      "Candidate frames rejected by checksum, marker or length.",
		}),
		MalformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Frames that carried a malformed entry.",
		}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Bytes read from the serial port.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes written to the serial port.",
		}),
		PortsProbed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ports_probed_total",
			Help:      "Ports tried during discovery, by result.",
		}, []string{"result"}),
		Open: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_open",
			Help:      "1 while a device session is open.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.FramesReceived, m.FramesSent, m.Resyncs, m.MalformedFrames,
			m.BytesRead, m.BytesWritten, m.PortsProbed, m.Open)
	}
	return m
}

func (m *Metrics) Probe(result string) {
	m.PortsProbed.WithLabelValues(result).Inc()
}
