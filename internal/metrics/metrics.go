package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/denisstrizhkin/network-labs/pkg/arq"
)

// Recorder records transfer metrics.
type Recorder interface {
	RecordTransfer(protocol arq.Protocol, resTime time.Duration, stats arq.Stats, hasErr bool)
}

// LinkRecorder records the fate of every unit passing through a lossy link.
type LinkRecorder interface {
	Forwarded(direction string)
	Dropped(direction string)
}

// Dummy discards everything.
type Dummy struct{}

// NewDummy constructs a new dummy metrics recorder.
func NewDummy() *Dummy {
	return &Dummy{}
}

// RecordTransfer implements Recorder.
func (m *Dummy) RecordTransfer(arq.Protocol, time.Duration, arq.Stats, bool) {}

// Forwarded implements LinkRecorder.
func (m *Dummy) Forwarded(string) {}

// Dropped implements LinkRecorder.
func (m *Dummy) Dropped(string) {}

// Prometheus implements Recorder and LinkRecorder on top of prometheus collectors.
type Prometheus struct {
	transfers  *prometheus.CounterVec
	errors     *prometheus.CounterVec
	sent       *prometheus.CounterVec
	efficiency *prometheus.SummaryVec
	resTime    *prometheus.SummaryVec
	forwarded  *prometheus.CounterVec
	dropped    *prometheus.CounterVec
}

// NewPrometheus constructs a new Prometheus metrics recorder registered in reg.
// A nil reg means prometheus.DefaultRegisterer.
func NewPrometheus(service string, reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Prometheus{
		transfers: f.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_transfers_total",
			Help: "The total number of completed transfers",
		}, []string{"protocol"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_transfer_errors_total",
			Help: "The total number of failed transfers",
		}, []string{"protocol"}),
		sent: f.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_segments_sent_total",
			Help: "Segments transmitted, retransmissions included",
		}, []string{"protocol"}),
		efficiency: f.NewSummaryVec(prometheus.SummaryOpts{
			Name: service + "_efficiency",
			Help: "Efficiency coefficient of completed transfers",
		}, []string{"protocol"}),
		resTime: f.NewSummaryVec(prometheus.SummaryOpts{
			Name: service + "_transfer_time",
			Help: "Transfer times",
		}, []string{"protocol"}),
		forwarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_link_forwarded_total",
			Help: "Units forwarded by the lossy link",
		}, []string{"direction"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_link_dropped_total",
			Help: "Units dropped by the lossy link",
		}, []string{"direction"}),
	}
}

// RecordTransfer implements Recorder.
func (m *Prometheus) RecordTransfer(protocol arq.Protocol, resTime time.Duration, stats arq.Stats, hasErr bool) {
	p := string(protocol)
	m.transfers.WithLabelValues(p).Inc()
	m.sent.WithLabelValues(p).Add(float64(stats.Sent))
	m.resTime.WithLabelValues(p).Observe(resTime.Seconds())
	if hasErr {
		m.errors.WithLabelValues(p).Inc()
		return
	}
	m.efficiency.WithLabelValues(p).Observe(stats.Efficiency())
}

// Forwarded implements LinkRecorder.
func (m *Prometheus) Forwarded(direction string) {
	m.forwarded.WithLabelValues(direction).Inc()
}

// Dropped implements LinkRecorder.
func (m *Prometheus) Dropped(direction string) {
	m.dropped.WithLabelValues(direction).Inc()
}
