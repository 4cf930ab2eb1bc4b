package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/interferometer-simulator/model"
)

// Write failure reasons used as label values.
const (
	WriteFailureTimeout = "timeout"
	WriteFailureError   = "error"
)

// StreamCollector exposes Prometheus metrics for the sample transmitter and
// the record receiver.
type StreamCollector struct {
	gatherer prometheus.Gatherer

	RecordsSent       prometheus.Counter
	WriteFailures     *prometheus.CounterVec
	TransmitterState  prometheus.Gauge
	TransmitterCursor prometheus.Gauge

	RecordsReceived  prometheus.Counter
	RecordsDiscarded prometheus.Counter
}

// NewStreamCollector registers stream metrics against the provided registerer.
func NewStreamCollector(reg prometheus.Registerer) (*StreamCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sent, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transmitter_records_sent_total",
		Help: "Records written to the transport within the write bound.",
	}), "transmitter_records_sent_total")
	if err != nil {
		return nil, err
	}

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transmitter_write_failures_total",
		Help: "Record writes that did not complete within the bound, labeled by reason.",
	}, []string{"reason"})
	failures, err = registerCounterVec(reg, failures, "transmitter_write_failures_total")
	if err != nil {
		return nil, err
	}

	state, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transmitter_state",
		Help: "Transmitter lifecycle state (0 idle, 1 running, 2 stopped).",
	}), "transmitter_state")
	if err != nil {
		return nil, err
	}

	cursor, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transmitter_cursor",
		Help: "Index of the next sample the transmitter will emit.",
	}), "transmitter_cursor")
	if err != nil {
		return nil, err
	}

	received, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "receiver_records_total",
		Help: "Records parsed successfully by the receiver.",
	}), "receiver_records_total")
	if err != nil {
		return nil, err
	}

	discarded, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "receiver_records_discarded_total",
		Help: "Records the receiver could not parse as a decimal value.",
	}), "receiver_records_discarded_total")
	if err != nil {
		return nil, err
	}

	return &StreamCollector{
		gatherer:          gatherer,
		RecordsSent:       sent,
		WriteFailures:     failures,
		TransmitterState:  state,
		TransmitterCursor: cursor,
		RecordsReceived:   received,
		RecordsDiscarded:  discarded,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *StreamCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// IncRecordsSent increments the sent-records counter.
func (c *StreamCollector) IncRecordsSent() {
	if c == nil || c.RecordsSent == nil {
		return
	}
	c.RecordsSent.Inc()
}

// IncWriteFailure increments the write failure counter for reason.
func (c *StreamCollector) IncWriteFailure(reason string) {
	if c == nil || c.WriteFailures == nil {
		return
	}
	c.WriteFailures.WithLabelValues(reason).Inc()
}

// SetTransmitterState updates the lifecycle and cursor gauges.
func (c *StreamCollector) SetTransmitterState(state model.TransmitterState, cursor int) {
	if c == nil {
		return
	}
	if c.TransmitterState != nil {
		c.TransmitterState.Set(float64(state))
	}
	if c.TransmitterCursor != nil {
		c.TransmitterCursor.Set(float64(cursor))
	}
}

// IncRecordsReceived increments the parsed-records counter.
func (c *StreamCollector) IncRecordsReceived() {
	if c == nil || c.RecordsReceived == nil {
		return
	}
	c.RecordsReceived.Inc()
}

// IncRecordsDiscarded increments the discarded-records counter.
func (c *StreamCollector) IncRecordsDiscarded() {
	if c == nil || c.RecordsDiscarded == nil {
		return
	}
	c.RecordsDiscarded.Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
