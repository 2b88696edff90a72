package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the fastgtpd metric instruments (§4.I): one gauge for
// live session count and two instruments describing turn throughput.
type Metrics struct {
	SessionActive metric.Int64UpDownCounter
	TurnCount     metric.Int64Counter
	TurnDuration  metric.Float64Histogram
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.SessionActive, err = meter.Int64UpDownCounter("fastgtp.session.active",
		metric.WithDescription("Number of currently open sessions"),
	)
	if err != nil {
		return nil, err
	}

	m.TurnCount, err = meter.Int64Counter("fastgtp.turn.count",
		metric.WithDescription("Number of GTP turns processed, tagged by success"),
	)
	if err != nil {
		return nil, err
	}

	m.TurnDuration, err = meter.Float64Histogram("fastgtp.turn.duration",
		metric.WithDescription("GTP turn round-trip duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
