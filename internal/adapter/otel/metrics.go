package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "craftd"

// Metrics holds all automation engine metric instruments.
type Metrics struct {
	EventsEmitted    metric.Int64Counter
	EventsDropped    metric.Int64Counter
	HandlerErrors    metric.Int64Counter
	PromptsGenerated metric.Int64Counter
	RecordsLogged    metric.Int64Counter
	RecordsLost      metric.Int64Counter
	SchedulerTicks   metric.Int64Counter
	EmitDuration     metric.Float64Histogram
}

// NewMetrics creates all metric instruments against the global meter
// provider. Safe to call before Init; instruments are then no-ops.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.EventsEmitted, err = meter.Int64Counter("craftd.events.emitted",
		metric.WithDescription("Number of events accepted by the bus"))
	if err != nil {
		return nil, err
	}

	m.EventsDropped, err = meter.Int64Counter("craftd.events.dropped",
		metric.WithDescription("Number of events dropped by rate limiting"))
	if err != nil {
		return nil, err
	}

	m.HandlerErrors, err = meter.Int64Counter("craftd.handler.errors",
		metric.WithDescription("Number of handler failures during dispatch"))
	if err != nil {
		return nil, err
	}

	m.PromptsGenerated, err = meter.Int64Counter("craftd.prompts.generated",
		metric.WithDescription("Number of pending prompts produced"))
	if err != nil {
		return nil, err
	}

	m.RecordsLogged, err = meter.Int64Counter("craftd.log.records",
		metric.WithDescription("Number of records written to the event log"))
	if err != nil {
		return nil, err
	}

	m.RecordsLost, err = meter.Int64Counter("craftd.log.lost",
		metric.WithDescription("Number of records lost after write retries"))
	if err != nil {
		return nil, err
	}

	m.SchedulerTicks, err = meter.Int64Counter("craftd.scheduler.ticks",
		metric.WithDescription("Number of scheduler ticks fired"))
	if err != nil {
		return nil, err
	}

	m.EmitDuration, err = meter.Float64Histogram("craftd.emit.duration_seconds",
		metric.WithDescription("Time from emit to completion of all handlers"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
