package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "relaydesk"

// Metrics holds all relaydesk metric instruments.
type Metrics struct {
	MessagesReceived  metric.Int64Counter
	MessagesPersisted metric.Int64Counter
	DuplicatesSkipped metric.Int64Counter
	SignatureFailures metric.Int64Counter
	TriggersFired     metric.Int64Counter
	TriggersSkipped   metric.Int64Counter
	TriggersFailed    metric.Int64Counter
	ProcessDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.MessagesReceived, err = meter.Int64Counter("relaydesk.messages.received",
		metric.WithDescription("Number of inbound messages received"))
	if err != nil {
		return nil, err
	}

	m.MessagesPersisted, err = meter.Int64Counter("relaydesk.messages.persisted",
		metric.WithDescription("Number of messages persisted"))
	if err != nil {
		return nil, err
	}

	m.DuplicatesSkipped, err = meter.Int64Counter("relaydesk.messages.duplicates",
		metric.WithDescription("Number of duplicate messages skipped"))
	if err != nil {
		return nil, err
	}

	m.SignatureFailures, err = meter.Int64Counter("relaydesk.webhook.signature_failures",
		metric.WithDescription("Number of webhook requests rejected for a bad signature"))
	if err != nil {
		return nil, err
	}

	m.TriggersFired, err = meter.Int64Counter("relaydesk.triggers.fired",
		metric.WithDescription("Number of automation triggers fired"))
	if err != nil {
		return nil, err
	}

	m.TriggersSkipped, err = meter.Int64Counter("relaydesk.triggers.skipped",
		metric.WithDescription("Number of automation triggers skipped (human handler)"))
	if err != nil {
		return nil, err
	}

	m.TriggersFailed, err = meter.Int64Counter("relaydesk.triggers.failed",
		metric.WithDescription("Number of automation triggers that failed"))
	if err != nil {
		return nil, err
	}

	m.ProcessDuration, err = meter.Float64Histogram("relaydesk.message.process_duration_seconds",
		metric.WithDescription("Time spent processing one inbound message"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
