// file: internal/metrics/otel.go
package metrics

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope used when registering with the global provider.
const MeterName = "github.com/dkoosis/tableside"

// ErrNilMeter is returned when no meter is supplied.
var ErrNilMeter = errors.New("nil meter")

// Exporter publishes a Collector's snapshot through observable instruments.
type Exporter struct {
	registration metric.Registration
}

// RegisterGlobal mirrors c into the global OpenTelemetry meter provider.
// Without an installed SDK the global provider is a no-op.
func RegisterGlobal(c *Collector) (*Exporter, error) {
	return NewExporter(otel.GetMeterProvider().Meter(MeterName), c)
}

// NewExporter registers observable instruments on meter that read from c at collection time.
func NewExporter(meter metric.Meter, c *Collector) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if c == nil {
		return nil, errors.New("nil collector")
	}

	calls, err := meter.Int64ObservableCounter("tableside_auth_api_calls_total",
		metric.WithDescription("Auth service calls by operation and outcome."))
	if err != nil {
		return nil, errors.Wrap(err, "create calls counter")
	}
	kinds, err := meter.Int64ObservableCounter("tableside_auth_errors_total",
		metric.WithDescription("Classified auth failures by kind."))
	if err != nil {
		return nil, errors.Wrap(err, "create errors counter")
	}
	events, err := meter.Int64ObservableCounter("tableside_auth_flow_events_total",
		metric.WithDescription("Flow state machine events by variant."))
	if err != nil {
		return nil, errors.Wrap(err, "create flow events counter")
	}
	claims, err := meter.Int64ObservableCounter("tableside_auth_claims_total",
		metric.WithDescription("Best-effort reward claims by result."))
	if err != nil {
		return nil, errors.Wrap(err, "create claims counter")
	}
	latency, err := meter.Int64ObservableGauge("tableside_auth_api_latency_avg_ms",
		metric.WithDescription("Average auth service latency by operation."), metric.WithUnit("ms"))
	if err != nil {
		return nil, errors.Wrap(err, "create latency gauge")
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := c.Snapshot()
		for op, st := range s.Operations {
			opAttr := attribute.String("op", op)
			o.ObserveInt64(calls, int64(st.Calls-st.Errors), metric.WithAttributes(opAttr, attribute.String("outcome", OutcomeOK)))
			o.ObserveInt64(calls, int64(st.Errors), metric.WithAttributes(opAttr, attribute.String("outcome", OutcomeError)))
			o.ObserveInt64(latency, int64(st.AvgLatencyMs), metric.WithAttributes(opAttr))
		}
		for kind, n := range s.ErrorKinds {
			o.ObserveInt64(kinds, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
		}
		for key, n := range s.FlowEvents {
			variant, event, _ := strings.Cut(key, "/")
			o.ObserveInt64(events, int64(n), metric.WithAttributes(
				attribute.String("variant", variant), attribute.String("event", event)))
		}
		o.ObserveInt64(claims, int64(s.ClaimsAcknowledged), metric.WithAttributes(attribute.String("result", "acknowledged")))
		o.ObserveInt64(claims, int64(s.ClaimsFailed), metric.WithAttributes(attribute.String("result", "failed")))
		return nil
	}, calls, kinds, events, claims, latency)
	if err != nil {
		return nil, errors.Wrap(err, "register metrics callback")
	}
	return &Exporter{registration: reg}, nil
}

// Close unregisters the instruments' callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
