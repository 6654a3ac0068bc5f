package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	AttrHTTPStatus = attribute.Key("skillflow.http.status")
	AttrOutcome    = attribute.Key("skillflow.outcome")
)

// Meter returns the meter used across skillflow packages. Instruments created
// from it before Init delegate to the provider Init installs.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// SkillInstruments records parent-to-skill traffic as OTel metrics, exported
// over OTLP next to the Prometheus collector. A nil receiver records nothing.
type SkillInstruments struct {
	forwardDuration metric.Float64Histogram
	tokenExchanges  metric.Int64Counter
}

// NewSkillInstruments creates the instruments on meter.
func NewSkillInstruments(meter metric.Meter) (*SkillInstruments, error) {
	forwardDuration, err := meter.Float64Histogram("skillflow.skill.forward.duration",
		metric.WithDescription("Duration of HTTP round trips from the parent bot to a skill"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create forward duration histogram: %w", err)
	}
	tokenExchanges, err := meter.Int64Counter("skillflow.skill.token_exchanges",
		metric.WithDescription("Token sub-exchanges run inside a forward, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create token exchange counter: %w", err)
	}
	return &SkillInstruments{forwardDuration: forwardDuration, tokenExchanges: tokenExchanges}, nil
}

// RecordForward records one round trip. status is 0 when no response arrived.
func (i *SkillInstruments) RecordForward(ctx context.Context, skillID string, status int, d time.Duration) {
	if i == nil {
		return
	}
	i.forwardDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		AttrSkillID.String(skillID),
		AttrHTTPStatus.String(strconv.Itoa(status)),
	))
}

// RecordTokenExchange counts one token sub-exchange outcome.
func (i *SkillInstruments) RecordTokenExchange(ctx context.Context, skillID, outcome string) {
	if i == nil {
		return
	}
	i.tokenExchanges.Add(ctx, 1, metric.WithAttributes(
		AttrSkillID.String(skillID),
		AttrOutcome.String(outcome),
	))
}
