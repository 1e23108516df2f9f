package telemetry

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Credential resolution outcomes recorded per source.
const (
	OutcomeAuthenticated = "authenticated"
	OutcomeNoCredential  = "no_credential"
	OutcomeInvalid       = "invalid"
	OutcomeTimeout       = "timeout"
	OutcomeInfraError    = "infrastructure_error"
)

// AuthMetrics holds instruments for credential resolution.
type AuthMetrics struct {
	SourceAttempts metric.Int64Counter     // per-source attempts by outcome
	Resolutions    metric.Int64Counter     // whole-request results
	Duration       metric.Float64Histogram // whole-request latency
}

// NewAuthMetrics creates the auth instruments on the global meter provider.
func NewAuthMetrics() (*AuthMetrics, error) {
	meter := otel.Meter("taxapi/auth")

	attempts, err := meter.Int64Counter(
		"auth.source.attempt.count",
		metric.WithDescription("Credential source evaluations by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	resolutions, err := meter.Int64Counter(
		"auth.resolution.count",
		metric.WithDescription("Requests resolved by the authenticator chain"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"auth.resolution.duration",
		metric.WithDescription("Credential resolution duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 3000),
	)
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		SourceAttempts: attempts,
		Resolutions:    resolutions,
		Duration:       duration,
	}, nil
}

// RecordSource records a single source evaluation. Safe on a nil receiver.
func (a *AuthMetrics) RecordSource(ctx context.Context, source, outcome string) {
	if a == nil {
		return
	}
	a.SourceAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAuthSource, source),
		attribute.String(AttrAuthOutcome, outcome),
	))
}

// RecordResolution records the result of a whole resolution. source is empty when
// no source produced a principal. Safe on a nil receiver.
func (a *AuthMetrics) RecordResolution(ctx context.Context, source, outcome string, d time.Duration) {
	if a == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrAuthSource, source),
		attribute.String(AttrAuthOutcome, outcome),
	)
	a.Resolutions.Add(ctx, 1, attrs)
	a.Duration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

// DatabaseMetrics is a bun query hook recording query counts, latency and errors.
type DatabaseMetrics struct {
	QueryCounter  metric.Int64Counter
	QueryDuration metric.Float64Histogram
	QueryErrors   metric.Int64Counter
}

var _ bun.QueryHook = (*DatabaseMetrics)(nil)

// NewDatabaseMetrics creates the database instruments on the global meter provider.
func NewDatabaseMetrics() (*DatabaseMetrics, error) {
	meter := otel.Meter("taxapi/database")

	queryCounter, err := meter.Int64Counter(
		"db.query.count",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2000),
	)
	if err != nil {
		return nil, err
	}

	queryErrors, err := meter.Int64Counter(
		"db.query.error.count",
		metric.WithDescription("Total number of database query errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &DatabaseMetrics{
		QueryCounter:  queryCounter,
		QueryDuration: queryDuration,
		QueryErrors:   queryErrors,
	}, nil
}

// BeforeQuery implements bun.QueryHook.
func (d *DatabaseMetrics) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery implements bun.QueryHook.
func (d *DatabaseMetrics) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	attrs := metric.WithAttributes(attribute.String(AttrDBOperation, event.Operation()))
	d.QueryCounter.Add(ctx, 1, attrs)
	d.QueryDuration.Record(ctx, float64(time.Since(event.StartTime).Microseconds())/1000, attrs)
	if event.Err != nil {
		d.QueryErrors.Add(ctx, 1, attrs)
	}
}

// Metric attribute keys
const (
	AttrDBOperation = "db.operation"
)
