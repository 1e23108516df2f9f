package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer names used across taxapi.
const (
	TracerIAM        = "taxapi/services/iam"
	TracerRepository = "taxapi/repository"
)

// StartSpan starts a span on the named tracer.
//
//	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.AuthenticateRequest")
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records err on the span and marks the span as failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent adds a named event to the span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Span attribute keys
const (
	AttrPrincipalID     = "principal.id"
	AttrPrincipalRole   = "principal.role"
	AttrPrincipalRegion = "principal.region"

	AttrAuthSource  = "auth.source"
	AttrAuthOutcome = "auth.outcome"
	AttrAuthReason  = "auth.reason"

	AttrPolicyObject  = "policy.object"
	AttrPolicyAction  = "policy.action"
	AttrPolicyAllowed = "policy.allowed"
)
