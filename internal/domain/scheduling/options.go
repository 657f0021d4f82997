package scheduling

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/medbook/medbook/internal/platform/apperr"
	"github.com/medbook/medbook/internal/platform/outbox"
	"github.com/medbook/medbook/pkg/civil"
)

type options struct {
	now     func() time.Time
	loc     *time.Location
	logger  zerolog.Logger
	events  EventRecorder
	metrics OutcomeRecorder
}

// OutcomeRecorder counts operations by result: "ok" or an error code.
type OutcomeRecorder interface {
	RecordOutcome(operation, outcome string)
}

// Option configures a Ledger or Coordinator.
type Option func(*options)

// WithClock sets the time source and the zone in which "today" is computed.
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
		if loc != nil {
			o.loc = loc
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEvents records appointment lifecycle events in the booking transaction.
func WithEvents(r EventRecorder) Option {
	return func(o *options) {
		if r != nil {
			o.events = r
		}
	}
}

func WithMetrics(r OutcomeRecorder) Option {
	return func(o *options) {
		if r != nil {
			o.metrics = r
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		now:     time.Now,
		loc:     time.UTC,
		logger:  zerolog.Nop(),
		events:  nopRecorder{},
		metrics: nopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) today() civil.Date {
	return civil.DateOf(o.now().In(o.loc))
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, outbox.Event) error { return nil }

func (nopRecorder) RecordOutcome(string, string) {}

var tracer = otel.Tracer("github.com/medbook/medbook/internal/domain/scheduling")

// startOp opens a span for operation. The returned func ends it and counts
// the outcome; call it with the operation's final error.
func (o options) startOp(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome, _ = apperr.Classify(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		o.metrics.RecordOutcome(operation, outcome)
		span.End()
	}
}
