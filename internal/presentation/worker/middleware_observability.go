package workerpresentation

import (
	"context"
	"maps"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

// WithEventContext injects an event-scoped logger for background executions.
// attrs must stay low-cardinality: consumer, event name, topic.
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	traceID trace.TraceID,
	spanID trace.SpanID,
	attrs map[string]string,
) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields := []observability.Field{observability.F("event_id", evtID)}
	if traceID.IsValid() {
		fields = append(fields, observability.F("trace_id", traceID.String()))
	}
	if spanID.IsValid() {
		fields = append(fields, observability.F("span_id", spanID.String()))
	}
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		if v := attrs[k]; k != "event_id" && v != "" {
			fields = append(fields, observability.F(k, v))
		}
	}

	return logctx.With(ctx, base.With(fields...))
}

// Mount subscribes h to every named event. Each delivery runs inside its own
// span with an event-scoped logger bound to the context.
func Mount(
	sub domoutbox.Subscriber,
	base observability.Logger,
	tracer observability.Tracer,
	consumer string,
	h domoutbox.Handler,
	events ...string,
) {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	for _, name := range events {
		sub.Subscribe(name, func(ctx context.Context, e domoutbox.Event) error {
			ctx, span := tracer.Start(ctx, "EV."+consumer,
				attribute.String("consumer", consumer),
				attribute.String("event", e.EventName()),
			)
			defer span.End()

			sc := span.SpanContext()
			ctx = WithEventContext(ctx, base, sc.TraceID(), sc.SpanID(), map[string]string{
				"consumer": consumer,
				"event":    e.EventName(),
			})

			err := h(ctx, e)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "HANDLER_ERROR")
				logctx.FromOr(ctx, base).Warn("event_consume_failed", observability.F("error", err))
				return err
			}
			span.SetStatus(codes.Ok, "OK")
			return nil
		})
	}
}
