package server

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/pubsock/pkg/protocol"
)

const tracerName = "github.com/vango-dev/pubsock/pkg/server"

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

// startMessageSpan starts the span covering decode and the message handler.
func (srv *Server[T, D]) startMessageSpan(s *Session[T, D], f protocol.Frame) trace.Span {
	_, span := srv.tracer.Start(
		context.Background(),
		"pubsock.message",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("pubsock.session_id", string(s.id)),
			attribute.String("pubsock.frame_kind", f.Kind.String()),
			attribute.Int("pubsock.payload_size", len(f.Payload)),
		),
	)
	return span
}

// startPublishSpan starts the span covering one fan-out.
func (srv *Server[T, D]) startPublishSpan(name, topic string) trace.Span {
	attrs := []attribute.KeyValue{}
	if topic != "" {
		attrs = append(attrs, attribute.String("pubsock.topic", topic))
	}
	_, span := srv.tracer.Start(
		context.Background(),
		name,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrs...),
	)
	return span
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
