package binder

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-go-golems/wsbind/pkg/envelope"
)

// OnMessage parses raw and routes it to the application handler. Malformed
// payloads are dropped. Handler failures are logged with the raw payload and
// never affect the connection or its binding.
func (s *Server[C, S]) OnMessage(ctx context.Context, conn C, raw string) {
	defer s.guard("message", conn)

	ctx, span := s.tracer.Start(ctx, "wsbind.message", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	sessDesc := s.describeSession(conn)
	span.SetAttributes(attribute.String("wsbind.session", sessDesc))

	env, err := envelope.Parse(raw)
	if err != nil {
		s.observer.MessageReceived(MessageParseError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse error")
		s.logger.Error().
			Err(err).
			Str("conn", describe(conn)).
			Str("session", sessDesc).
			Str("raw", raw).
			Msg("dropping malformed message")
		return
	}
	if env.HasDevice() {
		span.SetAttributes(attribute.String("wsbind.device", env.Device))
	}
	if m := env.Method(); m != "" {
		span.SetAttributes(attribute.String("wsbind.method", m))
	}

	err = invoke(StageMessage, func() error {
		return s.handler.OnMessage(ctx, s, conn, env)
	})
	if err != nil {
		s.observer.MessageReceived(MessageHandlerError)
		s.observer.HandlerFailed(StageMessage)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error().
			Err(err).
			Str("conn", describe(conn)).
			Str("session", sessDesc).
			Str("raw", raw).
			Msg("message handler failed")
		return
	}
	s.observer.MessageReceived(MessageDispatched)
	span.SetStatus(codes.Ok, "")
}
