package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type traceIDKey struct{}

// InjectTraceID attaches a fresh trace id to the context and its logger
func InjectTraceID(ctx context.Context) context.Context {
	return WithTraceID(ctx, uuid.New().String())
}

// WithTraceID uses a trace id supplied by the caller, e.g. a request header
func WithTraceID(ctx context.Context, id string) context.Context {
	base := log.Ctx(ctx)
	if base.GetLevel() == zerolog.Disabled {
		base = &log.Logger
	}
	logger := base.With().Str("traceId", id).Logger()
	ctx = context.WithValue(ctx, traceIDKey{}, id)
	return logger.WithContext(ctx)
}

// TraceID returns the id injected into ctx, if any
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}
