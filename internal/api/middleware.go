package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nodestake/staking-ledger/internal/observability/metrics"
	"github.com/nodestake/staking-ledger/internal/observability/tracing"
	"github.com/nodestake/staking-ledger/internal/pda"
	"github.com/nodestake/staking-ledger/internal/types"
)

const TraceIDHeader = "X-Trace-Id"

type signedRequestKey struct{}

type signedRequest struct {
	caller pda.Address
	nonce  uint64
}

// signedFromContext returns the identity and nonce verified by the signature
// middleware
func signedFromContext(ctx context.Context) (signedRequest, bool) {
	req, ok := ctx.Value(signedRequestKey{}).(signedRequest)
	return req, ok
}

func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(TraceIDHeader); id != "" {
			ctx = tracing.WithTraceID(ctx, id)
		} else {
			ctx = tracing.InjectTraceID(ctx)
		}
		w.Header().Set(TraceIDHeader, tracing.TraceID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observe := metrics.StartHttpRequestDurationTimer(r.Method)
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observe(route, ww.Status())
	})
}

// signatureMiddleware verifies the signer headers against the request body
// and stores the caller identity and nonce in the request context. Whether
// the nonce was already used is decided in the operation transaction.
func signatureMiddleware(maxBodyBytes int64, nonceWindow time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, r, types.NewErrorWithMsg(http.StatusRequestEntityTooLarge, types.BadRequest, "request body too large"))
					return
				}
				writeError(w, r, types.NewError(http.StatusBadRequest, types.BadRequest, fmt.Errorf("failed to read body: %w", err)))
				return
			}

			nonce, err := ParseNonce(r.Header.Get(NonceHeader), time.Now(), nonceWindow)
			if err != nil {
				writeError(w, r, types.NewError(http.StatusUnauthorized, types.Unauthenticated, err))
				return
			}

			caller, err := VerifyRequest(
				r.Header.Get(SignerHeader), r.Header.Get(SignatureHeader),
				r.Method, r.URL.Path, nonce, body,
			)
			if err != nil {
				writeError(w, r, types.NewError(http.StatusUnauthorized, types.Unauthenticated, err))
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			ctx := context.WithValue(r.Context(), signedRequestKey{}, signedRequest{caller: caller, nonce: nonce})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
