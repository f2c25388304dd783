package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// reportTimeout bounds how long an incident report may take.
const reportTimeout = 5 * time.Second

// ErrorSink writes a resolved error payload. A custom sink fully owns the
// response format.
type ErrorSink func(w http.ResponseWriter, r *http.Request, p *Payload)

// DefaultErrorSink sends p as the body with p.Status as the HTTP status
// (500 when unset), through the outbound chain.
func DefaultErrorSink(w http.ResponseWriter, r *http.Request, p *Payload) {
	status := p.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	resp := &Response{Status: status, Body: p}
	err := Respond(w, r, resp)
	if err == nil || errors.Is(err, ErrAlreadySent) {
		return
	}
	// The outbound chain rejected the error payload; write it as is.
	if rw, ok := w.(*ResponseWriter); ok && !rw.Sent() {
		rw.write(&Response{Status: status, Body: p})
	}
}

// errorHandler is the terminal pipeline stage. It logs every failure,
// resolves it, reports unclassified ones in production, and hands the
// payload to the sink.
type errorHandler struct {
	resolver *Resolver
	reporter Reporter
	sink     ErrorSink
	logger   *slog.Logger
	env      Environment
	metrics  *Metrics
}

func (h *errorHandler) stage() Stage {
	return NewTerminalStage("error", h.handle)
}

func (h *errorHandler) handle(w *ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	rc := RequestContextFrom(ctx)

	h.log(ctx, r, err)

	res := h.resolver.Resolve(err, rc)
	h.metrics.observeFailure(res)

	if res.Unclassified {
		h.report(r, rc, res)
	}

	if w.Sent() {
		h.logger.WarnContext(ctx, "failure after response was sent",
			"key", res.Key,
			"error", err,
		)
		return
	}
	h.sink(w, r, res.Payload)
}

func (h *errorHandler) log(ctx context.Context, r *http.Request, err error) {
	if h.env != Development {
		h.logger.DebugContext(ctx, "ErrorHandler", "error", err)
		return
	}

	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	}
	var f *Failure
	if errors.As(err, &f) && len(f.stack) > 0 {
		attrs = append(attrs, "stack", string(f.stack))
	}
	h.logger.ErrorContext(ctx, "ErrorHandler", attrs...)
}

// report persists an incident in production. It never panics and never
// returns an error: a failure while reporting must not mask the original.
func (h *errorHandler) report(r *http.Request, rc *RequestContext, res Resolution) {
	if h.env != Production || h.reporter == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), reportTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.ErrorContext(ctx, "incident report panicked", "panic", rec, "key", res.Key)
			h.metrics.observeReportFailure()
		}
	}()

	inc := newIncident(r, rc, res)
	if err := h.reporter.Report(ctx, inc); err != nil {
		h.logger.WarnContext(ctx, "incident report failed",
			"incident_id", inc.ID,
			"key", res.Key,
			"error", err,
		)
		h.metrics.observeReportFailure()
		return
	}
	h.metrics.observeIncident()
}
