// Package dispatch routes a tool invocation through the registry: lookup,
// argument checking, handler call and result mapping. Failures are always
// returned as structured results and never escape as panics or raw errors.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ryotayamanaka/mcp-city/pkg/errmodel"
	"github.com/ryotayamanaka/mcp-city/pkg/tool"
)

// Request is one agent-issued invocation.
type Request struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Dispatcher invokes tools from a sealed registry. It holds no per-call state
// and is safe for concurrent use.
type Dispatcher struct {
	reg *tool.Registry
	log *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for per-invocation records.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func New(reg *tool.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{reg: reg, log: zap.NewNop()}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Dispatcher) Registry() *tool.Registry { return d.reg }

// Handle invokes req.Tool with the raw JSON arguments in req.
func (d *Dispatcher) Handle(ctx context.Context, req Request) tool.Result {
	return d.InvokeJSON(ctx, req.Tool, req.Arguments)
}

// InvokeJSON decodes raw as the argument object and invokes name.
// The tool name is resolved before the payload is decoded.
func (d *Dispatcher) InvokeJSON(ctx context.Context, name string, raw json.RawMessage) tool.Result {
	entry, err := d.reg.Entry(name)
	if err != nil {
		return d.finish(ctx, name, "", nil, time.Now(), tool.Fail(errmodel.UnknownTool(name)))
	}
	args, err := tool.ParseArgs(raw)
	if err != nil {
		return d.finish(ctx, name, "", nil, time.Now(), tool.Fail(errmodel.InvalidArgument(name, "", err.Error())))
	}
	return d.run(ctx, entry, args)
}

// Invoke runs name with already decoded arguments.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args tool.Args) tool.Result {
	entry, err := d.reg.Entry(name)
	if err != nil {
		return d.finish(ctx, name, "", args.Names(), time.Now(), tool.Fail(errmodel.UnknownTool(name)))
	}
	return d.run(ctx, entry, args)
}

func (d *Dispatcher) run(ctx context.Context, entry *tool.Entry, args tool.Args) tool.Result {
	name := entry.Definition.Name
	reqID := RequestID(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
		ctx = WithRequestID(ctx, reqID)
	}
	ctx, span := otel.Tracer("dispatch").Start(ctx, "Dispatcher.Invoke", trace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("request.id", reqID),
		attribute.StringSlice("tool.args", args.Names()),
	))
	defer span.End()
	start := time.Now()

	checked, err := entry.Check(args)
	if err != nil {
		res := tool.Fail(err)
		markSpan(span, res)
		return d.finish(ctx, name, reqID, args.Names(), start, res)
	}
	res := d.call(ctx, entry, checked)
	markSpan(span, res)
	return d.finish(ctx, name, reqID, args.Names(), start, res)
}

// call runs the handler, converting a panic into an internal failure.
func (d *Dispatcher) call(ctx context.Context, entry *tool.Entry, args tool.Args) (res tool.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("tool handler panicked",
				zap.String("tool", entry.Definition.Name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			res = tool.Fail(errmodel.System(errmodel.CodeInternal, "tool handler failed",
				map[string]any{"tool": entry.Definition.Name, "panic": fmt.Sprint(r)}, nil))
		}
	}()
	return entry.Handler.Call(ctx, args)
}

// finish logs the outcome. Argument values stay out of the log, only their
// names are recorded.
func (d *Dispatcher) finish(ctx context.Context, name, reqID string, argNames []string, start time.Time, res tool.Result) tool.Result {
	fields := []zap.Field{
		zap.String("tool", name),
		zap.Strings("args", argNames),
		zap.Duration("duration", time.Since(start)),
	}
	if reqID != "" {
		fields = append(fields, zap.String("request_id", reqID))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	if res.OK() {
		d.log.Info("tool invoked", fields...)
		return res
	}
	fields = append(fields, zap.String("kind", res.Kind()), zap.String("error", res.Failure.Message))
	if errmodel.IsCategory(res.Failure, errmodel.CategoryValidation) {
		d.log.Info("tool call rejected", fields...)
		return res
	}
	d.log.Warn("tool failed", fields...)
	return res
}

func markSpan(span trace.Span, res tool.Result) {
	if res.OK() {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.SetAttributes(attribute.String("error.kind", res.Kind()))
	span.SetStatus(codes.Error, res.Failure.Message)
}

type requestIDKey struct{}

// WithRequestID attaches an invocation id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the invocation id carried by ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
