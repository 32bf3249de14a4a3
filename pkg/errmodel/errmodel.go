package errmodel

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Category values for compact errors.
const (
	CategoryValidation = "validation"
	CategoryTool       = "tool"
	CategoryNetwork    = "network"
	CategoryPolicy     = "policy"
	CategorySystem     = "system"
)

// Codes of the tool invocation taxonomy. A failed invocation always carries one of these.
const (
	CodeUnknownTool       = "unknown_tool"
	CodeMissingArgument   = "missing_argument"
	CodeInvalidArgument   = "invalid_argument"
	CodeRemoteRejected    = "remote_rejected"
	CodeRemoteUnavailable = "remote_unavailable"
	CodeInternal          = "internal"
)

// CodeUnauthorized is returned by the HTTP surface when the caller's credential is missing or wrong.
const CodeUnauthorized = "unauthorized"

// Error is the compact error payload returned by APIs and used internally.
// It implements the error interface.
type Error struct {
	Category string         `json:"category"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
	Causes   []Error        `json:"causes,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// New constructs a new compact error.
func New(category, code, message string, ctx map[string]any, causes ...error) *Error {
	ce := &Error{Category: category, Code: code, Message: truncate(message, 512)}
	if len(ctx) > 0 {
		ce.Context = truncateContext(ctx)
	}
	for _, c := range causes {
		if c == nil {
			continue
		}
		ce.Causes = append(ce.Causes, *From(c))
	}
	return ce
}

// From converts any error into a compact Error. If err is already *Error, it's returned as-is.
func From(err error) *Error {
	var ce *Error
	if err == nil {
		return nil
	}
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Category: CategorySystem, Code: CodeInternal, Message: truncate(err.Error(), 512)}
}

// Convenience constructors.
func Validation(code, message string, ctx map[string]any) *Error {
	return New(CategoryValidation, code, message, ctx)
}

func Policy(code, message string, ctx map[string]any) *Error {
	return New(CategoryPolicy, code, message, ctx)
}

// Unauthorized rejects a caller without a valid credential.
func Unauthorized(message string) *Error {
	return Policy(CodeUnauthorized, message, nil)
}

func System(code, message string, ctx map[string]any, cause error) *Error {
	if cause != nil {
		return New(CategorySystem, code, message, ctx, cause)
	}
	return New(CategorySystem, code, message, ctx)
}

// UnknownTool reports an invocation of a name that is not registered.
func UnknownTool(name string) *Error {
	return Validation(CodeUnknownTool, "tool "+quote(name)+" is not registered", map[string]any{"tool": name})
}

// MissingArgument reports a required parameter absent from the call.
func MissingArgument(tool, param string) *Error {
	return Validation(CodeMissingArgument, "missing required argument "+quote(param), map[string]any{"tool": tool, "argument": param})
}

// InvalidArgument reports an argument that does not match the declared schema.
func InvalidArgument(tool, param, reason string) *Error {
	ctx := map[string]any{"tool": tool}
	msg := reason
	if param != "" {
		ctx["argument"] = param
		msg = "argument " + quote(param) + ": " + reason
	}
	return Validation(CodeInvalidArgument, msg, ctx)
}

// RemoteRejected reports a collaborator that understood the call and refused it (HTTP 4xx, SQL error).
func RemoteRejected(message string, ctx map[string]any) *Error {
	return New(CategoryTool, CodeRemoteRejected, message, ctx)
}

// RemoteUnavailable reports a collaborator that could not serve the call (HTTP 5xx, network, timeout).
func RemoteUnavailable(message string, ctx map[string]any, cause error) *Error {
	if cause != nil {
		return New(CategoryNetwork, CodeRemoteUnavailable, message, ctx, cause)
	}
	return New(CategoryNetwork, CodeRemoteUnavailable, message, ctx)
}

// HTTPStatus maps category/code to HTTP status.
func HTTPStatus(e *Error) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Category {
	case CategoryValidation:
		switch e.Code {
		case CodeUnknownTool:
			return http.StatusNotFound
		case CodeInvalidArgument, CodeMissingArgument:
			return http.StatusUnprocessableEntity
		default:
			return http.StatusBadRequest
		}
	case CategoryPolicy:
		if e.Code == CodeUnauthorized {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case CategoryNetwork:
		if e.Code == CodeRemoteUnavailable {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case CategoryTool:
		return http.StatusBadGateway
	case CategorySystem:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP writes a compact error envelope to the response writer.
// It attempts to include the trace_id if present in ctx.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	ce := From(err)
	if ce == nil {
		ce = &Error{Category: CategorySystem, Code: CodeInternal, Message: "unknown error"}
	}
	status := HTTPStatus(ce)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	traceID := ""
	if r != nil {
		if span := trace.SpanFromContext(r.Context()); span != nil {
			sc := span.SpanContext()
			if sc.HasTraceID() {
				traceID = sc.TraceID().String()
			}
		}
	}
	// Envelope { error: Error, trace_id?: string }
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":    ce,
		"trace_id": traceID,
	})
}

// truncate trims a string to max characters.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// truncateContext trims long string values in the context map.
func truncateContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		switch t := v.(type) {
		case string:
			out[k] = truncate(t, 256)
		case int, int64, float64, bool:
			out[k] = t
		default:
			// Stringify composite values to keep the payload compact.
			b, err := json.Marshal(t)
			if err == nil && len(b) > 0 {
				out[k] = truncate(string(b), 256)
			} else {
				out[k] = t
			}
		}
	}
	return out
}

func quote(s string) string { return `"` + s + `"` }

// IsCategory checks if err belongs to a specific category.
func IsCategory(err error, category string) bool {
	ce := From(err)
	return ce != nil && strings.EqualFold(ce.Category, category)
}

// IsCode checks if err carries a specific code.
func IsCode(err error, code string) bool {
	ce := From(err)
	return ce != nil && ce.Code == code
}
