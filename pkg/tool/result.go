package tool

import (
	"encoding/json"

	"github.com/ryotayamanaka/mcp-city/pkg/errmodel"
)

// Result is the outcome of one invocation: either a success payload or a failure.
// Exactly one of Payload and Failure is meaningful; Failure != nil marks a failure.
type Result struct {
	Payload json.RawMessage
	Failure *errmodel.Error
}

// Success wraps a JSON payload. A nil payload is encoded as null.
func Success(payload json.RawMessage) Result {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Result{Payload: payload}
}

// SuccessValue marshals v into a success payload.
func SuccessValue(v any) Result {
	b, err := json.Marshal(v)
	if err != nil {
		return Fail(errmodel.System(errmodel.CodeInternal, "encode result", nil, err))
	}
	return Success(b)
}

// Fail converts err into a failure result.
func Fail(err error) Result {
	ce := errmodel.From(err)
	if ce == nil {
		ce = errmodel.System(errmodel.CodeInternal, "failure without error", nil, nil)
	}
	return Result{Failure: ce}
}

func (r Result) OK() bool { return r.Failure == nil }

// Kind returns the failure code, or "" for a success.
func (r Result) Kind() string {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Code
}

// Err returns the failure as an error, or nil.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

type resultEnvelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *errmodel.Error `json:"error,omitempty"`
}

// MarshalJSON encodes {"ok":true,"result":...} or {"ok":false,"error":{...}}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Failure != nil {
		return json.Marshal(resultEnvelope{OK: false, Error: r.Failure})
	}
	payload := r.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return json.Marshal(resultEnvelope{OK: true, Result: payload})
}

func (r *Result) UnmarshalJSON(b []byte) error {
	var env resultEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	if !env.OK {
		if env.Error == nil {
			env.Error = errmodel.System(errmodel.CodeInternal, "failure without error", nil, nil)
		}
		*r = Result{Failure: env.Error}
		return nil
	}
	*r = Success(env.Result)
	return nil
}
