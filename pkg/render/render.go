// Package render turns invocation results into the text handed back to a
// conversational agent, bounded by a token budget.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ryotayamanaka/mcp-city/pkg/tool"
)

// TokenEstimator estimates token usage of text content.
type TokenEstimator func(text string) int

// DefaultMaxTokens bounds rendered text when no budget is configured.
const DefaultMaxTokens = 2000

// Renderer renders results. The zero value is not usable; call New.
type Renderer struct {
	estimate  TokenEstimator
	maxTokens int
}

type Option func(*Renderer)

// WithTokenEstimator sets the token estimator. Defaults to rune length.
func WithTokenEstimator(est TokenEstimator) Option {
	return func(r *Renderer) {
		if est != nil {
			r.estimate = est
		}
	}
}

// WithMaxTokens sets the budget. Non-positive values disable the limit.
func WithMaxTokens(n int) Option {
	return func(r *Renderer) { r.maxTokens = n }
}

func New(opts ...Option) *Renderer {
	r := &Renderer{
		estimate:  runeEstimate,
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func runeEstimate(s string) int { return len([]rune(s)) }

// Result renders res. Successful payloads go through format when given,
// falling back to indented JSON; failures render as "error (<kind>): <message>".
func (r *Renderer) Result(res tool.Result, format tool.Formatter) string {
	return r.Fit(Text(res, format))
}

// Text renders res without applying the budget.
func Text(res tool.Result, format tool.Formatter) string {
	if !res.OK() {
		return fmt.Sprintf("error (%s): %s", res.Kind(), res.Failure.Message)
	}
	if format != nil {
		if s, err := format(res.Payload); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, res.Payload, "", "  "); err != nil {
		return string(res.Payload)
	}
	return buf.String()
}

// Fit trims text to the budget, dropping whole trailing lines where possible.
func (r *Renderer) Fit(text string) string {
	if r.maxTokens <= 0 || r.estimate(text) <= r.maxTokens {
		return text
	}
	lines := strings.Split(text, "\n")
	budget := r.maxTokens - r.estimate(truncationNote(len(lines)))
	used := 0
	kept := 0
	for _, l := range lines {
		cost := r.estimate(l + "\n")
		if used+cost > budget {
			break
		}
		used += cost
		kept++
	}
	if kept == 0 {
		// A single oversized line: cut it by runes.
		rs := []rune(lines[0])
		n := len(rs)
		for n > 0 && r.estimate(string(rs[:n])) > budget {
			n = n * 3 / 4
		}
		return string(rs[:n]) + "\n" + truncationNote(len(lines))
	}
	return strings.Join(lines[:kept], "\n") + "\n" + truncationNote(len(lines)-kept)
}

func truncationNote(dropped int) string {
	return fmt.Sprintf("[truncated: %d more lines]", dropped)
}
