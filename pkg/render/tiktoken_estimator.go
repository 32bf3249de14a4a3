package render

import (
	tiktoken "github.com/pkoukk/tiktoken-go"
)

// NewTikTokenEstimator returns a TokenEstimator backed by tiktoken-go for the given model.
// Common models: "gpt-4", "gpt-3.5-turbo", "gpt-4o". If the model is unknown or the
// encoding cannot be loaded, an error is returned.
func NewTikTokenEstimator(model string) (TokenEstimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}

// EstimatorFor returns the tiktoken estimator for model, or the rune-length
// estimate when tiktoken is unavailable. The bool reports which one was used.
func EstimatorFor(model string) (TokenEstimator, bool) {
	if model == "" {
		return runeEstimate, false
	}
	est, err := NewTikTokenEstimator(model)
	if err != nil {
		return runeEstimate, false
	}
	return est, true
}
