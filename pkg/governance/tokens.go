package governance

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator counts tokens for pre-call cost estimation.
// Encodings are cached per model since initialization is expensive.
type TokenEstimator struct {
	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewTokenEstimator creates an estimator with an empty encoding cache.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{
		encodings: make(map[string]*tiktoken.Tiktoken),
	}
}

// Estimate returns the token count of text for the given model. Unknown
// models fall back to the cl100k_base encoding; when no encoding can be
// loaded at all, a rough 4-characters-per-token estimate is used.
func (e *TokenEstimator) Estimate(model, text string) int {
	enc := e.encoding(model)
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateMessages sums the token counts of every message plus the per-message
// role overhead used by chat-format models.
func (e *TokenEstimator) EstimateMessages(model string, messages []string) int {
	const tokensPerMessage = 3

	total := 3 // reply priming
	for _, msg := range messages {
		total += tokensPerMessage
		total += e.Estimate(model, msg)
	}
	return total
}

func (e *TokenEstimator) encoding(model string) *tiktoken.Tiktoken {
	e.mu.RLock()
	enc, ok := e.encodings[model]
	e.mu.RUnlock()
	if ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil
		}
	}

	e.mu.Lock()
	e.encodings[model] = enc
	e.mu.Unlock()
	return enc
}
