package domain

import (
	"context"
	"errors"
)

// ErrAIUnavailable is the single failure variant of the AI extractor:
// timeouts, transport errors and malformed output all collapse into it so
// the pipeline degrades uniformly.
var ErrAIUnavailable = errors.New("ai extractor unavailable")

// AIExtraction is the AI fallback's answer: a ParsedIntent plus an
// optional clarification question when confidence stayed low.
type AIExtraction struct {
	Intent        ParsedIntent
	Clarification string
}

// AIExtractor is the optional fallback extraction capability. One method,
// one typed failure; injected into the dispatcher so the deterministic
// pipeline is testable without network access.
type AIExtractor interface {
	Extract(ctx context.Context, text string, acct AccountContext) (*AIExtraction, error)
}
