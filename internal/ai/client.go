// Package ai provides the text-model client used by discovery selection and
// the analyzer dimensions, plus the response normalizer that makes model
// output safe to parse.
package ai

import "context"

// Request is a single text completion call.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// TextClient abstracts a text model. Implementations must honour the context
// deadline and return the raw assistant text.
type TextClient interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// TextClientFunc adapts a function to the TextClient interface.
type TextClientFunc func(ctx context.Context, req Request) (string, error)

func (f TextClientFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
