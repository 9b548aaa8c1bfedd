// Package gateway is the boundary to the generative-text model.
package gateway

import "context"

// Request is one text generation call.
type Request struct {
	Model  string
	Prompt string
	// JSONOutput asks the model to answer with a JSON document only.
	JSONOutput bool
}

// Gateway sends a prompt to a model and returns its raw text answer.
// Implementations return *Error for every failure.
type Gateway interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Func adapts a plain function to Gateway.
type Func func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
