package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/okian/aura/pkg/logger"
)

// ErrMissingAPIKey is returned by NewGenAI when no credential is supplied.
var ErrMissingAPIKey = errors.New("gemini api key is required")

const defaultTimeout = 60 * time.Second

// GenAI calls the Gemini API through google.golang.org/genai.
type GenAI struct {
	client  *genai.Client
	timeout time.Duration
	baseURL string
	log     logger.Logger
}

// GenAIOption configures a GenAI adapter.
type GenAIOption func(*GenAI)

// WithTimeout bounds every Generate call.
func WithTimeout(d time.Duration) GenAIOption {
	return func(g *GenAI) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithBaseURL points the client at another endpoint.
func WithBaseURL(u string) GenAIOption {
	return func(g *GenAI) {
		g.baseURL = u
	}
}

// WithLogger sets the adapter logger.
func WithLogger(l logger.Logger) GenAIOption {
	return func(g *GenAI) {
		if l != nil {
			g.log = l
		}
	}
}

// NewGenAI builds a Gemini API adapter authenticated with apiKey.
func NewGenAI(ctx context.Context, apiKey string, opts ...GenAIOption) (*GenAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	g := &GenAI{
		timeout: defaultTimeout,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions.BaseURL = g.baseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	g.client = client
	return g, nil
}

// Generate sends one GenerateContent request and returns the text of the
// first candidate. A response without text is returned as "".
func (g *GenAI) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{}
	if req.JSONOutput {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		// The SDK may report our deadline as a transport error.
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &Error{Kind: KindTimeout, Err: err}
		}
		return "", Wrap(err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		g.log.Warn(ctx, "prompt blocked by model",
			logger.String("model", req.Model),
			logger.String("block_reason", string(resp.PromptFeedback.BlockReason)),
		)
	}
	if len(resp.Candidates) == 0 {
		g.log.Warn(ctx, "model returned no candidates", logger.String("model", req.Model))
		return "", nil
	}
	if fr := resp.Candidates[0].FinishReason; fr != "" && fr != genai.FinishReasonStop {
		g.log.Warn(ctx, "model stopped early",
			logger.String("model", req.Model),
			logger.String("finish_reason", string(fr)),
		)
	}
	return resp.Text(), nil
}
