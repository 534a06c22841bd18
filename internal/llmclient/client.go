// Package llmclient implements the LLMClient capability (spec component A):
// rate-limited, retried, timeout-extended text generation in front of a
// pluggable Backend. The wire-level provider SDK is deliberately not part
// of this module (spec §1 places "raw LLM transport" out of scope); Backend
// is the seam a transport layer wires a real provider into.
package llmclient

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	orcherrors "github.com/reinvent-insight/orchestrator/internal/errors"
	"github.com/reinvent-insight/orchestrator/internal/ratelimit"
)

// ThinkingLevel hints at how much reasoning effort a call should spend,
// trading latency for depth.
type ThinkingLevel string

const (
	ThinkingLow    ThinkingLevel = "low"
	ThinkingMedium ThinkingLevel = "medium"
	ThinkingHigh   ThinkingLevel = "high"
)

// AttachmentKind distinguishes an attachment whose bytes must be read from
// local disk from one that is already addressable by the provider as a URI.
type AttachmentKind string

const (
	AttachmentLocal  AttachmentKind = "local"
	AttachmentRemote AttachmentKind = "remote"
)

// Attachment is an optional file (image, PDF, video reference) sent
// alongside a prompt. For AttachmentLocal, Bytes is populated lazily from
// URI (a filesystem path) if not already set by the caller.
type Attachment struct {
	Kind  AttachmentKind
	URI   string
	Bytes []byte
	MIME  string
}

// Request is one generation call.
type Request struct {
	Prompt     string
	JSONMode   bool
	Thinking   ThinkingLevel
	Attachment *Attachment
}

// Backend is the minimal capability a concrete provider integration must
// offer: turn a Request into text, or fail with an *orcherrors.Structured
// of kind KindLLMTransient (retryable), KindLLMFatal, or KindInvalidInput
// (not retryable). Any other error is treated as KindLLMFatal.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Client is the capability the rest of the module consumes: RateLimiter
// gating, retries, and thinking-aware timeout extension wrapped around a
// Backend.
type Client struct {
	backend     Backend
	limiter     *ratelimit.Limiter
	provider    string
	maxRetries  int
	backoffBase time.Duration
	baseTimeout time.Duration
	logger      *slog.Logger
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithMaxRetries overrides the default retry budget for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBackoffBase overrides the base interval exponential backoff starts
// from between retries.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) { c.backoffBase = d }
}

// WithBaseTimeout overrides the default per-call timeout before thinking
// extension is applied.
func WithBaseTimeout(d time.Duration) Option {
	return func(c *Client) { c.baseTimeout = d }
}

// WithLogger attaches a structured logger; nil falls back to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a Client around backend, gated through limiter under key
// provider (e.g. "openai", "anthropic").
func New(backend Backend, limiter *ratelimit.Limiter, provider string, opts ...Option) *Client {
	c := &Client{
		backend:     backend,
		limiter:     limiter,
		provider:    provider,
		maxRetries:  2,
		backoffBase: 2 * time.Second,
		baseTimeout: 120 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// effectiveTimeout extends the base timeout for high-thinking calls: at
// least 1.5x the base, or 300s, whichever is larger (spec §4.A).
func (c *Client) effectiveTimeout(thinking ThinkingLevel) time.Duration {
	if thinking != ThinkingHigh {
		return c.baseTimeout
	}
	extended := time.Duration(float64(c.baseTimeout) * 1.5)
	if extended < 300*time.Second {
		extended = 300 * time.Second
	}
	return extended
}

// Generate gates, retries, and executes one call against the backend.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if req.Attachment != nil && req.Attachment.Kind == AttachmentLocal && req.Attachment.Bytes == nil {
		data, err := os.ReadFile(req.Attachment.URI)
		if err != nil {
			return "", orcherrors.Wrap(orcherrors.KindInvalidInput, "could not read local attachment", err)
		}
		req.Attachment.Bytes = data
	}

	timeout := c.effectiveTimeout(req.Thinking)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.limiter.Acquire(callCtx, c.provider); err != nil {
		return "", orcherrors.Wrap(orcherrors.KindTimeout, "rate limiter wait cancelled", err)
	}

	var result string
	attempt := 0
	operation := func() error {
		attempt++
		out, err := c.backend.Generate(callCtx, req)
		if err == nil {
			result = out
			return nil
		}
		kind := orcherrors.KindOf(err)
		if kind == orcherrors.KindUnknown {
			kind = orcherrors.KindLLMFatal
		}
		c.logger.Warn("llm call failed",
			slog.String("provider", c.provider),
			slog.Int("attempt", attempt),
			slog.String("kind", string(kind)),
			slog.String("err", err.Error()),
		)
		if kind.Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.backoffBase
	bounded := backoff.WithMaxRetries(policy, uint64(c.maxRetries))

	if err := backoff.Retry(operation, backoff.WithContext(bounded, callCtx)); err != nil {
		if callCtx.Err() != nil {
			return "", orcherrors.Wrap(orcherrors.KindTimeout, "llm call timed out", err)
		}
		var s *orcherrors.Structured
		if orcherrors.As(err, &s) {
			return "", s
		}
		return "", orcherrors.Wrap(orcherrors.KindLLMFatal, "llm call failed", err)
	}
	return result, nil
}
