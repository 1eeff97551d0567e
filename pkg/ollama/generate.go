package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DocentAI/docent-engine/pkg/resilience"
)

// FailureReason classifies why a model attempt failed.
type FailureReason string

const (
	FailureQuota       FailureReason = "quota"
	FailureUnsupported FailureReason = "unsupported"
	FailureOther       FailureReason = "other"
)

// ModelAttempt records one failed model in a fallback sequence.
type ModelAttempt struct {
	Model  string
	Reason FailureReason
	Err    error
}

// FallbackError aggregates every attempted model and its failure reason.
// It is the only hard generation failure surfaced to callers.
type FallbackError struct {
	Attempts []ModelAttempt
}

func (e *FallbackError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s (%s: %v)", a.Model, a.Reason, a.Err)
	}
	return "ollama generate: all models failed: " + strings.Join(parts, "; ")
}

// GenerateClient produces text completions, trying model identifiers in
// priority order and falling back on failure. Each model sits behind its own
// circuit breaker so a consistently failing model is skipped fast instead of
// burning its timeout on every request.
type GenerateClient struct {
	baseURL  string
	models   []string
	breakers map[string]*resilience.Breaker
	client   *http.Client
	logger   *slog.Logger
}

// NewGenerateClient creates a generation client. models are tried in order
// until one succeeds.
func NewGenerateClient(baseURL string, models []string, logger *slog.Logger) *GenerateClient {
	if logger == nil {
		logger = slog.Default()
	}
	breakers := make(map[string]*resilience.Breaker, len(models))
	for _, m := range models {
		breakers[m] = resilience.NewBreaker(resilience.DefaultBreakerOpts)
	}
	return &GenerateClient{
		baseURL:  baseURL,
		models:   models,
		breakers: breakers,
		client:   &http.Client{Timeout: 120 * time.Second},
		logger:   logger,
	}
}

type generateReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResp struct {
	Response string `json:"response"`
}

// Generate returns the completion for prompt and the identifier of the model
// that produced it. When every configured model fails, the returned error is
// a *FallbackError listing each attempt.
func (c *GenerateClient) Generate(ctx context.Context, prompt string) (string, string, error) {
	var attempts []ModelAttempt

	for _, model := range c.models {
		var text string
		err := c.breakers[model].Call(ctx, func(ctx context.Context) error {
			var genErr error
			text, genErr = c.generateWith(ctx, model, prompt)
			return genErr
		})
		if err == nil {
			return text, model, nil
		}
		reason := classifyFailure(err)
		attempts = append(attempts, ModelAttempt{Model: model, Reason: reason, Err: err})
		c.logger.Warn("generation model failed, falling back",
			"model", model, "reason", string(reason), "err", err)

		// A cancelled context will fail every remaining model too.
		if ctx.Err() != nil {
			break
		}
	}

	return "", "", &FallbackError{Attempts: attempts}
}

func (c *GenerateClient) generateWith(ctx context.Context, model, prompt string) (string, error) {
	body, _ := json.Marshal(generateReq{Model: model, Prompt: prompt})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &httpError{status: resp.StatusCode, body: string(msg)}
	}

	var result generateResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ollama generate decode: %w", err)
	}
	if strings.TrimSpace(result.Response) == "" {
		return "", fmt.Errorf("ollama generate: empty response")
	}
	return result.Response, nil
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("ollama generate: status %d: %s", e.status, e.body)
}

func classifyFailure(err error) FailureReason {
	var he *httpError
	if errors.As(err, &he) {
		switch he.status {
		case http.StatusTooManyRequests:
			return FailureQuota
		case http.StatusNotFound, http.StatusBadRequest:
			return FailureUnsupported
		}
	}
	return FailureOther
}
