package ctxassembly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Summarizer implements summarize(texts, target_tokens) -> summary (§4.1).
type Summarizer interface {
	Summarize(ctx context.Context, texts []string, targetTokens int) (string, error)
}

// Concatenation joins texts with newlines. It is the deterministic
// fallback used in tests and when no LLM summarizer is configured.
type Concatenation struct{}

func (Concatenation) Summarize(_ context.Context, texts []string, _ int) (string, error) {
	return strings.Join(texts, "\n"), nil
}

// LLMSummarizerConfig configures an OpenAI-compatible chat endpoint.
type LLMSummarizerConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
	// BackoffBase is the base of the exponential backoff (100ms*2^attempt
	// per §4.1); exposed for deterministic tests.
	BackoffBase time.Duration
}

// LLM summarizes by POSTing to an OpenAI-compatible chat completions
// endpoint with a "concise summarizer" system instruction (§4.1).
type LLM struct {
	cfg    LLMSummarizerConfig
	client *http.Client
	sleep  func(time.Duration)
}

// NewLLM constructs an LLM summarizer. Per §9's fallback-construction
// pattern, callers should try this first and fall back to Concatenation
// if construction fails (e.g. missing base URL).
func NewLLM(cfg LLMSummarizerConfig) (*LLM, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("ctxassembly: LLM summarizer requires a base URL")
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 100 * time.Millisecond
	}
	return &LLM{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		sleep:  time.Sleep,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const separator = "\n---\n"

func (l *LLM) Summarize(ctx context.Context, texts []string, targetTokens int) (string, error) {
	req := chatRequest{
		Model: l.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a concise summarizer."},
			{Role: "user", Content: fmt.Sprintf("Summarize the following in about %d tokens:\n%s", targetTokens, strings.Join(texts, separator))},
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	var lastErr error
	attempts := l.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := l.cfg.BackoffBase * time.Duration(1<<uint(attempt))
			l.sleep(backoff)
		}
		summary, err := l.doRequest(ctx, body)
		if err == nil {
			return summary, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("ctxassembly: llm summarizer failed after %d attempts: %w", attempts, lastErr)
}

func (l *LLM) doRequest(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(l.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if l.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+l.cfg.APIKey)
	}
	resp, err := l.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ctxassembly: summarizer upstream status %d", resp.StatusCode)
	}
	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("ctxassembly: summarizer upstream returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// FallbackSummarizer tries to build the LLM summarizer and falls back to
// Concatenation on failure, following §9's construction pattern: both
// satisfy the Summarizer interface so callers see no difference.
func FallbackSummarizer(cfg LLMSummarizerConfig) Summarizer {
	if llm, err := NewLLM(cfg); err == nil {
		return &resilientSummarizer{primary: llm, fallback: Concatenation{}}
	}
	return Concatenation{}
}

// resilientSummarizer tries the primary summarizer and falls back to the
// concatenation summarizer on persistent failure (§4.1: "the assembler
// then falls back to the concatenation summarizer if one is configured").
type resilientSummarizer struct {
	primary  Summarizer
	fallback Summarizer
}

func (r *resilientSummarizer) Summarize(ctx context.Context, texts []string, targetTokens int) (string, error) {
	summary, err := r.primary.Summarize(ctx, texts, targetTokens)
	if err == nil {
		return summary, nil
	}
	return r.fallback.Summarize(ctx, texts, targetTokens)
}
