// Package openai adapts OpenAI's chat completions API to the llm.Port
// contract with a plain net/http client, no SDK dependency.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/orbtalk/orb/internal/adapters/llm"
	"github.com/orbtalk/orb/internal/resilience"
)

// Config is the OpenAI-specific tuning.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	return c
}

// Adapter is an llm.Port backed by one OpenAI chat completion call per turn.
type Adapter struct {
	cfg     Config
	client  *http.Client
	breaker *resilience.CircuitBreaker
}

// New constructs an OpenAI LLM adapter. breaker may be nil to call the API
// unconditionally.
func New(cfg Config, breaker *resilience.CircuitBreaker) *Adapter {
	return &Adapter{cfg: cfg.withDefaults(), client: &http.Client{Timeout: 30 * time.Second}, breaker: breaker}
}

func (a *Adapter) Name() string { return "openai" }

// Generate turns one addressed utterance and its recent captions into a
// single non-streaming chat completion.
func (a *Adapter) Generate(ctx context.Context, turn llm.Turn) (llm.Response, error) {
	var resp llm.Response
	call := func() error {
		var err error
		resp, err = a.generate(ctx, turn)
		return err
	}
	if a.breaker == nil {
		return resp, call()
	}
	return resp, a.breaker.Do(call)
}

func (a *Adapter) generate(ctx context.Context, turn llm.Turn) (llm.Response, error) {
	messages := make([]map[string]string, 0, len(turn.RecentHistory)+2)
	messages = append(messages, map[string]string{
		"role":    "system",
		"content": "You are " + turn.Speaker + ", one voice in a live three-way conversation. Reply in one or two short sentences.",
	})
	for _, line := range turn.RecentHistory {
		messages = append(messages, map[string]string{"role": "user", "content": line})
	}
	messages = append(messages, map[string]string{"role": "user", "content": turn.Text})

	body, err := json.Marshal(map[string]any{
		"model":    a.cfg.Model,
		"messages": messages,
	})
	if err != nil {
		return llm.Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return llm.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	httpResp, err := a.client.Do(req)
	if err != nil {
		return llm.Response{}, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusTooManyRequests {
		raw, _ := io.ReadAll(httpResp.Body)
		return llm.Response{}, resilience.RateLimitError{Provider: "openai", Message: string(raw)}
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		raw, _ := io.ReadAll(httpResp.Body)
		return llm.Response{}, errors.New(string(raw))
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&payload); err != nil {
		return llm.Response{}, err
	}
	if len(payload.Choices) == 0 {
		return llm.Response{}, errors.New("openai: no choices in response")
	}
	return llm.Response{Text: payload.Choices[0].Message.Content}, nil
}
