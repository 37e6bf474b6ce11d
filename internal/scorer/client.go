// Package scorer asks an OpenAI compatible chat API to grade answers.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
)

var baseURLs = map[string]string{
	ProviderGroq:   "https://api.groq.com/openai/v1",
	ProviderOpenAI: "https://api.openai.com/v1",
}

type Client struct {
	apiKey string
	model  string
	base   string
	http   *http.Client
}

func NewClient(provider, apiKey, model string, timeout time.Duration) (*Client, error) {
	base, ok := baseURLs[provider]
	if !ok {
		return nil, fmt.Errorf("unknown scorer provider %q", provider)
	}
	return &Client{
		apiKey: apiKey,
		model:  model,
		base:   base,
		http:   &http.Client{Timeout: timeout},
	}, nil
}

// WithBaseURL points the client at a different API root.
func (c *Client) WithBaseURL(base string) *Client {
	c.base = base
	return c
}

type ChatRequest struct {
	Model          string              `json:"model"`
	Messages       []map[string]string `json:"messages"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	Temperature    float32             `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat     `json:"response_format,omitempty"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type ChatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	r.Header.Set("Authorization", "Bearer "+c.apiKey)
	r.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(r)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("chat api error (status %d): %s", resp.StatusCode, truncate(string(body), 512))
	}

	var ch ChatResponse
	if err := json.Unmarshal(body, &ch); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if ch.Error != nil {
		return "", fmt.Errorf("api error: %s", ch.Error.Message)
	}
	if len(ch.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return ch.Choices[0].Message.Content, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
