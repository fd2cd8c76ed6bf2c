package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/cozycabin/cozycabin/internal/config"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	maxRetries int
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

// NewOpenAI builds a provider from config.
func NewOpenAI(cfg config.AIConfig, logger *zap.Logger) *OpenAI {
	return &OpenAI{
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model     string          `json:"model"`
	Messages  []openaiMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends the conversation, retrying rate limits, server errors
// and transport failures with exponential backoff.
func (p *OpenAI) Complete(ctx context.Context, request Request) (*Response, error) {
	wire := p.buildRequest(request)
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("llm/openai: marshaling request: %w", err)
	}

	policy := p.newBackOff()
	policy.Reset()

	for attempt := 1; ; attempt++ {
		start := time.Now()
		resp, err := p.send(ctx, body)
		if err == nil {
			p.logger.Info("llm completion",
				zap.String("model", resp.Model),
				zap.Int("attempt", attempt),
				zap.Int("input_tokens", resp.InputTokens),
				zap.Int("output_tokens", resp.OutputTokens),
				zap.Duration("latency", time.Since(start)))
			return resp, nil
		}

		if !retryable(err) || attempt > p.maxRetries {
			p.logger.Warn("llm completion failed", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			return nil, err
		}
		p.logger.Warn("llm completion retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (p *OpenAI) buildRequest(request Request) openaiRequest {
	wire := openaiRequest{Model: request.Model, MaxTokens: request.MaxTokens}
	if wire.Model == "" {
		wire.Model = p.model
	}
	if wire.MaxTokens == 0 {
		wire.MaxTokens = p.maxTokens
	}
	if request.System != "" {
		wire.Messages = append(wire.Messages, openaiMessage{Role: "system", Content: request.System})
	}
	for _, msg := range request.Messages {
		wire.Messages = append(wire.Messages, openaiMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return wire
}

func (p *OpenAI) send(ctx context.Context, body []byte) (*Response, error) {
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm/openai: creating request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResponse, err := p.httpClient.Do(httpRequest)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return nil, readProviderError(httpResponse)
	}

	var wire openaiResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("llm/openai: decoding response: %w", err)
	}
	if len(wire.Choices) == 0 {
		return nil, errors.New("llm/openai: response has no choices")
	}

	return &Response{
		Model:        wire.Model,
		Content:      wire.Choices[0].Message.Content,
		FinishReason: wire.Choices[0].FinishReason,
		InputTokens:  wire.Usage.PromptTokens,
		OutputTokens: wire.Usage.CompletionTokens,
	}, nil
}

// readProviderError parses {"error":{"type","message"}} bodies, falling
// back to the raw text.
func readProviderError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: httpResponse.StatusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}
	return &ProviderError{StatusCode: httpResponse.StatusCode, Message: strings.TrimSpace(string(body))}
}

type transportError struct {
	err error
}

func (e *transportError) Error() string {
	return "llm/openai: sending request: " + e.err.Error()
}

func (e *transportError) Unwrap() error {
	return e.err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Retryable()
	}
	var netErr *transportError
	return errors.As(err, &netErr)
}
