package chute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/0xShonen/babelbit-subnet/pkg/schema"
)

type anthropicCompleter struct {
	client     anthropic.Client
	model      string
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	maxTokens  int
}

func newAnthropicCompleter(miner schema.Miner, opts Options) *anthropicCompleter {
	clientOpts := []option.RequestOption{
		option.WithBaseURL(slugBaseURL(miner.Slug, opts.BaseDomain)),
	}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	return &anthropicCompleter{
		client:     anthropic.NewClient(clientOpts...),
		model:      miner.Model,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		maxTokens:  opts.MaxTokens,
	}
}

func (c *anthropicCompleter) Name() string {
	return c.model
}

func (c *anthropicCompleter) Complete(ctx context.Context, prefix string) (string, error) {
	timeout := c.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := c.maxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := c.backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	maxTokens := c.maxTokens
	if maxTokens <= 0 {
		maxTokens = 128
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prefix)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		message, err := c.client.Messages.New(attemptCtx, params)
		cancel()
		if err == nil {
			return extractText(message.Content), nil
		}

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", err
		}
		lastErr = err

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff * time.Duration(attempt+1)):
			}
		}
	}

	return "", fmt.Errorf("chute: completion failed after retries: %w", lastErr)
}

func extractText(blocks []anthropic.ContentBlockUnion) string {
	var builder strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}
	return builder.String()
}
