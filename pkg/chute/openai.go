package chute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/0xShonen/babelbit-subnet/pkg/schema"
)

type openAICompleter struct {
	client     openai.Client
	model      string
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	maxTokens  int
}

func newOpenAICompleter(miner schema.Miner, opts Options) *openAICompleter {
	clientOpts := []option.RequestOption{
		option.WithBaseURL(slugBaseURL(miner.Slug, opts.BaseDomain)),
	}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	return &openAICompleter{
		client:     openai.NewClient(clientOpts...),
		model:      miner.Model,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		maxTokens:  opts.MaxTokens,
	}
}

func (c *openAICompleter) Name() string {
	return c.model
}

func (c *openAICompleter) Complete(ctx context.Context, prefix string) (string, error) {
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

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prefix),
		},
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(0),
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := c.client.Chat.Completions.New(attemptCtx, params)
		cancel()
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", errors.New("chute: empty completion")
			}
			return resp.Choices[0].Message.Content, nil
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
