// Package chute talks to a miner's serving endpoint. A chute exposes either
// an OpenAI-compatible or an Anthropic-compatible completion API; both
// backends ask the model to complete the current utterance from its prefix.
package chute

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/0xShonen/babelbit-subnet/pkg/schema"
)

const systemPrompt = "You are predicting the rest of an utterance in a dialogue. " +
	"Given the words spoken so far, reply with your best guess of the complete utterance. " +
	"Reply with the utterance only."

// Completer produces the predicted full utterance for a prefix.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prefix string) (string, error)
}

// Factory builds a Completer for one miner. The engine client calls it once
// per prediction run.
type Factory func(miner schema.Miner) (Completer, error)

// Options configures chute completion calls. The zero value gets sane
// defaults from each backend.
type Options struct {
	// APIKey authorizes requests to the chute. Optional for open chutes.
	APIKey string

	// BaseDomain is the domain slugs are routed under, e.g. "chutes.ai".
	BaseDomain string

	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	MaxTokens  int
}

// NewFactory returns a Factory for the given API flavor: "openai" (default)
// or "anthropic".
func NewFactory(flavor string, opts Options) (Factory, error) {
	switch flavor {
	case "", "openai":
		return func(miner schema.Miner) (Completer, error) {
			return newOpenAICompleter(miner, opts), nil
		}, nil
	case "anthropic":
		return func(miner schema.Miner) (Completer, error) {
			return newAnthropicCompleter(miner, opts), nil
		}, nil
	default:
		return nil, fmt.Errorf("chute: unknown API flavor: %s", flavor)
	}
}

// slugBaseURL routes a miner slug to its serving endpoint.
func slugBaseURL(slug, baseDomain string) string {
	if baseDomain == "" {
		baseDomain = "chutes.ai"
	}
	return fmt.Sprintf("https://%s.%s/v1", slug, strings.TrimRight(baseDomain, "/"))
}
