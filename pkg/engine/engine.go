// Package engine drives a prediction session against the utterance engine.
// The engine streams dialogue tokens one word at a time; after each word the
// client asks the miner's chute to complete the utterance and submits the
// prediction back. "EOF" closes an utterance (its ground truth becomes
// known), "EOF EOF" closes a dialogue.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/0xShonen/babelbit-subnet/pkg/auth"
	"github.com/0xShonen/babelbit-subnet/pkg/chute"
	"github.com/0xShonen/babelbit-subnet/pkg/schema"
)

const (
	tokenEOF         = "EOF"
	tokenEndDialogue = "EOF EOF"
)

// StepHook observes each completed utterance as it is finalized. A nil hook
// is valid and observes nothing.
type StepHook func(dialogueUID string, utterance schema.PredictedUtterance)

// Client runs prediction sessions for miners. It implements the runner's
// Predictor interface.
type Client struct {
	EngineURL  string
	HTTPClient *http.Client

	// Auth supplies bearer headers for engine calls. Optional; a nil Auth
	// sends unauthenticated requests (local engines).
	Auth *auth.Authenticator

	// Completers builds the per-miner chute client.
	Completers chute.Factory

	Logger *zap.Logger
}

type startRequest struct {
	Slug string `json:"slug,omitempty"`
}

type nextRequest struct {
	SessionID  string `json:"session_id"`
	Prediction string `json:"prediction"`
}

type stepResponse struct {
	SessionID      string  `json:"session_id,omitempty"`
	Done           bool    `json:"done"`
	Token          *string `json:"token"`
	Word           string  `json:"word,omitempty"`
	ChallengeUID   string  `json:"challenge_uid"`
	DialogueIndex  int     `json:"dialogue_index"`
	DialogueUID    *string `json:"dialogue_uid"`
	UtteranceIndex int     `json:"utterance_index"`
	TokenIndex     int     `json:"token_index"`
}

// Predict runs one full session for the miner and returns its dialogue runs.
// One record is produced per utterance, holding the miner's prediction for
// the last prefix seen before the utterance closed, with step numbers
// strictly increasing within each dialogue starting at 0.
func (c *Client) Predict(ctx context.Context, miner schema.Miner, hook StepHook) (schema.DialogueRuns, error) {
	if c.Completers == nil {
		return nil, errors.New("engine: completer factory is required")
	}
	completer, err := c.Completers(miner)
	if err != nil {
		return nil, fmt.Errorf("engine: building completer for %s: %w", miner.Slug, err)
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	resp, err := c.start(ctx, miner.Slug)
	if err != nil {
		return nil, err
	}
	sessionID := resp.SessionID
	if sessionID == "" {
		return nil, errors.New("engine: start response missing session_id")
	}

	runs := schema.DialogueRuns{}
	steps := map[string]int{}
	var (
		words   []string
		current *schema.PredictedUtterance
	)

	finalize := func(dialogueUID string) {
		if current == nil {
			return
		}
		gt := strings.TrimSpace(strings.Join(words, " ") + " " + tokenEOF)
		current.GroundTruth = &gt
		current.Done = true
		runs[dialogueUID] = append(runs[dialogueUID], *current)
		if hook != nil {
			hook(dialogueUID, *current)
		}
		current = nil
		words = nil
	}

	for !resp.Done {
		dialogueUID := dialogueKey(resp)
		prediction := ""

		switch token(resp) {
		case tokenEndDialogue:
			// Any open utterance was already closed by its own EOF.
			current = nil
			words = nil
		case tokenEOF:
			finalize(dialogueUID)
		case "":
			return nil, errors.New("engine: step response missing token")
		default:
			words = append(words, token(resp))
			prefix := strings.Join(words, " ")
			completion, err := completer.Complete(ctx, prefix)
			if err != nil {
				return nil, fmt.Errorf("engine: chute completion for %s: %w", miner.Slug, err)
			}
			prediction = completion
			if current == nil {
				step := steps[dialogueUID]
				steps[dialogueUID] = step + 1
				current = &schema.PredictedUtterance{
					Index: fmt.Sprintf("utterance-%d", resp.UtteranceIndex+1),
					Step:  step,
				}
			}
			current.Prefix = prefix
			current.Prediction = completion
		}

		resp, err = c.next(ctx, sessionID, prediction)
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("prediction session finished",
		zap.String("slug", miner.Slug),
		zap.Int("dialogues", len(runs)),
		zap.Int("utterances", runs.Utterances()))
	return runs, nil
}

func (c *Client) start(ctx context.Context, slug string) (stepResponse, error) {
	var out stepResponse
	if err := c.postJSON(ctx, "/start", startRequest{Slug: slug}, &out); err != nil {
		return stepResponse{}, fmt.Errorf("engine: starting session: %w", err)
	}
	return out, nil
}

func (c *Client) next(ctx context.Context, sessionID, prediction string) (stepResponse, error) {
	var out stepResponse
	req := nextRequest{SessionID: sessionID, Prediction: prediction}
	if err := c.postJSON(ctx, "/next", req, &out); err != nil {
		return stepResponse{}, fmt.Errorf("engine: advancing session: %w", err)
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := strings.TrimRight(c.EngineURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Auth != nil {
		headers, err := c.Auth.Headers(ctx)
		if err != nil {
			return err
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func token(resp stepResponse) string {
	if resp.Token == nil {
		return resp.Word
	}
	return *resp.Token
}

func dialogueKey(resp stepResponse) string {
	if resp.DialogueUID != nil && *resp.DialogueUID != "" {
		return *resp.DialogueUID
	}
	return fmt.Sprintf("dialogue-%d", resp.DialogueIndex)
}
