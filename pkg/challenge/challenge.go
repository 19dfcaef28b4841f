// Package challenge resolves the identifier of the active evaluation
// challenge from the utterance engine.
package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Resolver queries the engine's current-challenge endpoint. It implements
// the runner's ChallengeResolver interface.
type Resolver struct {
	EngineURL  string
	HTTPClient *http.Client
}

type currentChallengeResponse struct {
	ChallengeUID string `json:"challenge_uid"`
}

// CurrentChallengeUID returns the uid of the challenge currently being
// served. A run cannot attribute miner work without it, so any failure here
// is fatal to the run.
func (r *Resolver) CurrentChallengeUID(ctx context.Context) (string, error) {
	url := strings.TrimRight(r.EngineURL, "/") + "/challenge/current"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("challenge: fetching current challenge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("challenge: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}

	var out currentChallengeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("challenge: decoding response: %w", err)
	}
	if out.ChallengeUID == "" {
		return "", errors.New("challenge: engine returned empty challenge_uid")
	}
	return out.ChallengeUID, nil
}
