// Package auth handles validator authentication against the utterance
// engine: fetch a challenge, sign it with the validator hotkey, exchange the
// signature for a bearer token.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// expiryBuffer is subtracted from the reported token lifetime so a token is
// refreshed before the engine rejects it.
const expiryBuffer = 5 * time.Minute

const defaultExpiresIn = 86400 * time.Second

// Signer signs one message with the validator hotkey and returns the hotkey
// address alongside the bare lowercase hex signature (no 0x prefix).
type Signer interface {
	Sign(ctx context.Context, message string) (hotkey string, signature string, err error)
}

// Authenticator obtains and caches a bearer token for the utterance engine.
type Authenticator struct {
	BaseURL string
	Client  *http.Client
	Signer  Signer

	mu     sync.Mutex
	token  string
	expiry time.Time
}

type challengeResponse struct {
	Challenge string `json:"challenge"`
	Timestamp int64  `json:"timestamp"`
}

type verifyRequest struct {
	Hotkey    string `json:"hotkey"`
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

type verifyResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ValidatorUID int    `json:"validator_uid"`
}

// NewAuthenticator builds an authenticator for the engine at baseURL.
func NewAuthenticator(baseURL string, client *http.Client, signer Signer) *Authenticator {
	return &Authenticator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  client,
		Signer:  signer,
	}
}

// Headers returns the Authorization and Content-Type headers for engine
// requests, authenticating first if the cached token is missing or expired.
func (a *Authenticator) Headers(ctx context.Context) (map[string]string, error) {
	token, err := a.tokenValue(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  "application/json",
	}, nil
}

// Authenticate runs the full challenge/verify flow if the cached token is no
// longer valid.
func (a *Authenticator) Authenticate(ctx context.Context) error {
	_, err := a.tokenValue(ctx)
	return err
}

func (a *Authenticator) tokenValue(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" && time.Now().Before(a.expiry) {
		return a.token, nil
	}
	if a.Signer == nil {
		return "", errors.New("auth: signer is required")
	}

	challenge, err := a.fetchChallenge(ctx)
	if err != nil {
		return "", err
	}
	hotkey, signature, err := a.Signer.Sign(ctx, challenge.Challenge)
	if err != nil {
		return "", fmt.Errorf("auth: signing challenge: %w", err)
	}

	verified, err := a.verify(ctx, verifyRequest{
		Hotkey:    hotkey,
		Signature: signature,
		Timestamp: challenge.Timestamp,
		Message:   challenge.Challenge,
	})
	if err != nil {
		return "", err
	}

	expiresIn := defaultExpiresIn
	if verified.ExpiresIn > 0 {
		expiresIn = time.Duration(verified.ExpiresIn) * time.Second
	}
	a.token = verified.AccessToken
	a.expiry = time.Now().Add(expiresIn - expiryBuffer)
	return a.token, nil
}

func (a *Authenticator) fetchChallenge(ctx context.Context) (challengeResponse, error) {
	var out challengeResponse
	if err := a.postJSON(ctx, a.BaseURL+"/auth", nil, &out); err != nil {
		return challengeResponse{}, fmt.Errorf("auth: fetching challenge: %w", err)
	}
	return out, nil
}

func (a *Authenticator) verify(ctx context.Context, req verifyRequest) (verifyResponse, error) {
	var out verifyResponse
	if err := a.postJSON(ctx, a.BaseURL+"/auth/verify", req, &out); err != nil {
		return verifyResponse{}, fmt.Errorf("auth: verifying signature: %w", err)
	}
	if out.AccessToken == "" {
		return verifyResponse{}, errors.New("auth: verify response missing access_token")
	}
	return out, nil
}

func (a *Authenticator) postJSON(ctx context.Context, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := a.Client
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
