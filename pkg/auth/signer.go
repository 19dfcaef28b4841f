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
)

// RemoteSigner delegates signing to the signer sidecar. The sidecar holds the
// hotkey material; the runner never sees the seed.
type RemoteSigner struct {
	URL    string
	Client *http.Client
}

type signRequest struct {
	Payloads []string `json:"payloads"`
}

type signResponse struct {
	Hotkey     string   `json:"hotkey"`
	Signatures []string `json:"signatures"`
}

// Sign submits the message to the sidecar's /sign endpoint. Signatures come
// back as bare lowercase hex; a stray 0x prefix is stripped for callers that
// hex-decode the result.
func (s *RemoteSigner) Sign(ctx context.Context, message string) (string, string, error) {
	if s.URL == "" {
		return "", "", errors.New("auth: signer URL is not configured")
	}

	payload, err := json.Marshal(signRequest{Payloads: []string{message}})
	if err != nil {
		return "", "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(s.URL, "/")+"/sign", bytes.NewReader(payload))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("auth: signer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", "", fmt.Errorf("auth: signer HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}

	var out signResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("auth: decoding signer response: %w", err)
	}
	if out.Hotkey == "" || len(out.Signatures) != 1 {
		return "", "", errors.New("auth: signer returned no usable signature")
	}

	signature := strings.ToLower(strings.TrimPrefix(out.Signatures[0], "0x"))
	return out.Hotkey, signature, nil
}
