// Package registry resolves the set of miners registered on a subnet.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/0xShonen/babelbit-subnet/pkg/schema"
)

// Client fetches the miner set from the registry service. It implements the
// runner's MinerRegistry interface.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Miners returns every registered miner for netuid, keyed by uid. An empty
// registry is a valid result, not an error.
func (c *Client) Miners(ctx context.Context, netuid int) (map[int]schema.Miner, error) {
	url := fmt.Sprintf("%s/miners?netuid=%d", strings.TrimRight(c.BaseURL, "/"), netuid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry: fetching miners: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("registry: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}

	var listed []schema.Miner
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		return nil, fmt.Errorf("registry: decoding miners: %w", err)
	}

	miners := make(map[int]schema.Miner, len(listed))
	for _, m := range listed {
		miners[m.UID] = m
	}
	return miners, nil
}
