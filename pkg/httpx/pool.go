// Package httpx owns the shared HTTP client pool used by every network
// collaborator in a run. The pool is acquired once at run start and released
// exactly once by the coordinator, whatever path the run exits through.
package httpx

import (
	"net"
	"net/http"
	"sync"
	"time"
)

const defaultTimeout = 120 * time.Second

// Pool is a lazily initialized shared http.Client. Safe for concurrent use.
type Pool struct {
	Timeout time.Duration

	mu     sync.Mutex
	client *http.Client
	closed bool
}

// NewPool returns a pool with the given per-request timeout. A zero timeout
// falls back to the package default.
func NewPool(timeout time.Duration) *Pool {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Pool{Timeout: timeout}
}

// Client returns the shared client, creating it on first use. After Close the
// pool re-initializes, so a stale reference never panics.
func (p *Pool) Client() *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil || p.closed {
		p.client = &http.Client{
			Timeout: p.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
		p.closed = false
	}
	return p.client
}

// Close releases idle connections held by the pool. It is safe to call more
// than once; only the first call after use does any work.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil || p.closed {
		return
	}
	p.client.CloseIdleConnections()
	p.closed = true
}
