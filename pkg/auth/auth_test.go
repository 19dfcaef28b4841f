package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type staticSigner struct {
	hotkey    string
	signature string
	calls     atomic.Int64
}

func (s *staticSigner) Sign(_ context.Context, message string) (string, string, error) {
	s.calls.Add(1)
	return s.hotkey, s.signature, nil
}

func newAuthServer(t *testing.T, verifyCalls *atomic.Int64, expiresIn int64) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(challengeResponse{Challenge: "sign-me", Timestamp: 1234})
	})
	mux.HandleFunc("/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "hotkey-1", req.Hotkey)
		require.Equal(t, "abcd", req.Signature)
		require.Equal(t, "sign-me", req.Message)
		require.EqualValues(t, 1234, req.Timestamp)

		verifyCalls.Add(1)
		_ = json.NewEncoder(w).Encode(verifyResponse{AccessToken: "token-1", ExpiresIn: expiresIn})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHeadersAuthenticateAndCache(t *testing.T) {
	var verifyCalls atomic.Int64
	srv := newAuthServer(t, &verifyCalls, 3600)

	signer := &staticSigner{hotkey: "hotkey-1", signature: "abcd"}
	auth := NewAuthenticator(srv.URL, srv.Client(), signer)

	headers, err := auth.Headers(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer token-1", headers["Authorization"])
	require.Equal(t, "application/json", headers["Content-Type"])

	// A second call reuses the cached token.
	_, err = auth.Headers(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, verifyCalls.Load())
	require.EqualValues(t, 1, signer.calls.Load())
}

func TestAuthenticateRefreshesExpiredToken(t *testing.T) {
	var verifyCalls atomic.Int64
	// expires_in smaller than the refresh buffer, so the token is already
	// considered stale on the next call.
	srv := newAuthServer(t, &verifyCalls, 1)

	auth := NewAuthenticator(srv.URL, srv.Client(), &staticSigner{hotkey: "hotkey-1", signature: "abcd"})
	require.NoError(t, auth.Authenticate(context.Background()))
	require.NoError(t, auth.Authenticate(context.Background()))
	require.EqualValues(t, 2, verifyCalls.Load())
}

func TestAuthenticateRequiresSigner(t *testing.T) {
	auth := NewAuthenticator("http://localhost:0", nil, nil)
	err := auth.Authenticate(context.Background())
	require.ErrorContains(t, err, "signer")
}

func TestVerifyFailureSurfaces(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(challengeResponse{Challenge: "sign-me", Timestamp: 1})
	})
	mux.HandleFunc("/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad signature", http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	auth := NewAuthenticator(srv.URL, srv.Client(), &staticSigner{hotkey: "hotkey-1", signature: "abcd"})
	err := auth.Authenticate(context.Background())
	require.ErrorContains(t, err, "HTTP 401")
}

func TestRemoteSignerStripsHexPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sign", r.URL.Path)
		var req signRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"sign-me"}, req.Payloads)
		_ = json.NewEncoder(w).Encode(signResponse{
			Hotkey:     "hotkey-9",
			Signatures: []string{"0xDEADBEEF"},
		})
	}))
	defer srv.Close()

	signer := &RemoteSigner{URL: srv.URL, Client: srv.Client()}
	hotkey, signature, err := signer.Sign(context.Background(), "sign-me")
	require.NoError(t, err)
	require.Equal(t, "hotkey-9", hotkey)
	require.Equal(t, "deadbeef", signature)
}

func TestRemoteSignerRejectsEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(signResponse{})
	}))
	defer srv.Close()

	signer := &RemoteSigner{URL: srv.URL, Client: srv.Client()}
	_, _, err := signer.Sign(context.Background(), "sign-me")
	require.ErrorContains(t, err, "no usable signature")
}

func TestRemoteSignerRequiresURL(t *testing.T) {
	signer := &RemoteSigner{}
	_, _, err := signer.Sign(context.Background(), "sign-me")
	require.Error(t, err)
}
