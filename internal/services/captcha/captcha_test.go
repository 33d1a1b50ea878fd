// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package captcha_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tobalt/cityalerts/internal/services/captcha"
)

func newVerifier(t *testing.T, response string) *captcha.Verifier {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "secret-key", r.Form.Get("secret"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	v := captcha.NewVerifier("secret-key", 0.5, slog.Default())
	v.Endpoint = srv.URL
	return v
}

func TestVerify(t *testing.T) {
	v := newVerifier(t, `{"success": true, "score": 0.9, "action": "subscribe"}`)
	assert.NoError(t, v.Verify(context.Background(), "client-token", "subscribe"))
}

func TestVerify_EmptyToken(t *testing.T) {
	v := newVerifier(t, `{"success": true, "score": 0.9}`)
	assert.ErrorIs(t, v.Verify(context.Background(), "", "subscribe"), captcha.ErrRejected)
}

func TestVerify_Failure(t *testing.T) {
	v := newVerifier(t, `{"success": false, "error-codes": ["invalid-input-response"]}`)
	assert.ErrorIs(t, v.Verify(context.Background(), "client-token", "subscribe"), captcha.ErrRejected)
}

func TestVerify_LowScore(t *testing.T) {
	v := newVerifier(t, `{"success": true, "score": 0.2, "action": "subscribe"}`)
	assert.ErrorIs(t, v.Verify(context.Background(), "client-token", "subscribe"), captcha.ErrRejected)
}

func TestVerify_ActionMismatch(t *testing.T) {
	v := newVerifier(t, `{"success": true, "score": 0.9, "action": "login"}`)
	assert.ErrorIs(t, v.Verify(context.Background(), "client-token", "subscribe"), captcha.ErrRejected)
}

func TestVerify_TransportFailureSkipsCheck(t *testing.T) {
	// Point at a server that is already gone. An unreachable verifier
	// must not reject the request.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	v := captcha.NewVerifier("secret-key", 0.5, slog.Default())
	v.Endpoint = srv.URL
	assert.NoError(t, v.Verify(context.Background(), "client-token", "subscribe"))
}
