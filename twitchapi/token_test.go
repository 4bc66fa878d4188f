package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/twitch-recorder/testutil"
)

func TestAppTokenSource_Cached(t *testing.T) {
	srv := testutil.NewMockTwitchServer(t)
	srv.MockOAuthTokenResponse("test-token-123", 3600)

	hc := &http.Client{Transport: &rewriteTransport{Transport: http.DefaultTransport, host: srv.URL}}
	ts := NewAppTokenSource(context.Background(), "test-client", "test-secret", hc)

	tok1, err := ts.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok1.AccessToken != "test-token-123" {
		t.Errorf("Token() = %s, want test-token-123", tok1.AccessToken)
	}
	tok2, err := ts.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok2.AccessToken != tok1.AccessToken {
		t.Errorf("cached token = %s, want %s", tok2.AccessToken, tok1.AccessToken)
	}

	forms := srv.Forms("/oauth2/token")
	if len(forms) != 1 {
		t.Fatalf("expected 1 token request (cached), got %d", len(forms))
	}
	if got := forms[0].Get("client_id"); got != "test-client" {
		t.Errorf("client_id = %q, want test-client", got)
	}
	if got := forms[0].Get("client_secret"); got != "test-secret" {
		t.Errorf("client_secret = %q, want test-secret", got)
	}
	if got := forms[0].Get("grant_type"); got != "client_credentials" {
		t.Errorf("grant_type = %q, want client_credentials", got)
	}
}

func TestAppTokenSource_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": 400, "message": "invalid client secret"})
	}))
	defer server.Close()

	hc := &http.Client{Transport: &rewriteTransport{Transport: http.DefaultTransport, host: server.URL}}
	ts := NewAppTokenSource(context.Background(), "test-client", "bad-secret", hc)
	if _, err := ts.Token(); err == nil {
		t.Fatal("expected error for rejected client secret")
	}
}
