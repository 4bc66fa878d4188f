package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func newTestClient(serverURL string) *HelixClient {
	return &HelixClient{
		ClientID: "test-client-id",
		HTTPClient: &http.Client{
			Transport: &rewriteTransport{
				Transport: http.DefaultTransport,
				host:      serverURL,
			},
		},
	}
}

func TestHelixClient_GetLiveStreams(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/helix/streams" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Client-Id"); got != "test-client-id" {
			t.Errorf("Client-Id header = %q, want test-client-id", got)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("unexpected Authorization header %q without token source", got)
		}
		logins := r.URL.Query()["user_login"]
		if strings.Join(logins, ",") != "alice,bob" {
			t.Errorf("user_login = %v, want [alice bob]", logins)
		}
		if got := r.URL.Query().Get("first"); got != "100" {
			t.Errorf("first = %q, want 100", got)
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{
				"id":           "s-1",
				"user_login":   "alice",
				"user_name":    "Alice",
				"title":        "Live Now",
				"game_name":    "Just Chatting",
				"viewer_count": 42,
				"started_at":   "2024-10-15T14:30:00Z",
			}},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	streams, err := client.GetLiveStreams(context.Background(), []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("GetLiveStreams() error = %v", err)
	}
	if requests != 1 {
		t.Fatalf("expected 1 request, got %d", requests)
	}
	if len(streams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(streams))
	}
	s := streams[0]
	if s.Login() != "alice" || s.UserName != "Alice" || s.Title != "Live Now" || s.ViewerCount != 42 {
		t.Errorf("unexpected stream %+v", s)
	}
	if !s.StartedAt.Equal(time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC)) {
		t.Errorf("started_at = %v", s.StartedAt)
	}
}

func TestHelixClient_GetLiveStreamsMissingData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	streams, err := newTestClient(server.URL).GetLiveStreams(context.Background(), []string{"alice"})
	if err != nil {
		t.Fatalf("GetLiveStreams() error = %v", err)
	}
	if streams == nil || len(streams) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", streams)
	}
}

func TestHelixClient_GetLiveStreamsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer app-token" {
			t.Errorf("Authorization = %q, want Bearer app-token", got)
		}
		if got := r.Header.Get("Client-Id"); got != "test-client-id" {
			t.Errorf("Client-Id = %q, want test-client-id", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	client.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "app-token"})
	if _, err := client.GetLiveStreams(context.Background(), []string{"alice"}); err != nil {
		t.Fatalf("GetLiveStreams() error = %v", err)
	}
}

func TestHelixClient_GetLiveStreamsChunks(t *testing.T) {
	var chunkSizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins := r.URL.Query()["user_login"]
		chunkSizes = append(chunkSizes, len(logins))
		// Report the first login of every chunk as live.
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"user_login": logins[0]}},
		})
	}))
	defer server.Close()

	logins := make([]string, 250)
	for i := range logins {
		logins[i] = fmt.Sprintf("user%03d", i)
	}
	streams, err := newTestClient(server.URL).GetLiveStreams(context.Background(), logins)
	if err != nil {
		t.Fatalf("GetLiveStreams() error = %v", err)
	}
	if fmt.Sprint(chunkSizes) != "[100 100 50]" {
		t.Errorf("chunk sizes = %v, want [100 100 50]", chunkSizes)
	}
	want := []string{"user000", "user100", "user200"}
	if len(streams) != len(want) {
		t.Fatalf("expected %d streams, got %d", len(want), len(streams))
	}
	for i, s := range streams {
		if s.Login() != want[i] {
			t.Errorf("stream %d login = %s, want %s", i, s.Login(), want[i])
		}
	}
}

func TestHelixClient_NoRequestWithoutLogins(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL)
	}))
	defer server.Close()

	streams, err := newTestClient(server.URL).GetLiveStreams(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetLiveStreams() error = %v", err)
	}
	if len(streams) != 0 {
		t.Errorf("expected no streams, got %d", len(streams))
	}
}

func TestHelixClient_MissingClientID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	client.ClientID = ""
	_, err := client.GetLiveStreams(context.Background(), []string{"alice"})
	if !errors.Is(err, ErrMissingClientID) {
		t.Fatalf("error = %v, want ErrMissingClientID", err)
	}
}

func TestHelixClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		errContains string
		statusCode  int
		wantClass   ErrorClass
		wantUnauth  bool
	}{
		{
			name:        "unauthorized",
			statusCode:  http.StatusUnauthorized,
			body:        `{"error":"Unauthorized","status":401,"message":"OAuth token is missing"}`,
			errContains: "OAuth token is missing",
			wantClass:   ErrorClassAuth,
			wantUnauth:  true,
		},
		{
			name:        "forbidden",
			statusCode:  http.StatusForbidden,
			body:        `{"status":403}`,
			errContains: "403",
			wantClass:   ErrorClassAuth,
			wantUnauth:  true,
		},
		{
			name:        "server error",
			statusCode:  http.StatusBadGateway,
			body:        `bad gateway`,
			errContains: "502",
			wantClass:   ErrorClassStatus,
		},
		{
			name:        "malformed json",
			statusCode:  http.StatusOK,
			body:        `{"data": [`,
			errContains: "decode response",
			wantClass:   ErrorClassDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).GetLiveStreams(context.Background(), []string{"alice"})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error = %v, want it to contain %q", err, tt.errContains)
			}
			if got := errors.Is(err, ErrUnauthorized); got != tt.wantUnauth {
				t.Errorf("errors.Is(err, ErrUnauthorized) = %v, want %v", got, tt.wantUnauth)
			}
			if got := ClassifyError(err); got != tt.wantClass {
				t.Errorf("ClassifyError() = %s, want %s", got, tt.wantClass)
			}
		})
	}
}

func TestHelixClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url).GetLiveStreams(context.Background(), []string{"alice"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if got := ClassifyError(err); got != ErrorClassTransport {
		t.Errorf("ClassifyError() = %s, want transport", got)
	}
}

func TestHelixClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(server.URL)
	client.HTTPClient.Timeout = 50 * time.Millisecond
	_, err := client.GetLiveStreams(context.Background(), []string{"alice"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if got := ClassifyError(err); got != ErrorClassTransport {
		t.Errorf("ClassifyError() = %s, want transport", got)
	}
}

func TestHelixClient_BaseURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/helix/streams" {
			t.Errorf("path = %s, want /helix/streams", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	}))
	defer server.Close()

	client := &HelixClient{ClientID: "id", BaseURL: server.URL + "/"}
	if _, err := client.GetLiveStreams(context.Background(), []string{"alice"}); err != nil {
		t.Fatalf("GetLiveStreams() error = %v", err)
	}
}

// rewriteTransport rewrites all requests to use the test server
type rewriteTransport struct {
	Transport http.RoundTripper
	host      string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	if t.host != "" {
		host := t.host
		host = strings.TrimPrefix(host, "http://")
		host = strings.TrimPrefix(host, "https://")
		req.URL.Host = host
	}
	return t.Transport.RoundTrip(req)
}
