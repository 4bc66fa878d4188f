package poller_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/onnwee/twitch-recorder/poller"
	"github.com/onnwee/twitch-recorder/testutil"
	"github.com/onnwee/twitch-recorder/twitchapi"
)

type collected struct {
	mu     sync.Mutex
	events []poller.Event
}

func (c *collected) OnLive(_ context.Context, ev poller.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func TestPollAgainstMockHelix(t *testing.T) {
	srv := testutil.NewMockTwitchServer(t)
	srv.MockStreamsResponse([]map[string]interface{}{
		{"id": "1", "user_name": "Alice", "title": "speedrun"},
	})

	client := &twitchapi.HelixClient{ClientID: "cid", BaseURL: srv.URL}
	reg := poller.NewRegistry(map[string]map[string]any{"alice": {}, "bob": {}})
	got := &collected{}
	p := poller.New(client, reg, poller.WithAction(got))

	if err := p.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	reqs := srv.Requests("/helix/streams")
	if len(reqs) != 1 {
		t.Fatalf("expected 1 helix request, got %d", len(reqs))
	}
	if logins := strings.Join(reqs[0]["user_login"], ","); logins != "alice,bob" {
		t.Errorf("user_login = %s, want alice,bob", logins)
	}
	if reqs[0].Get("first") != "100" {
		t.Errorf("first = %q, want 100", reqs[0].Get("first"))
	}
	if len(got.events) != 1 || got.events[0].Login != "alice" || got.events[0].Stream.Title != "speedrun" {
		t.Errorf("events = %+v", got.events)
	}
}

func TestPollAgainstMockHelixUnauthorized(t *testing.T) {
	srv := testutil.NewMockTwitchServer(t)
	srv.MockStreamsError(http.StatusUnauthorized, "Invalid OAuth token")

	client := &twitchapi.HelixClient{ClientID: "cid", BaseURL: srv.URL}
	reg := poller.NewRegistry(map[string]map[string]any{"alice": {}})
	p := poller.New(client, reg, poller.WithAction(&collected{}), poller.WithStopOnError(true))

	err := p.Run(context.Background())
	if !errors.Is(err, twitchapi.ErrUnauthorized) {
		t.Fatalf("Run() error = %v, want ErrUnauthorized", err)
	}
	if twitchapi.ClassifyError(err) != twitchapi.ErrorClassAuth {
		t.Errorf("class = %s, want auth", twitchapi.ClassifyError(err))
	}
}
