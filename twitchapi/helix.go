// Package twitchapi contains a minimal Twitch Helix client used to check which
// tracked streamers are currently live.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/onnwee/twitch-recorder/telemetry"
)

const (
	// DefaultBaseURL is the Helix API host.
	DefaultBaseURL = "https://api.twitch.tv"
	// MaxPageSize is the largest page Helix serves and the largest number of
	// user_login values accepted in one /helix/streams request.
	MaxPageSize = 100

	streamsPath = "/helix/streams"
	// maxErrorBody bounds how much of a failed response body is kept on StatusError.
	maxErrorBody = 4 << 10
)

// Stream is one entry of the /helix/streams data array.
type Stream struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	UserLogin   string    `json:"user_login"`
	UserName    string    `json:"user_name"`
	GameName    string    `json:"game_name"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	ViewerCount int       `json:"viewer_count"`
	StartedAt   time.Time `json:"started_at"`
	Language    string    `json:"language"`
}

// Login returns the identifier used to match the stream against tracked streamers.
// user_login is preferred; user_name is the display name and is only used when the
// login is missing from the payload.
func (s Stream) Login() string {
	if s.UserLogin != "" {
		return s.UserLogin
	}
	return s.UserName
}

// HelixClient issues authenticated GET requests against the Helix API.
// ClientID is sent as the Client-Id header on every call. When TokenSource is set,
// its access token is also sent as a bearer token.
type HelixClient struct {
	ClientID    string
	BaseURL     string
	HTTPClient  *http.Client
	TokenSource oauth2.TokenSource
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return strings.TrimSuffix(hc.BaseURL, "/")
	}
	return DefaultBaseURL
}

// GetLiveStreams returns the live streams among the given logins.
// Logins are sent in chunks of MaxPageSize, one request per chunk, so up to 100
// logins cost exactly one request. An empty login set makes no request.
func (hc *HelixClient) GetLiveStreams(ctx context.Context, logins []string) ([]Stream, error) {
	if len(logins) == 0 {
		return []Stream{}, nil
	}
	ctx, span := telemetry.StartSpan(ctx, "twitchapi", "helix.get_streams", attribute.Int("logins", len(logins)))
	defer span.End()

	out := make([]Stream, 0, len(logins))
	for start := 0; start < len(logins); start += MaxPageSize {
		end := min(start+MaxPageSize, len(logins))
		q := url.Values{}
		for _, login := range logins[start:end] {
			q.Add("user_login", login)
		}
		q.Set("first", strconv.Itoa(MaxPageSize))

		var body struct {
			Data []Stream `json:"data"`
		}
		if err := hc.Get(ctx, streamsPath, q, &body); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		out = append(out, body.Data...)
	}
	span.SetAttributes(attribute.Int("live", len(out)))
	telemetry.SetSpanSuccess(span)
	return out, nil
}

// Get performs a GET on path with the given query and decodes the JSON response into out.
func (hc *HelixClient) Get(ctx context.Context, path string, query url.Values, out any) error {
	if hc.ClientID == "" {
		return ErrMissingClientID
	}
	u := hc.baseURL() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build helix request: %w", err)
	}
	req.Header.Set("Client-Id", hc.ClientID)
	if hc.TokenSource != nil {
		tok, err := hc.TokenSource.Token()
		if err != nil {
			return &TransportError{Op: "app token", Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	}

	resp, err := hc.http().Do(req)
	if err != nil {
		return &TransportError{Op: "GET " + path, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DecodeError{Path: path, Err: err}
	}
	return nil
}
