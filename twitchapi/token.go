package twitchapi

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenURL is the Twitch OAuth token endpoint used for client credentials.
const TokenURL = "https://id.twitch.tv/oauth2/token"

// NewAppTokenSource returns a cached Twitch app access token source (client credentials grant).
// Tokens are refreshed shortly before expiry. hc, when non-nil, is used for token requests.
// NOTE: app tokens only cover Helix reads; they cannot be used for chat.
func NewAppTokenSource(ctx context.Context, clientID, clientSecret string, hc *http.Client) oauth2.TokenSource {
	if hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	}
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     TokenURL,
		// Twitch expects credentials in the form body, not basic auth.
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return cc.TokenSource(ctx)
}
