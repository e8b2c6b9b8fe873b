package origin

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AuthOptions configures OAuth2 client-credentials auth against the origin.
type AuthOptions struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// OAuthTransport is an http.RoundTripper that injects a bearer token on
// every outbound request. Tokens are cached and auto-refreshed.
type OAuthTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

// NewOAuthTransport returns a transport that obtains tokens via the OAuth2
// client-credentials flow and injects an Authorization: Bearer header on
// each request. ctx outlives individual requests; it is used for token
// endpoint calls.
func NewOAuthTransport(ctx context.Context, base http.RoundTripper, opts *AuthOptions) *OAuthTransport {
	cc := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
		Scopes:       opts.Scopes,
	}
	return &OAuthTransport{base: base, source: cc.TokenSource(ctx)}
}

// newOAuthTransportFromSource creates an OAuthTransport with an explicit
// token source (used for testing).
func newOAuthTransportFromSource(base http.RoundTripper, ts oauth2.TokenSource) *OAuthTransport {
	return &OAuthTransport{base: base, source: oauth2.ReuseTokenSource(nil, ts)}
}

// RoundTrip obtains a token and injects it as a Bearer header.
func (t *OAuthTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	tok, err := t.source.Token()
	if err != nil {
		return nil, fmt.Errorf("origin: obtain token: %w", err)
	}
	r2 := r.Clone(r.Context())
	r2.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	return t.getBase().RoundTrip(r2)
}

func (t *OAuthTransport) getBase() http.RoundTripper {
	if t.base != nil {
		return t.base
	}
	return http.DefaultTransport
}
