package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/playsync/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
)

// PlayerScopes are the scopes the Web Playback SDK and the player endpoints need.
var PlayerScopes = []string{
	"streaming",
	"user-read-email",
	"user-read-private",
	"user-read-playback-state",
	"user-modify-playback-state",
}

// NewSpotifyOAuthConfig builds the [oauth2.Config] for the given credentials.
func NewSpotifyOAuthConfig(credentials map[string]string) (*oauth2.Config, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := credentials["redirect_uri"]
	if redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       PlayerScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}, nil
}

// OAuthTokenProvider implements [TokenProvider] on top of an [oauth2.TokenSource].
//
// The source refreshes transparently; whenever the access token changes the refresh callback receives the new token.
type OAuthTokenProvider struct {
	mu             sync.Mutex
	config         *oauth2.Config
	source         oauth2.TokenSource
	current        *oauth2.Token
	onTokenRefresh func(*oauth2.Token)
}

// NewOAuthTokenProvider creates a provider seeded with token, which needs at least a refresh token.
func NewOAuthTokenProvider(config *oauth2.Config, token *oauth2.Token) (*OAuthTokenProvider, error) {
	if token == nil || (token.AccessToken == "" && token.RefreshToken == "") {
		return nil, fmt.Errorf("%w: seed token required", shared.ErrNoRefreshToken)
	}

	p := &OAuthTokenProvider{config: config, current: token}
	p.source = config.TokenSource(context.Background(), token)
	return p, nil
}

// SetTokenRefreshCallback sets the function invoked with every rotated token.
func (p *OAuthTokenProvider) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTokenRefresh = fn
}

// GetValidToken returns the current access token, refreshing it when expired.
func (p *OAuthTokenProvider) GetValidToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	source := p.source
	p.mu.Unlock()

	token, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	p.mu.Lock()
	rotated := p.current == nil || p.current.AccessToken != token.AccessToken
	p.current = token
	callback := p.onTokenRefresh
	p.mu.Unlock()

	if rotated && callback != nil {
		callback(token)
	}

	return token.AccessToken, nil
}

// Invalidate discards the cached access token so the next call refreshes, keeping the refresh token.
func (p *OAuthTokenProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil || p.current.RefreshToken == "" {
		return
	}
	stale := &oauth2.Token{RefreshToken: p.current.RefreshToken}
	p.source = p.config.TokenSource(context.Background(), stale)
}
