// Spotify Web API implementation of [PlayerAPI]
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/shared"
	"golang.org/x/time/rate"
)

const spotifyBaseURL = "https://api.spotify.com/v1"

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Images      []SpotifyImage `json:"images"`
}

// IsPremium reports whether the account can use the Web Playback SDK.
func (u SpotifyUser) IsPremium() bool {
	return u.Product == "premium"
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a simplified Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	URI        string          `json:"uri"`
}

// Model converts the API track into a [models.Track].
func (t SpotifyTrack) Model() *models.Track {
	track := &models.Track{
		ID:         t.ID,
		URI:        t.URI,
		Name:       t.Name,
		Album:      t.Album.Name,
		AlbumURI:   t.Album.URI,
		DurationMS: t.DurationMS,
	}
	for _, a := range t.Artists {
		track.Artists = append(track.Artists, a.Name)
	}
	if len(t.Album.Images) > 0 {
		track.ImageURL = t.Album.Images[0].URL
	}
	return track
}

// SpotifyDevice represents a device visible to the account.
type SpotifyDevice struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	VolumePercent    *int   `json:"volume_percent"`
	IsActive         bool   `json:"is_active"`
	IsRestricted     bool   `json:"is_restricted"`
	IsPrivateSession bool   `json:"is_private_session"`
}

// Model converts the API device into a [models.Device].
func (d SpotifyDevice) Model() models.Device {
	return models.Device{
		ID:            d.ID,
		Name:          d.Name,
		Type:          d.Type,
		VolumePercent: d.VolumePercent,
		IsActive:      d.IsActive,
		IsRestricted:  d.IsRestricted,
	}
}

type spotifyContext struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
}

// SpotifyPlaybackState is the body of GET /me/player.
type SpotifyPlaybackState struct {
	Device       *SpotifyDevice  `json:"device"`
	IsPlaying    bool            `json:"is_playing"`
	ProgressMS   *int            `json:"progress_ms"`
	ShuffleState bool            `json:"shuffle_state"`
	RepeatState  string          `json:"repeat_state"`
	Context      *spotifyContext `json:"context"`
	Item         *SpotifyTrack   `json:"item"`
}

// Model converts the API body into a [PlaybackState].
func (s SpotifyPlaybackState) Model() *PlaybackState {
	state := &PlaybackState{
		IsPlaying: s.IsPlaying,
		Shuffle:   s.ShuffleState,
		Repeat:    models.RepeatOff,
	}
	if s.Device != nil {
		d := s.Device.Model()
		state.Device = &d
	}
	if s.ProgressMS != nil {
		state.ProgressMS = *s.ProgressMS
	}
	if mode, err := models.ParseRepeatMode(s.RepeatState); err == nil {
		state.Repeat = mode
	}
	if s.Context != nil {
		state.ContextURI = s.Context.URI
	}
	if s.Item != nil {
		state.Item = s.Item.Model()
	}
	return state
}

type devicesResponse struct {
	Devices []SpotifyDevice `json:"devices"`
}

type playBody struct {
	ContextURI string   `json:"context_uri,omitempty"`
	URIs       []string `json:"uris,omitempty"`
	PositionMS *int     `json:"position_ms,omitempty"`
}

type transferBody struct {
	DeviceIDs []string `json:"device_ids"`
	Play      bool     `json:"play"`
}

// SpotifyOpts configures a [SpotifyService]. Zero values fall back to the public API and the default client.
type SpotifyOpts struct {
	BaseURL           string
	HTTPClient        *http.Client
	RequestsPerSecond float64
}

// SpotifyService implements [PlayerAPI] against the Spotify Web API.
//
// Bearer tokens come from a [TokenProvider] on every request and all requests share one [rate.Limiter].
type SpotifyService struct {
	tokens     TokenProvider
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// NewSpotifyService creates a new Web API client using tokens for authorization.
func NewSpotifyService(tokens TokenProvider, opts SpotifyOpts) (*SpotifyService, error) {
	if tokens == nil {
		return nil, fmt.Errorf("%w: token provider is required", shared.ErrMissingCredentials)
	}

	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &SpotifyService{
		tokens:     tokens,
		httpClient: client,
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(limit, 1),
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// doRequest performs an authenticated request. deviceID is appended as the device_id query parameter when set.
//
// A 204 or empty body leaves result untouched and returns errNoContent when result was requested.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, query url.Values, deviceID string, body, result any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	token, err := s.tokens.GetValidToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}
	if token == "" {
		return shared.ErrNotAuthenticated
	}

	if deviceID != "" {
		if query == nil {
			query = url.Values{}
		}
		query.Set("device_id", deviceID)
	}

	apiURL := s.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, data, method+" "+endpoint, deviceID)
		if apiErr.StatusCode == http.StatusUnauthorized {
			if inv, ok := s.tokens.(interface{ Invalidate() }); ok {
				inv.Invalidate()
			}
		}
		return apiErr
	}

	if result == nil {
		return nil
	}
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return errNoContent
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var errNoContent = fmt.Errorf("no content")

// UserProfile fetches the current user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, "", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetPlaybackState implements [PlayerAPI].
func (s *SpotifyService) GetPlaybackState(ctx context.Context) (*PlaybackState, error) {
	var body SpotifyPlaybackState
	err := s.doRequest(ctx, http.MethodGet, "/me/player", nil, "", nil, &body)
	if err == errNoContent {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return body.Model(), nil
}

// ListDevices implements [PlayerAPI].
func (s *SpotifyService) ListDevices(ctx context.Context) ([]models.Device, error) {
	var body devicesResponse
	err := s.doRequest(ctx, http.MethodGet, "/me/player/devices", nil, "", nil, &body)
	if err == errNoContent {
		return []models.Device{}, nil
	}
	if err != nil {
		return nil, err
	}

	devices := make([]models.Device, 0, len(body.Devices))
	for _, d := range body.Devices {
		devices = append(devices, d.Model())
	}
	return devices, nil
}

// Play implements [PlayerAPI].
func (s *SpotifyService) Play(ctx context.Context, deviceID string, opts PlayOptions) error {
	var body any
	if !opts.Empty() {
		body = playBody{ContextURI: opts.ContextURI, URIs: opts.URIs, PositionMS: opts.PositionMS}
	}
	return s.doRequest(ctx, http.MethodPut, "/me/player/play", nil, deviceID, body, nil)
}

// Pause implements [PlayerAPI].
func (s *SpotifyService) Pause(ctx context.Context, deviceID string) error {
	return s.doRequest(ctx, http.MethodPut, "/me/player/pause", nil, deviceID, nil, nil)
}

// SkipNext implements [PlayerAPI].
func (s *SpotifyService) SkipNext(ctx context.Context, deviceID string) error {
	return s.doRequest(ctx, http.MethodPost, "/me/player/next", nil, deviceID, nil, nil)
}

// SkipPrevious implements [PlayerAPI].
func (s *SpotifyService) SkipPrevious(ctx context.Context, deviceID string) error {
	return s.doRequest(ctx, http.MethodPost, "/me/player/previous", nil, deviceID, nil, nil)
}

// Seek implements [PlayerAPI].
func (s *SpotifyService) Seek(ctx context.Context, positionMS int, deviceID string) error {
	if positionMS < 0 {
		return fmt.Errorf("%w: position must be non-negative", shared.ErrInvalidArgument)
	}
	q := url.Values{"position_ms": {strconv.Itoa(positionMS)}}
	return s.doRequest(ctx, http.MethodPut, "/me/player/seek", q, deviceID, nil, nil)
}

// SetVolume implements [PlayerAPI].
func (s *SpotifyService) SetVolume(ctx context.Context, percent int, deviceID string) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: volume must be between 0 and 100", shared.ErrInvalidArgument)
	}
	q := url.Values{"volume_percent": {strconv.Itoa(percent)}}
	return s.doRequest(ctx, http.MethodPut, "/me/player/volume", q, deviceID, nil, nil)
}

// SetShuffle implements [PlayerAPI].
func (s *SpotifyService) SetShuffle(ctx context.Context, shuffle bool, deviceID string) error {
	q := url.Values{"state": {strconv.FormatBool(shuffle)}}
	return s.doRequest(ctx, http.MethodPut, "/me/player/shuffle", q, deviceID, nil, nil)
}

// SetRepeat implements [PlayerAPI].
func (s *SpotifyService) SetRepeat(ctx context.Context, mode models.RepeatMode, deviceID string) error {
	q := url.Values{"state": {string(mode)}}
	return s.doRequest(ctx, http.MethodPut, "/me/player/repeat", q, deviceID, nil, nil)
}

// TransferPlayback implements [PlayerAPI].
func (s *SpotifyService) TransferPlayback(ctx context.Context, deviceID string, play bool) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device id", shared.ErrMissingArgument)
	}
	body := transferBody{DeviceIDs: []string{deviceID}, Play: play}
	return s.doRequest(ctx, http.MethodPut, "/me/player", nil, "", body, nil)
}
