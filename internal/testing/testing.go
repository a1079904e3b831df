// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/sdk"
	"github.com/desertthunder/playsync/internal/services"
)

// Call is one recorded invocation on a fake.
type Call struct {
	Method   string
	DeviceID string
	Args     []any
}

// MockPlayerAPI is a test double for [services.PlayerAPI].
//
// Results come from the exported fields; Errors maps a method name to the error it returns. DeviceLists, when set,
// is consumed one entry per ListDevices call and the last entry repeats.
type MockPlayerAPI struct {
	mu sync.Mutex

	State       *services.PlaybackState
	StateErr    error
	Devices     []models.Device
	DeviceLists [][]models.Device
	Errors      map[string]error

	calls []Call
}

func (m *MockPlayerAPI) record(method, deviceID string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, DeviceID: deviceID, Args: args})
	if m.Errors != nil {
		return m.Errors[method]
	}
	return nil
}

// SetError makes method fail with err (nil clears it).
func (m *MockPlayerAPI) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Errors == nil {
		m.Errors = map[string]error{}
	}
	m.Errors[method] = err
}

// Calls returns every recorded call.
func (m *MockPlayerAPI) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo returns the recorded calls to method.
func (m *MockPlayerAPI) CallsTo(method string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (m *MockPlayerAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MockPlayerAPI) GetPlaybackState(ctx context.Context) (*services.PlaybackState, error) {
	if err := m.record("GetPlaybackState", ""); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.State, m.StateErr
}

func (m *MockPlayerAPI) ListDevices(ctx context.Context) ([]models.Device, error) {
	if err := m.record("ListDevices", ""); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.DeviceLists) > 0 {
		next := m.DeviceLists[0]
		if len(m.DeviceLists) > 1 {
			m.DeviceLists = m.DeviceLists[1:]
		}
		return append([]models.Device(nil), next...), nil
	}
	return append([]models.Device(nil), m.Devices...), nil
}

func (m *MockPlayerAPI) Play(ctx context.Context, deviceID string, opts services.PlayOptions) error {
	return m.record("Play", deviceID, opts)
}

func (m *MockPlayerAPI) Pause(ctx context.Context, deviceID string) error {
	return m.record("Pause", deviceID)
}

func (m *MockPlayerAPI) SkipNext(ctx context.Context, deviceID string) error {
	return m.record("SkipNext", deviceID)
}

func (m *MockPlayerAPI) SkipPrevious(ctx context.Context, deviceID string) error {
	return m.record("SkipPrevious", deviceID)
}

func (m *MockPlayerAPI) Seek(ctx context.Context, positionMS int, deviceID string) error {
	return m.record("Seek", deviceID, positionMS)
}

func (m *MockPlayerAPI) SetVolume(ctx context.Context, percent int, deviceID string) error {
	return m.record("SetVolume", deviceID, percent)
}

func (m *MockPlayerAPI) SetShuffle(ctx context.Context, shuffle bool, deviceID string) error {
	return m.record("SetShuffle", deviceID, shuffle)
}

func (m *MockPlayerAPI) SetRepeat(ctx context.Context, mode models.RepeatMode, deviceID string) error {
	return m.record("SetRepeat", deviceID, mode)
}

func (m *MockPlayerAPI) TransferPlayback(ctx context.Context, deviceID string, play bool) error {
	return m.record("TransferPlayback", deviceID, play)
}

var _ services.PlayerAPI = (*MockPlayerAPI)(nil)

// MockPlayer is a test double for [sdk.Player]. Emit delivers events to the registered listeners.
type MockPlayer struct {
	mu sync.Mutex

	ConnectOK    bool
	ConnectErr   error
	State        *sdk.State
	Errors       map[string]error
	OnConnect    func(p *MockPlayer)
	Disconnected int

	nextID    int
	listeners map[sdk.Event]map[int]sdk.Listener
	calls     []Call
}

// NewMockPlayer returns a player that connects successfully.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{ConnectOK: true, listeners: map[sdk.Event]map[int]sdk.Listener{}}
}

func (p *MockPlayer) record(method string, args ...any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Method: method, Args: args})
	if p.Errors != nil {
		return p.Errors[method]
	}
	return nil
}

// SetError makes method fail with err.
func (p *MockPlayer) SetError(method string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Errors == nil {
		p.Errors = map[string]error{}
	}
	p.Errors[method] = err
}

// CallsTo returns the recorded calls to method.
func (p *MockPlayer) CallsTo(method string) []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Call
	for _, c := range p.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// ListenerCount returns the number of live listeners across all events.
func (p *MockPlayer) ListenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, fns := range p.listeners {
		n += len(fns)
	}
	return n
}

// Listeners returns the listeners currently registered for event. Callers may keep and invoke them after removal.
func (p *MockPlayer) Listeners(event sdk.Event) []sdk.Listener {
	p.mu.Lock()
	defer p.mu.Unlock()
	fns := make([]sdk.Listener, 0, len(p.listeners[event]))
	for _, fn := range p.listeners[event] {
		fns = append(fns, fn)
	}
	return fns
}

// Emit delivers payload to every listener of event.
func (p *MockPlayer) Emit(event sdk.Event, payload sdk.Payload) {
	p.mu.Lock()
	fns := make([]sdk.Listener, 0, len(p.listeners[event]))
	for _, fn := range p.listeners[event] {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}

func (p *MockPlayer) Connect(ctx context.Context) (bool, error) {
	_ = p.record("Connect")
	if p.OnConnect != nil {
		p.OnConnect(p)
	}
	return p.ConnectOK, p.ConnectErr
}

func (p *MockPlayer) Disconnect() {
	_ = p.record("Disconnect")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Disconnected++
}

func (p *MockPlayer) AddListener(event sdk.Event, fn sdk.Listener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listeners == nil {
		p.listeners = map[sdk.Event]map[int]sdk.Listener{}
	}
	if p.listeners[event] == nil {
		p.listeners[event] = map[int]sdk.Listener{}
	}
	id := p.nextID
	p.nextID++
	p.listeners[event][id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners[event], id)
	}
}

func (p *MockPlayer) TogglePlay(ctx context.Context) error { return p.record("TogglePlay") }

func (p *MockPlayer) Seek(ctx context.Context, positionMS int) error {
	return p.record("Seek", positionMS)
}

func (p *MockPlayer) PreviousTrack(ctx context.Context) error { return p.record("PreviousTrack") }
func (p *MockPlayer) NextTrack(ctx context.Context) error     { return p.record("NextTrack") }

func (p *MockPlayer) SetVolume(ctx context.Context, volume float64) error {
	return p.record("SetVolume", volume)
}

func (p *MockPlayer) GetCurrentState(ctx context.Context) (*sdk.State, error) {
	if err := p.record("GetCurrentState"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.State, nil
}

var _ sdk.Player = (*MockPlayer)(nil)

// MockFactory returns an [sdk.Factory] that hands out player and records the options it was given.
func MockFactory(player *MockPlayer, got *sdk.Options) sdk.Factory {
	return func(opts sdk.Options) (sdk.Player, error) {
		if got != nil {
			*got = opts
		}
		return player, nil
	}
}

// StaticToken is a [services.TokenProvider] returning a fixed token.
type StaticToken string

func (s StaticToken) GetValidToken(ctx context.Context) (string, error) { return string(s), nil }

// NoWait is a playback.WaitFunc that returns immediately unless ctx is done.
func NoWait(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// PlayingState builds an SDK state with a current track.
func PlayingState(contextURI string, positionMS, durationMS int, paused bool) *sdk.State {
	return &sdk.State{
		Context:  sdk.Context{URI: contextURI},
		Paused:   paused,
		Position: positionMS,
		Duration: durationMS,
		TrackWindow: sdk.TrackWindow{
			CurrentTrack: &sdk.Track{
				ID:         "track1",
				URI:        "spotify:track:track1",
				Name:       "Test Track",
				DurationMS: durationMS,
				Artists:    []sdk.Artist{{Name: "Test Artist"}},
				Album:      sdk.Album{Name: "Test Album"},
			},
		},
	}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
