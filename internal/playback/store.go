package playback

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/sdk"
	"github.com/desertthunder/playsync/internal/shared"
)

// HistoryRecorder receives each new current track. Failures are logged and ignored.
//
// Entries are handed to the recorder from a single background worker in the order the tracks were seen.
type HistoryRecorder interface {
	RecordPlay(ctx context.Context, played *models.PlayedTrack) error
}

// StoreOpts configures a [Store].
type StoreOpts struct {
	TickInterval time.Duration // defaults to 1s
	History      HistoryRecorder
	HistoryQueue int // pending entries before new ones are dropped, defaults to 64
	Notifier     *Notifier
	Logger       *log.Logger
}

// Store holds the canonical now-playing snapshot.
//
// SDK events replace it wholesale and bump the version. Between events a ticker extrapolates the position while
// the session is active and playing. Non-SDK updates go through [Store.ApplyOptimistic] and are dropped when an
// SDK event arrived after they were dispatched.
type Store struct {
	mu           sync.Mutex
	snap         models.PlaybackSnapshot
	version      uint64
	deviceID     string
	lastTrackKey string

	tickInterval time.Duration
	stopTick     chan struct{}
	closed       bool

	history  HistoryRecorder
	records  chan *models.PlayedTrack
	recorded chan struct{}
	notifier *Notifier
	logger   *log.Logger
}

// NewStore creates an inactive store.
func NewStore(opts StoreOpts) *Store {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Notifier == nil {
		opts.Notifier = NewNotifier()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.HistoryQueue <= 0 {
		opts.HistoryQueue = 64
	}
	s := &Store{
		snap:         models.PlaybackSnapshot{Repeat: models.RepeatOff},
		tickInterval: opts.TickInterval,
		history:      opts.History,
		notifier:     opts.Notifier,
		logger:       shared.WithLogger(opts.Logger, "component", "store"),
	}
	if s.history != nil {
		s.records = make(chan *models.PlayedTrack, opts.HistoryQueue)
		s.recorded = make(chan struct{})
		go s.recordLoop()
	}
	return s
}

// ApplySDKState replaces the snapshot with an SDK state. nil means nothing is loaded in this session.
// A closed store ignores it.
func (s *Store) ApplySDKState(state *sdk.State) {
	snap := state.Snapshot()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.snap = snap
	s.version++
	if played := s.trackChangeLocked(); played != nil {
		s.enqueueLocked(played)
	}
	s.syncTickerLocked()
	s.mu.Unlock()

	s.notifier.Notify()
}

// trackChangeLocked returns a history entry when the current track differs from the last one seen.
func (s *Store) trackChangeLocked() *models.PlayedTrack {
	if !s.snap.IsActive || s.snap.CurrentTrack == nil {
		return nil
	}

	key := s.snap.CurrentTrack.URI
	if key == "" {
		key = s.snap.CurrentTrack.ID
	}
	if key == "" || key == s.lastTrackKey {
		return nil
	}
	s.lastTrackKey = key
	return models.NewPlayedTrack(*s.snap.CurrentTrack, s.snap.ContextURI, s.deviceID, time.Now())
}

func (s *Store) enqueueLocked(played *models.PlayedTrack) {
	if s.records == nil {
		return
	}
	select {
	case s.records <- played:
	default:
		s.logger.Warn("play history queue full, dropping entry", "track", played.Track().Name)
	}
}

func (s *Store) recordLoop() {
	defer close(s.recorded)
	for played := range s.records {
		s.record(played)
	}
}

func (s *Store) record(played *models.PlayedTrack) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.history.RecordPlay(ctx, played); err != nil {
		s.logger.Warn("failed to record play history", "track", played.Track().Name, "error", err)
	}
}

// ApplyExplicitSeek overrides the interpolated position until the next SDK event.
func (s *Store) ApplyExplicitSeek(positionMS int) {
	s.mu.Lock()
	s.snap.PositionMS = positionMS
	s.snap.Normalize()
	s.mu.Unlock()

	s.notifier.Notify()
}

// Version is the count of SDK events applied so far.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// ApplyOptimistic runs fn on the snapshot only if no SDK event arrived since version was read.
func (s *Store) ApplyOptimistic(version uint64, fn func(*models.PlaybackSnapshot)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if version != s.version {
		s.mu.Unlock()
		s.logger.Debug("dropping stale update", "version", version, "current", s.Version())
		return false
	}
	fn(&s.snap)
	s.snap.Normalize()
	s.syncTickerLocked()
	s.mu.Unlock()

	s.notifier.Notify()
	return true
}

// Snapshot returns a deep copy of the current snapshot.
func (s *Store) Snapshot() models.PlaybackSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Subscribe returns a change channel and its cancel function.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	return s.notifier.Subscribe()
}

// SetDeviceID sets the device recorded with play history.
func (s *Store) SetDeviceID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceID = id
}

// Reset returns to the inactive snapshot and stops the ticker.
func (s *Store) Reset() {
	s.mu.Lock()
	s.snap = models.PlaybackSnapshot{Repeat: models.RepeatOff}
	s.version++
	s.lastTrackKey = ""
	s.deviceID = ""
	s.syncTickerLocked()
	s.mu.Unlock()

	s.notifier.Notify()
}

// Close stops the ticker and waits for pending history entries to be written. Later SDK and optimistic
// updates are ignored. It is safe to call more than once.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTickerLocked()
	if s.records != nil {
		close(s.records)
	}
	s.mu.Unlock()

	if s.recorded != nil {
		<-s.recorded
	}
}

func (s *Store) shouldTickLocked() bool {
	return s.snap.IsPlaying && s.snap.IsActive
}

func (s *Store) syncTickerLocked() {
	switch should := s.shouldTickLocked(); {
	case should && s.stopTick == nil:
		s.stopTick = make(chan struct{})
		go s.tick(s.stopTick)
	case !should:
		s.stopTickerLocked()
	}
}

func (s *Store) stopTickerLocked() {
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
}

func (s *Store) tick(stop <-chan struct{}) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.advance(stop, s.tickInterval)
		case <-stop:
			return
		}
	}
}

// advance moves the position forward by step, clamped to the duration. A tick from a stopped ticker is ignored.
func (s *Store) advance(stop <-chan struct{}, step time.Duration) bool {
	s.mu.Lock()
	if stop != s.stopTick || !s.shouldTickLocked() {
		s.mu.Unlock()
		return false
	}
	s.snap.PositionMS += int(step / time.Millisecond)
	s.snap.Normalize()
	s.mu.Unlock()

	s.notifier.Notify()
	return true
}
