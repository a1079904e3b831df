package playback

// ticking reports whether the ticker goroutine is running.
func (s *Store) ticking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopTick != nil
}

// currentTick returns the running ticker's stop channel so tests can drive advance directly.
func (s *Store) currentTick() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopTick
}
