package sdk

import (
	"context"
	"sync"
)

// Injector performs the one-time script load, e.g. waiting for a host page to come up.
type Injector func(ctx context.Context) error

type scriptState int

const (
	scriptIdle scriptState = iota
	scriptLoading
	scriptLoaded
)

type scriptLoad struct {
	done chan struct{}
	err  error
}

// Script guards a one-time script load shared by every session in the process.
//
// Concurrent callers share a single in-flight load. A failed load returns to idle so a later call may retry.
type Script struct {
	inject Injector

	mu      sync.Mutex
	state   scriptState
	current *scriptLoad
}

// NewScript creates a loader around inject.
func NewScript(inject Injector) *Script {
	return &Script{inject: inject}
}

var (
	globalScript *Script
	globalOnce   sync.Once
)

// Global returns the process-wide loader. The injector given on the first call is kept.
func Global(inject Injector) *Script {
	globalOnce.Do(func() { globalScript = NewScript(inject) })
	return globalScript
}

// Loaded reports whether the script finished loading.
func (s *Script) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == scriptLoaded
}

// Load ensures the script is loaded, injecting it at most once per successful load.
func (s *Script) Load(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case scriptLoaded:
		s.mu.Unlock()
		return nil
	case scriptLoading:
		load := s.current
		s.mu.Unlock()
		select {
		case <-load.done:
			return load.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	load := &scriptLoad{done: make(chan struct{})}
	s.state = scriptLoading
	s.current = load
	s.mu.Unlock()

	var err error
	if s.inject != nil {
		err = s.inject(ctx)
	}

	s.mu.Lock()
	if err != nil {
		s.state = scriptIdle
	} else {
		s.state = scriptLoaded
	}
	load.err = err
	close(load.done)
	s.mu.Unlock()
	return err
}
