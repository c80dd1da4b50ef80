// Package rowfiltertest provides an in-memory rowfilter.Session for tests.
package rowfiltertest

import (
	"context"
	"fmt"
	"sync"

	"tenantgate/internal/core/rowfilter"
)

// Session records every call made against it.
type Session struct {
	mu       sync.Mutex
	settings rowfilter.Settings
	events   []string
	released bool
	// discarded is set when Release happens with non-neutral settings.
	discarded bool

	// Injected failures.
	ConfigureErr error
	ClearErr     error
	ReadOnlyErr  error

	// Reader is handed to ReadOnly callbacks. May be nil.
	Reader rowfilter.Reader

	// SettingsInQuery captures the settings visible while ReadOnly ran.
	SettingsInQuery rowfilter.Settings
}

var _ rowfilter.Session = (*Session)(nil)

func (s *Session) record(ev string) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *Session) Configure(ctx context.Context, tenantID string, isAdmin bool) error {
	s.record(fmt.Sprintf("configure:%s:%t", tenantID, isAdmin))
	if s.ConfigureErr != nil {
		return s.ConfigureErr
	}
	s.mu.Lock()
	s.settings = rowfilter.Settings{TenantID: tenantID, IsAdmin: isAdmin}
	s.mu.Unlock()
	return nil
}

func (s *Session) Clear(ctx context.Context) error {
	s.record("clear")
	if s.ClearErr != nil {
		return s.ClearErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = rowfilter.Neutral()
	s.mu.Unlock()
	return nil
}

func (s *Session) Current(ctx context.Context) (rowfilter.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

func (s *Session) ReadOnly(ctx context.Context, fn func(ctx context.Context, r rowfilter.Reader) error) error {
	s.record("query")
	if s.ReadOnlyErr != nil {
		return s.ReadOnlyErr
	}
	s.mu.Lock()
	s.SettingsInQuery = s.settings
	s.mu.Unlock()
	return fn(ctx, s.Reader)
}

func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.discarded = !s.settings.IsNeutral()
	s.events = append(s.events, "release")
}

// Events returns the recorded call sequence.
func (s *Session) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

// Settings returns the current variable values.
func (s *Session) Settings() rowfilter.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Released reports whether Release was called.
func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Discarded reports whether the session was released while still configured.
func (s *Session) Discarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discarded
}

// Opener hands out Sessions built by New (or blank ones).
type Opener struct {
	mu       sync.Mutex
	sessions []*Session

	// New builds each session. Defaults to an empty Session.
	New func() *Session
	// OpenErr fails every Open.
	OpenErr error
}

var _ rowfilter.Opener = (*Opener)(nil)

func (o *Opener) Open(ctx context.Context) (rowfilter.Session, error) {
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	s := &Session{}
	if o.New != nil {
		s = o.New()
	}
	o.mu.Lock()
	o.sessions = append(o.sessions, s)
	o.mu.Unlock()
	return s, nil
}

// Sessions returns every session opened so far.
func (o *Opener) Sessions() []*Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Session, len(o.sessions))
	copy(out, o.sessions)
	return out
}
