package session

import (
	"sync"
	"time"

	"github.com/m3rciful/aiobot/core/logger"
	"log/slog"
)

// ExpiredFunc is invoked after a session was removed by its timer. It runs on
// the timer goroutine and must not block on the store.
type ExpiredFunc func(owner int64, flow Flow)

// Options configures a Store.
type Options struct {
	// Timeouts maps a flow to its inactivity deadline. Flows without an
	// entry use Default.
	Timeouts map[Flow]time.Duration
	Default  time.Duration
	// OnExpired is called once per timed-out session.
	OnExpired ExpiredFunc
}

// Store maps owners to their single active session.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	opts     Options
}

// NewStore constructs an empty in-memory Store.
func NewStore(opts Options) *Store {
	if opts.Default <= 0 {
		opts.Default = 2 * time.Minute
	}
	return &Store{
		sessions: make(map[int64]*Session),
		opts:     opts,
	}
}

// Timeout reports the inactivity deadline for a flow.
func (st *Store) Timeout(flow Flow) time.Duration {
	if d, ok := st.opts.Timeouts[flow]; ok && d > 0 {
		return d
	}
	return st.opts.Default
}

// Begin creates a session for the owner and arms its timer. It fails with
// ErrAlreadyActive when the owner already has one.
func (st *Store) Begin(owner int64, flow Flow, step Step) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[owner]; ok {
		return nil, ErrAlreadyActive
	}

	now := time.Now()
	s := &Session{
		Owner:        owner,
		Flow:         flow,
		Step:         step,
		Fields:       make(map[string]string),
		CreatedAt:    now,
		LastActivity: now,
	}
	st.sessions[owner] = s
	st.armLocked(s)

	logger.Debug(logger.Background(), "session", "begin",
		slog.Int64("user_id", owner),
		slog.String("flow", string(flow)),
		slog.String("step", string(step)),
	)
	return s, nil
}

// Get returns the owner's active session or nil. Non-failing lookup.
func (st *Store) Get(owner int64) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[owner]
}

// Active reports whether the owner has a session.
func (st *Store) Active(owner int64) bool {
	return st.Get(owner) != nil
}

// Advance moves the session to a new step, merges collected fields, clears
// any pending confirmation, and re-arms the timer with the full timeout.
func (st *Store) Advance(owner int64, step Step, fields map[string]string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[owner]
	if !ok {
		return ErrNoActiveSession
	}
	s.Step = step
	for k, v := range fields {
		s.Fields[k] = v
	}
	s.Confirm = nil
	s.LastActivity = time.Now()
	st.armLocked(s)
	return nil
}

// Await moves the session to a confirmation step: it records the message the
// user must answer and re-arms the timer.
func (st *Store) Await(owner int64, step Step, confirm PendingConfirm) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[owner]
	if !ok {
		return ErrNoActiveSession
	}
	s.Step = step
	s.Confirm = &confirm
	s.LastActivity = time.Now()
	st.armLocked(s)
	return nil
}

// Suspend moves the session into a step that runs without an inactivity
// deadline: the timer is stopped instead of re-armed. The session stays
// registered until End or EndIf removes it.
func (st *Store) Suspend(owner int64, step Step) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[owner]
	if !ok {
		return ErrNoActiveSession
	}
	s.Step = step
	s.Confirm = nil
	s.LastActivity = time.Now()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return nil
}

// End removes the owner's session and stops its timer. Ending an absent
// session is a no-op; the returned flag reports whether a session was removed.
func (st *Store) End(owner int64, reason EndReason) bool {
	st.mu.Lock()
	s, ok := st.sessions[owner]
	if ok {
		delete(st.sessions, owner)
		s.gen++
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
	}
	st.mu.Unlock()

	if ok {
		logger.Debug(logger.Background(), "session", "end",
			slog.Int64("user_id", owner),
			slog.String("flow", string(s.Flow)),
			slog.String("step", string(s.Step)),
			slog.String("reason", string(reason)),
		)
	}
	return ok
}

// EndIf removes the session only while the given instance is still the one
// registered for its owner. A stale reference held across a long background
// step leaves a newer session untouched.
func (st *Store) EndIf(s *Session, reason EndReason) bool {
	st.mu.Lock()
	cur, ok := st.sessions[s.Owner]
	if !ok || cur != s {
		st.mu.Unlock()
		return false
	}
	delete(st.sessions, s.Owner)
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	st.mu.Unlock()

	logger.Debug(logger.Background(), "session", "end",
		slog.Int64("user_id", s.Owner),
		slog.String("flow", string(s.Flow)),
		slog.String("step", string(s.Step)),
		slog.String("reason", string(reason)),
	)
	return true
}

// Do runs fn exclusively for the owner's session. Different owners proceed in
// parallel; a second continuation for the same owner fails with ErrBusy while
// a prior one is still running. Absent sessions fail with ErrNoActiveSession.
func (st *Store) Do(owner int64, fn func(*Session) error) error {
	s := st.Get(owner)
	if s == nil {
		return ErrNoActiveSession
	}
	if !s.mu.TryLock() {
		return ErrBusy
	}
	defer s.mu.Unlock()

	// The session may have been ended or replaced while acquiring the lock.
	if st.Get(owner) != s {
		return ErrNoActiveSession
	}
	return fn(s)
}

// armLocked re-arms the session timer with the flow's full timeout.
// Caller must hold st.mu.
func (st *Store) armLocked(s *Session) {
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(st.Timeout(s.Flow), func() {
		st.expire(s, gen)
	})
}

// expire ends the session if, and only if, the same instance is still
// registered and no input re-armed the timer since this callback was set.
func (st *Store) expire(s *Session, gen uint64) {
	st.mu.Lock()
	cur, ok := st.sessions[s.Owner]
	if !ok || cur != s || s.gen != gen {
		st.mu.Unlock()
		return
	}
	delete(st.sessions, s.Owner)
	s.gen++
	s.timer = nil
	st.mu.Unlock()

	logger.Info(logger.Background(), "session", "expired",
		slog.Int64("user_id", s.Owner),
		slog.String("flow", string(s.Flow)),
		slog.String("step", string(s.Step)),
		slog.String("reason", string(EndTimedOut)),
	)
	if st.opts.OnExpired != nil {
		st.opts.OnExpired(s.Owner, s.Flow)
	}
}

// Len reports the number of active sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
