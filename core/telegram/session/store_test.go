package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestStore(timeout time.Duration, onExpired ExpiredFunc) *Store {
	return NewStore(Options{
		Timeouts:  map[Flow]time.Duration{FlowDownload: timeout, FlowVaultCreate: timeout},
		Default:   timeout,
		OnExpired: onExpired,
	})
}

func TestBeginRejectsSecondSession(t *testing.T) {
	st := newTestStore(time.Minute, nil)
	if _, err := st.Begin(1, FlowDownload, "awaiting_url"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := st.Begin(1, FlowVaultCreate, "awaiting_service"); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	// Other owners are independent.
	if _, err := st.Begin(2, FlowVaultCreate, "awaiting_service"); err != nil {
		t.Fatalf("begin other owner: %v", err)
	}
}

func TestAdvanceMergesFieldsAndClearsConfirm(t *testing.T) {
	st := newTestStore(time.Minute, nil)
	if _, err := st.Begin(1, FlowDownload, "awaiting_url"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := st.Await(1, "awaiting_cover_choice", PendingConfirm{MessageID: 10, ChatID: 20}); err != nil {
		t.Fatalf("await: %v", err)
	}
	if s := st.Get(1); s.Confirm == nil || s.Confirm.MessageID != 10 {
		t.Fatal("expected pending confirmation recorded")
	}
	if err := st.Advance(1, "awaiting_artist", map[string]string{"url": "https://soundcloud.com/a/b"}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	s := st.Get(1)
	if s.Step != "awaiting_artist" || s.Field("url") == "" {
		t.Fatalf("unexpected session: step=%s url=%q", s.Step, s.Field("url"))
	}
	if s.Confirm != nil {
		t.Fatal("advance must clear pending confirmation")
	}
}

func TestAdvanceWithoutSession(t *testing.T) {
	st := newTestStore(time.Minute, nil)
	if err := st.Advance(99, "x", nil); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	st := newTestStore(time.Minute, nil)
	if _, err := st.Begin(1, FlowVaultDelete, "awaiting_confirmation"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !st.End(1, EndCancelled) {
		t.Fatal("first end should remove the session")
	}
	if st.End(1, EndCancelled) {
		t.Fatal("second end must be a no-op")
	}
	if st.Get(1) != nil {
		t.Fatal("session still present after end")
	}
}

func TestTimeoutExpiresOnce(t *testing.T) {
	var fired atomic.Int32
	done := make(chan struct{})
	st := newTestStore(30*time.Millisecond, func(owner int64, flow Flow) {
		if fired.Add(1) == 1 {
			close(done)
		}
	})
	if _, err := st.Begin(1, FlowVaultCreate, "awaiting_username"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not expire")
	}
	if st.Get(1) != nil {
		t.Fatal("expired session still active")
	}
	// A late duplicate fire must not re-notify.
	time.Sleep(80 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Fatalf("expected exactly one expiry notification, got %d", n)
	}
}

func TestAdvanceResetsTimeout(t *testing.T) {
	var fired atomic.Int32
	st := newTestStore(60*time.Millisecond, func(int64, Flow) { fired.Add(1) })
	if _, err := st.Begin(1, FlowDownload, "awaiting_url"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	// Keep feeding input faster than the deadline: the session must survive.
	for i := 0; i < 5; i++ {
		time.Sleep(25 * time.Millisecond)
		if err := st.Advance(1, "awaiting_artist", nil); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	if fired.Load() != 0 {
		t.Fatal("session expired despite activity")
	}
	if st.Get(1) == nil {
		t.Fatal("session removed despite activity")
	}
	st.End(1, EndCompleted)
	time.Sleep(120 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("timer fired after explicit end")
	}
}

func TestEndedSessionTimerNeverFires(t *testing.T) {
	var fired atomic.Int32
	st := newTestStore(40*time.Millisecond, func(int64, Flow) { fired.Add(1) })
	if _, err := st.Begin(1, FlowVaultDelete, "awaiting_confirmation"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	st.End(1, EndCompleted)

	// A replacement session must not be expired by the old timer.
	if _, err := st.Begin(1, FlowDownload, "awaiting_url"); err != nil {
		t.Fatalf("begin replacement: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if err := st.Advance(1, "awaiting_artist", nil); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if fired.Load() != 0 {
		t.Fatalf("stale timer fired %d times", fired.Load())
	}
	st.End(1, EndCompleted)
}

func TestSuspendStopsTimer(t *testing.T) {
	var fired atomic.Int32
	st := newTestStore(30*time.Millisecond, func(int64, Flow) { fired.Add(1) })
	if _, err := st.Begin(1, FlowDownload, "awaiting_url"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := st.Suspend(1, "finalizing"); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	// The background step may far exceed the flow deadline.
	time.Sleep(120 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Fatalf("suspended session expired %d times", n)
	}
	s := st.Get(1)
	if s == nil || s.Step != "finalizing" {
		t.Fatal("suspended session must stay registered")
	}
	if !st.EndIf(s, EndCompleted) {
		t.Fatal("ending the live instance reported stale")
	}
	if st.Get(1) != nil {
		t.Fatal("session still present after end")
	}
}

func TestSuspendWithoutSession(t *testing.T) {
	st := newTestStore(time.Minute, nil)
	if err := st.Suspend(99, "finalizing"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestEndIfIgnoresStaleInstance(t *testing.T) {
	st := newTestStore(time.Minute, nil)
	old, err := st.Begin(1, FlowDownload, "awaiting_url")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	st.End(1, EndCancelled)

	// The owner starts over; the stale reference must not touch the new session.
	if _, err := st.Begin(1, FlowVaultCreate, "awaiting_service"); err != nil {
		t.Fatalf("begin replacement: %v", err)
	}
	if st.EndIf(old, EndCompleted) {
		t.Fatal("stale instance removed the replacement session")
	}
	if s := st.Get(1); s == nil || s.Flow != FlowVaultCreate {
		t.Fatal("replacement session gone after stale EndIf")
	}
	st.End(1, EndCompleted)
	if st.EndIf(old, EndCompleted) {
		t.Fatal("EndIf on an absent owner must be a no-op")
	}
}

func TestDoSerializesPerOwner(t *testing.T) {
	st := newTestStore(time.Minute, nil)
	if _, err := st.Begin(1, FlowDownload, "finalizing"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = st.Do(1, func(*Session) error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	// While the first continuation holds the session, a second is rejected.
	if err := st.Do(1, func(*Session) error { return nil }); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(release)
	wg.Wait()

	if err := st.Do(1, func(*Session) error { return nil }); err != nil {
		t.Fatalf("do after release: %v", err)
	}
	if err := st.Do(42, func(*Session) error { return nil }); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}
