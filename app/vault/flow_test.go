package vault

import (
	"context"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/aiobot/core/telegram/session"
)

// stubContext implements the slice of tele.Context the flow handlers
// touch. Unimplemented methods panic through the embedded interface.
type stubContext struct {
	tele.Context
	userID int64
	store  map[string]any
	sent   []string
}

func newStubContext(userID int64) *stubContext {
	return &stubContext{userID: userID, store: make(map[string]any)}
}

func (c *stubContext) Sender() *tele.User  { return &tele.User{ID: c.userID} }
func (c *stubContext) Chat() *tele.Chat    { return &tele.Chat{ID: c.userID} }
func (c *stubContext) Update() tele.Update { return tele.Update{} }
func (c *stubContext) Get(k string) any    { return c.store[k] }
func (c *stubContext) Set(k string, v any) { c.store[k] = v }

func (c *stubContext) Send(what any, _ ...any) error {
	if s, ok := what.(string); ok {
		c.sent = append(c.sent, s)
	}
	return nil
}

func newDeleteFixture(t *testing.T, owner int64, service string) (*Handler, *Service) {
	t.Helper()
	svc, _ := newTestService(t)
	if err := svc.CreateEntry(context.Background(), owner, service, nil, "hunter2"); err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	h := &Handler{
		Svc: svc,
		Sessions: session.NewStore(session.Options{
			Default: time.Minute,
		}),
	}
	if _, err := h.Sessions.Begin(owner, session.FlowVaultDelete, StepConfirm); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := h.Sessions.Advance(owner, StepConfirm, map[string]string{keyService: service}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	return h, svc
}

func TestDeleteConfirmationDecision(t *testing.T) {
	cases := []struct {
		name    string
		reply   string
		deleted bool
	}{
		{"affirmative deletes", "yes", true},
		{"emoji affirmative deletes", "✅", true},
		{"negative keeps", "no", false},
		{"anything else keeps", "maybe later", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			const owner = int64(7)
			h, svc := newDeleteFixture(t, owner, "mail")
			c := newStubContext(owner)

			s := h.Sessions.Get(owner)
			if err := h.continueDelete(c, s, tc.reply); err != nil {
				t.Fatalf("continue: %v", err)
			}

			exists, err := svc.Exists(context.Background(), owner, "mail")
			if err != nil {
				t.Fatalf("exists: %v", err)
			}
			if exists == tc.deleted {
				t.Fatalf("reply %q: entry exists=%v, want deleted=%v", tc.reply, exists, tc.deleted)
			}
			if h.Sessions.Active(owner) {
				t.Fatal("session must end after the decision")
			}
			if len(c.sent) != 1 {
				t.Fatalf("expected exactly one reply, got %d", len(c.sent))
			}
		})
	}
}
