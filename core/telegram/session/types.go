package session

import (
	"errors"
	"sync"
	"time"
)

// Flow identifies a multi-step conversation kind.
type Flow string

const (
	// FlowDownload is the interactive audio download conversation.
	FlowDownload Flow = "download"
	// FlowVaultCreate collects a new credential entry.
	FlowVaultCreate Flow = "vault_create"
	// FlowVaultUpdate changes one field of an existing credential entry.
	FlowVaultUpdate Flow = "vault_update"
	// FlowVaultDelete confirms removal of a credential entry.
	FlowVaultDelete Flow = "vault_delete"
)

// Step identifies a state within a flow's transition table.
type Step string

// EndReason records why a session was removed.
type EndReason string

const (
	EndCompleted EndReason = "completed"
	EndCancelled EndReason = "cancelled"
	EndTimedOut  EndReason = "timed_out"
	EndErrored   EndReason = "errored"
)

var (
	// ErrAlreadyActive is returned by Begin when the owner has a session.
	ErrAlreadyActive = errors.New("session: already active")
	// ErrNoActiveSession is returned when an operation needs a session and
	// the owner has none.
	ErrNoActiveSession = errors.New("session: no active session")
	// ErrBusy is returned when a continuation arrives while a prior one for
	// the same owner is still being processed (e.g. finalizing).
	ErrBusy = errors.New("session: busy")
)

// PendingConfirm marks a session waiting on a button press instead of text.
// The recorded identities must match the incoming callback exactly.
type PendingConfirm struct {
	MessageID int
	ChatID    int64
}

// Session is the live state of one user's in-progress flow.
type Session struct {
	Owner        int64
	Flow         Flow
	Step         Step
	Fields       map[string]string
	CreatedAt    time.Time
	LastActivity time.Time
	Confirm      *PendingConfirm

	// mu serializes handler execution for this owner, see Store.Do.
	mu sync.Mutex
	// gen guards against a timer firing for a session that was already
	// advanced, replaced, or removed.
	gen   uint64
	timer *time.Timer
}

// Field returns a collected field value, or "" when absent.
func (s *Session) Field(name string) string {
	if s == nil || s.Fields == nil {
		return ""
	}
	return s.Fields[name]
}
