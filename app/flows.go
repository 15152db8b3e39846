package app

import (
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/aiobot/app/convo"
	"github.com/m3rciful/aiobot/app/download"
	"github.com/m3rciful/aiobot/app/vault"
	"github.com/m3rciful/aiobot/core/telegram/helpers"
	"github.com/m3rciful/aiobot/core/telegram/session"
)

// flowDispatcher routes continuation messages to the flow that owns the
// active session. It satisfies the text router's Conversations contract.
type flowDispatcher struct {
	sessions *session.Store
	vault    *vault.Handler
	download *download.Handler
}

// Active reports whether the user has a flow in progress.
func (d *flowDispatcher) Active(userID int64) bool {
	return d.sessions.Active(userID)
}

// ContinueText feeds one text message into the active flow. The cancel
// token aborts any flow at any step.
func (d *flowDispatcher) ContinueText(c tele.Context) error {
	input := c.Text()
	return d.dispatch(c, func(s *session.Session) error {
		if convo.IsCancel(input) && !d.finalizing(s) {
			if s.Flow == session.FlowDownload {
				d.download.Abort(helpers.BuildContext(c), s)
			}
			d.sessions.End(s.Owner, session.EndCancelled)
			return helpers.SendText(c, "Cancelled.")
		}
		switch s.Flow {
		case session.FlowDownload:
			return d.download.Continue(c, s, input)
		case session.FlowVaultCreate, session.FlowVaultUpdate, session.FlowVaultDelete:
			return d.vault.Continue(c, s, input)
		}
		return fmt.Errorf("app: unknown flow %q", s.Flow)
	})
}

// ContinueMedia feeds a photo or document into the active flow. Only
// the download flow accepts media.
func (d *flowDispatcher) ContinueMedia(c tele.Context) error {
	return d.dispatch(c, func(s *session.Session) error {
		if s.Flow != session.FlowDownload {
			return helpers.SendText(c, "Please answer the current question with text.")
		}
		return d.download.ContinueMedia(c, s)
	})
}

// finalizing reports whether the background pipeline already owns the
// session's outcome; cancelling past that point would double-report.
func (d *flowDispatcher) finalizing(s *session.Session) bool {
	return s.Flow == session.FlowDownload && s.Step == download.StepFinalizing
}

func (d *flowDispatcher) dispatch(c tele.Context, fn func(*session.Session) error) error {
	err := d.sessions.Do(c.Sender().ID, fn)
	switch {
	case errors.Is(err, session.ErrBusy):
		return helpers.SendText(c, "One moment, still handling your previous message.")
	case errors.Is(err, session.ErrNoActiveSession):
		// The session expired between routing and dispatch.
		return nil
	}
	return err
}
