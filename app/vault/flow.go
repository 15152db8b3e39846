package vault

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/aiobot/app/convo"
	"github.com/m3rciful/aiobot/core/logger"
	"github.com/m3rciful/aiobot/core/telegram/callbacks"
	"github.com/m3rciful/aiobot/core/telegram/format"
	"github.com/m3rciful/aiobot/core/telegram/helpers"
	"github.com/m3rciful/aiobot/core/telegram/session"
)

// Continue advances the active vault flow with one text input. It runs
// under the session store's per-owner lock.
func (h *Handler) Continue(c tele.Context, s *session.Session, input string) error {
	switch s.Flow {
	case session.FlowVaultCreate:
		return h.continueCreate(c, s, input)
	case session.FlowVaultUpdate:
		return h.continueUpdate(c, s, input)
	case session.FlowVaultDelete:
		return h.continueDelete(c, s, input)
	}
	return fmt.Errorf("vault: unexpected flow %q", s.Flow)
}

func (h *Handler) continueCreate(c tele.Context, s *session.Session, input string) error {
	owner := s.Owner
	switch s.Step {
	case StepService:
		service := strings.TrimSpace(input)
		if service == "" {
			return helpers.SendText(c, "Please send the service name.")
		}
		exists, err := h.Svc.Exists(h.ctx(c), owner, service)
		if err != nil {
			return err
		}
		if exists {
			h.Sessions.End(owner, session.EndCancelled)
			return helpers.SendMD(c, fmt.Sprintf(
				"You already store *%s*. Use `!update %s` to change it.",
				format.EscapeV1(service), service,
			))
		}
		if err := h.Sessions.Advance(owner, StepUsername, map[string]string{keyService: service}); err != nil {
			return err
		}
		return helpers.SendMD(c, "Send the username, or *skip* if there is none.")

	case StepUsername:
		fields := map[string]string{keyHasUser: "1", keyUsername: strings.TrimSpace(input)}
		if convo.IsSkip(input) {
			fields = map[string]string{keyHasUser: "0"}
		}
		if err := h.Sessions.Advance(owner, StepPassword, fields); err != nil {
			return err
		}
		return helpers.SendMD(c, "Send the password. Your message will be removed from the chat.")

	case StepPassword:
		password := input
		// The plaintext must not linger in chat history.
		if err := c.Delete(); err != nil {
			logger.Warn(h.ctx(c), "service.vault", "password_cleanup_failed",
				slog.String("err", err.Error()),
			)
		}
		service := s.Field(keyService)
		var username *string
		if s.Field(keyHasUser) == "1" {
			u := s.Field(keyUsername)
			username = &u
		}
		if err := h.Svc.CreateEntry(h.ctx(c), owner, service, username, password); err != nil {
			h.Sessions.End(owner, session.EndErrored)
			if errors.Is(err, ErrServiceExists) {
				return helpers.SendMD(c, fmt.Sprintf(
					"You already store *%s*. Use `!update %s` to change it.",
					format.EscapeV1(service), service,
				))
			}
			_ = helpers.SendText(c, "Storing the credential failed. Nothing was saved.")
			return err
		}
		h.Sessions.End(owner, session.EndCompleted)
		return helpers.SendMD(c, fmt.Sprintf(
			"✅ Stored *%s*. Retrieve it with `!get %s`.",
			format.EscapeV1(service), service,
		))
	}
	h.Sessions.End(owner, session.EndErrored)
	return fmt.Errorf("vault: unexpected create step %q", s.Step)
}

func (h *Handler) continueUpdate(c tele.Context, s *session.Session, input string) error {
	owner := s.Owner
	service := s.Field(keyService)
	switch s.Step {
	case StepField:
		choice := convo.Normalize(input)
		switch choice {
		case "service", "username", "password":
		default:
			return helpers.SendMD(c, "Reply with *service*, *username* or *password*.")
		}
		if err := h.Sessions.Advance(owner, StepNewValue, map[string]string{keyField: choice}); err != nil {
			return err
		}
		switch choice {
		case "service":
			return helpers.SendText(c, "Send the new service name.")
		case "username":
			return helpers.SendMD(c, "Send the new username, or *skip* to clear it.")
		default:
			return helpers.SendMD(c, "Send the new password. Your message will be removed from the chat.")
		}

	case StepNewValue:
		switch s.Field(keyField) {
		case "service":
			newName := strings.TrimSpace(input)
			if newName == "" {
				return helpers.SendText(c, "Please send the new service name.")
			}
			err := h.Svc.RenameService(h.ctx(c), owner, service, newName)
			if errors.Is(err, ErrServiceExists) {
				h.Sessions.End(owner, session.EndCancelled)
				return helpers.SendMD(c, fmt.Sprintf(
					"You already store *%s*. Nothing was changed.", format.EscapeV1(newName),
				))
			}
			if err != nil {
				h.Sessions.End(owner, session.EndErrored)
				return err
			}
			h.Sessions.End(owner, session.EndCompleted)
			return helpers.SendMD(c, fmt.Sprintf(
				"✅ Renamed *%s* to *%s*.", format.EscapeV1(service), format.EscapeV1(newName),
			))

		case "username":
			var username *string
			if !convo.IsSkip(input) {
				u := strings.TrimSpace(input)
				username = &u
			}
			if err := h.Svc.SetUsername(h.ctx(c), owner, service, username); err != nil {
				h.Sessions.End(owner, session.EndErrored)
				return err
			}
			h.Sessions.End(owner, session.EndCompleted)
			if username == nil {
				return helpers.SendMD(c, fmt.Sprintf("✅ Cleared the username of *%s*.", format.EscapeV1(service)))
			}
			return helpers.SendMD(c, fmt.Sprintf("✅ Updated the username of *%s*.", format.EscapeV1(service)))

		case "password":
			if err := c.Delete(); err != nil {
				logger.Warn(h.ctx(c), "service.vault", "password_cleanup_failed",
					slog.String("err", err.Error()),
				)
			}
			if err := h.Svc.SetPassword(h.ctx(c), owner, service, input); err != nil {
				h.Sessions.End(owner, session.EndErrored)
				return err
			}
			h.Sessions.End(owner, session.EndCompleted)
			return helpers.SendMD(c, fmt.Sprintf("✅ Updated the password of *%s*.", format.EscapeV1(service)))
		}
	}
	h.Sessions.End(owner, session.EndErrored)
	return fmt.Errorf("vault: unexpected update step %q", s.Step)
}

// Any reply that is not an explicit affirmative keeps the entry.
func (h *Handler) continueDelete(c tele.Context, s *session.Session, input string) error {
	return h.finishDelete(c, s.Owner, s.Field(keyService), convo.IsAffirmative(input))
}

// ConfirmDelete resolves the delete prompt from an inline button press.
// Presses on a stale or foreign message are ignored.
func (h *Handler) ConfirmDelete(c tele.Context) error {
	cb := c.Callback()
	if cb == nil || cb.Message == nil {
		return nil
	}
	owner := c.Sender().ID
	var service string
	valid := false
	err := h.Sessions.Do(owner, func(s *session.Session) error {
		if s.Flow != session.FlowVaultDelete || s.Confirm == nil {
			return nil
		}
		if s.Confirm.MessageID != cb.Message.ID || s.Confirm.ChatID != cb.Message.Chat.ID {
			return nil
		}
		service = s.Field(keyService)
		valid = true
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrNoActiveSession) || errors.Is(err, session.ErrBusy) {
			return nil
		}
		return err
	}
	if !valid {
		return nil
	}
	return h.finishDelete(c, owner, service, convo.Normalize(callbacks.CallbackPayload(c)) == "yes")
}

func (h *Handler) finishDelete(c tele.Context, owner int64, service string, approved bool) error {
	if !approved {
		h.Sessions.End(owner, session.EndCancelled)
		return helpers.SendMD(c, fmt.Sprintf("Kept *%s*.", format.EscapeV1(service)))
	}
	if err := h.Svc.DeleteEntry(h.ctx(c), owner, service); err != nil {
		h.Sessions.End(owner, session.EndErrored)
		if errors.Is(err, ErrNotFound) {
			return helpers.SendMD(c, fmt.Sprintf("No entry for *%s*.", format.EscapeV1(service)))
		}
		return err
	}
	h.Sessions.End(owner, session.EndCompleted)
	return helpers.SendMD(c, fmt.Sprintf("🗑 Deleted *%s*.", format.EscapeV1(service)))
}
