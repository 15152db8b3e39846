package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/aiobot/core/logger"
	"github.com/m3rciful/aiobot/core/telegram/format"
	"github.com/m3rciful/aiobot/core/telegram/helpers"
	"github.com/m3rciful/aiobot/core/telegram/keyboard"
	"github.com/m3rciful/aiobot/core/telegram/session"
	"github.com/m3rciful/aiobot/vaultcrypto"
)

// Flow steps of the vault conversations.
const (
	StepService  session.Step = "awaiting_service"
	StepUsername session.Step = "awaiting_username"
	StepPassword session.Step = "awaiting_password"
	StepField    session.Step = "awaiting_field_choice"
	StepNewValue session.Step = "awaiting_new_value"
	StepConfirm  session.Step = "awaiting_confirmation"
)

// Session field keys used while a flow is in progress.
const (
	keyService  = "service"
	keyUsername = "username"
	keyHasUser  = "has_username"
	keyField    = "field"
)

// CallbackDeleteConfirm is the inline-button key of the delete prompt.
const CallbackDeleteConfirm = "vault_del"

// Handler owns the vault commands and their conversational flows.
type Handler struct {
	Svc      *Service
	Sessions *session.Store
	// RevealTTL is how long a revealed credential message stays in chat
	// before it is deleted. Zero disables auto-deletion.
	RevealTTL time.Duration
}

const helpText = `🔐 *Credential vault*

` + "`!new <service>`" + ` - store a new credential
` + "`!get <service>`" + ` - reveal a stored credential
` + "`!list`" + ` - list stored services
` + "`!update <service>`" + ` - change one field of an entry
` + "`!delete <service>`" + ` - remove an entry
` + "`!help`" + ` - show this message

Type *cancel* at any step to abort an operation.`

// CmdHelp prints the vault command reference.
func (h *Handler) CmdHelp(c tele.Context, _ string) error {
	return helpers.SendMD(c, helpText)
}

// CmdNew starts the entry creation flow.
func (h *Handler) CmdNew(c tele.Context, args string) error {
	owner := c.Sender().ID
	service := strings.TrimSpace(args)
	if service != "" {
		exists, err := h.Svc.Exists(h.ctx(c), owner, service)
		if err != nil {
			return err
		}
		if exists {
			return helpers.SendMD(c, fmt.Sprintf(
				"You already store *%s*. Use `!update %s` to change it.",
				format.EscapeV1(service), service,
			))
		}
	}

	step := StepService
	if service != "" {
		step = StepUsername
	}
	if _, err := h.Sessions.Begin(owner, session.FlowVaultCreate, step); err != nil {
		if errors.Is(err, session.ErrAlreadyActive) {
			return helpers.SendText(c, "Finish or cancel your current operation first.")
		}
		return err
	}
	if service != "" {
		if err := h.Sessions.Advance(owner, StepUsername, map[string]string{keyService: service}); err != nil {
			return err
		}
		return helpers.SendMD(c, fmt.Sprintf(
			"Storing credentials for *%s*.\nSend the username, or *skip* if there is none.",
			format.EscapeV1(service),
		))
	}
	return helpers.SendText(c, "Which service is this credential for?")
}

// CmdGet reveals one stored credential and schedules its deletion.
func (h *Handler) CmdGet(c tele.Context, args string) error {
	service := strings.TrimSpace(args)
	if service == "" {
		return helpers.SendMD(c, "Usage: `!get <service>`")
	}
	entry, err := h.Svc.Reveal(h.ctx(c), c.Sender().ID, service)
	if errors.Is(err, ErrNotFound) {
		return helpers.SendMD(c, fmt.Sprintf("No entry for *%s*.", format.EscapeV1(service)))
	}
	if err != nil {
		var ce *vaultcrypto.Error
		if errors.As(err, &ce) {
			_ = helpers.SendText(c, "This entry cannot be decrypted. It may have been stored with a different key.")
		}
		return err
	}

	username := "(none)"
	if entry.HasUsername {
		username = format.Code(entry.Username)
	}
	text := fmt.Sprintf(
		"🔐 *%s*\nUsername: %s\nPassword: %s\n\n_This message self-destructs shortly._",
		format.EscapeV1(entry.ServiceName), username, format.Code(entry.Password),
	)
	// Sent synchronously so the message handle is available for cleanup.
	msg, err := c.Bot().Send(c.Recipient(), text, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
	if err != nil {
		return err
	}
	h.scheduleDeletion(c, msg)
	return nil
}

// CmdList lists the services the user stores.
func (h *Handler) CmdList(c tele.Context, _ string) error {
	entries, err := h.Svc.ListEntries(h.ctx(c), c.Sender().ID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return helpers.SendMD(c, "Your vault is empty. Start with `!new <service>`.")
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔐 *Stored services* (%d)\n", len(entries)))
	for _, e := range entries {
		b.WriteString("\n• " + format.EscapeV1(e.ServiceName))
		if e.HasUsername {
			b.WriteString(" - " + format.Code(e.Username))
		}
	}
	return helpers.SendMD(c, b.String())
}

// CmdUpdate starts the field update flow for an existing entry.
func (h *Handler) CmdUpdate(c tele.Context, args string) error {
	owner := c.Sender().ID
	service := strings.TrimSpace(args)
	if service == "" {
		return helpers.SendMD(c, "Usage: `!update <service>`")
	}
	exists, err := h.Svc.Exists(h.ctx(c), owner, service)
	if err != nil {
		return err
	}
	if !exists {
		return helpers.SendMD(c, fmt.Sprintf("No entry for *%s*.", format.EscapeV1(service)))
	}

	if _, err := h.Sessions.Begin(owner, session.FlowVaultUpdate, StepField); err != nil {
		if errors.Is(err, session.ErrAlreadyActive) {
			return helpers.SendText(c, "Finish or cancel your current operation first.")
		}
		return err
	}
	if err := h.Sessions.Advance(owner, StepField, map[string]string{keyService: service}); err != nil {
		return err
	}
	return helpers.SendMD(c, fmt.Sprintf(
		"Updating *%s*. What do you want to change?\nReply with *service*, *username* or *password*.",
		format.EscapeV1(service),
	))
}

// CmdDelete starts the delete confirmation flow.
func (h *Handler) CmdDelete(c tele.Context, args string) error {
	owner := c.Sender().ID
	service := strings.TrimSpace(args)
	if service == "" {
		return helpers.SendMD(c, "Usage: `!delete <service>`")
	}
	exists, err := h.Svc.Exists(h.ctx(c), owner, service)
	if err != nil {
		return err
	}
	if !exists {
		return helpers.SendMD(c, fmt.Sprintf("No entry for *%s*.", format.EscapeV1(service)))
	}

	if _, err := h.Sessions.Begin(owner, session.FlowVaultDelete, StepConfirm); err != nil {
		if errors.Is(err, session.ErrAlreadyActive) {
			return helpers.SendText(c, "Finish or cancel your current operation first.")
		}
		return err
	}
	if err := h.Sessions.Advance(owner, StepConfirm, map[string]string{keyService: service}); err != nil {
		return err
	}

	markup := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "✅ Delete", Unique: CallbackDeleteConfirm, Data: "yes"},
		{Text: "❌ Keep", Unique: CallbackDeleteConfirm, Data: "no"},
	})
	text := fmt.Sprintf(
		"Delete *%s* permanently? This cannot be undone.\nConfirm with the buttons or reply *yes* / *no*.",
		format.EscapeV1(service),
	)
	msg, err := c.Bot().Send(c.Recipient(), text, &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: markup})
	if err != nil {
		h.Sessions.End(owner, session.EndErrored)
		return err
	}
	if err := h.Sessions.Await(owner, StepConfirm, session.PendingConfirm{MessageID: msg.ID, ChatID: msg.Chat.ID}); err != nil {
		return err
	}
	return nil
}

func (h *Handler) ctx(c tele.Context) context.Context {
	return helpers.BuildContext(c)
}

func (h *Handler) scheduleDeletion(c tele.Context, msg *tele.Message) {
	if h.RevealTTL <= 0 {
		return
	}
	bot := c.Bot()
	ctx := helpers.BuildContext(c)
	time.AfterFunc(h.RevealTTL, func() {
		if err := bot.Delete(msg); err != nil {
			logger.Warn(ctx, "service.vault", "reveal_cleanup_failed",
				slog.String("err", err.Error()),
			)
		}
	})
}
