package router

import (
	"strings"
	"time"

	tg "github.com/m3rciful/aiobot/core/telegram"
	"github.com/m3rciful/aiobot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Conversations is the minimal interface the router needs from the flow
// dispatcher: session presence plus continuation handling for text and
// media (photo/document) updates.
type Conversations interface {
	Active(userID int64) bool
	ContinueText(c tele.Context) error
	ContinueMedia(c tele.Context) error
}

// PrefixHandler handles a prefix-tokenized command such as "!get <service>".
// args carries the remainder after the command token, trimmed.
type PrefixHandler func(c tele.Context, args string) error

// TextOptions controls routing of text and media updates.
type TextOptions struct {
	// Prefix starts bang-style commands, "!" by default.
	Prefix string
	// PrefixCommands maps lowercase command names to handlers. Unknown
	// commands and unknown prefixes are ignored, not errors.
	PrefixCommands map[string]PrefixHandler

	UnknownText  tele.HandlerFunc
	UnknownMedia tele.HandlerFunc
}

// TextRoutes builds handlers for text, photo, and document updates.
// An active session always wins: its text is unconditionally the next input
// for the current step. Otherwise slash commands resolve via the registry,
// then the prefix tokenizer runs.
func TextRoutes(conv Conversations, reg *tg.Registry, opts TextOptions) []tg.Route {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "!"
	}

	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if conv != nil && conv.Active(c.Sender().ID) {
			return handleWithSummary(c, "continuation", start, "", "", func() error {
				return conv.ContinueText(c)
			})
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
		}

		if name, args, ok := tokenizePrefix(text, prefix); ok {
			if h, found := opts.PrefixCommands[name]; found {
				return handleWithSummary(c, prefix+name, start, "", "", func() error {
					return h(c, args)
				})
			}
			logHandlerSummary(c, prefix+name, start, "skip", "ok", nil)
			return nil
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	mediaHandler := func(c tele.Context) error {
		start := time.Now()
		if conv != nil && conv.Active(c.Sender().ID) {
			return handleWithSummary(c, "continuation_media", start, "", "", func() error {
				return conv.ContinueMedia(c)
			})
		}
		if opts.UnknownMedia != nil {
			return handleWithSummary(c, "unexpected_media", start, "", "", func() error {
				return opts.UnknownMedia(c)
			})
		}
		logHandlerSummary(c, "unexpected_media", start, "skip", "ok", nil)
		return nil
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(handler)},
		{Endpoint: tele.OnPhoto, Handler: wrap(mediaHandler)},
		{Endpoint: tele.OnDocument, Handler: wrap(mediaHandler)},
	}
}

// tokenizePrefix splits "<prefix><command> <rest>" and reports whether the
// text carried the prefix at all.
func tokenizePrefix(text, prefix string) (string, string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, prefix) || len(text) <= len(prefix) {
		return "", "", false
	}
	rest := text[len(prefix):]
	parts := strings.SplitN(rest, " ", 2)
	name := strings.ToLower(strings.TrimSpace(parts[0]))
	if name == "" {
		return "", "", false
	}
	args := ""
	if len(parts) == 2 {
		args = strings.TrimSpace(parts[1])
	}
	return name, args, true
}
