package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/aiobot/app/convo"
	"github.com/m3rciful/aiobot/audio"
	"github.com/m3rciful/aiobot/core/logger"
	"github.com/m3rciful/aiobot/core/telegram/callbacks"
	"github.com/m3rciful/aiobot/core/telegram/format"
	"github.com/m3rciful/aiobot/core/telegram/helpers"
	"github.com/m3rciful/aiobot/core/telegram/keyboard"
	"github.com/m3rciful/aiobot/core/telegram/session"
	"github.com/m3rciful/aiobot/storage"
)

// Flow steps of the download conversation.
const (
	StepURL         session.Step = "awaiting_url"
	StepArtist      session.Step = "awaiting_artist"
	StepTitle       session.Step = "awaiting_title"
	StepAlbum       session.Step = "awaiting_album"
	StepFilename    session.Step = "awaiting_filename"
	StepCoverChoice session.Step = "awaiting_cover_choice"
	StepCoverImage  session.Step = "awaiting_cover_image"
	StepFinalizing  session.Step = "finalizing"
)

// Session field keys used while the flow is in progress.
const (
	keyURL      = "url"
	keyArtist   = "artist"
	keyTitle    = "title"
	keyAlbum    = "album"
	keyFilename = "filename"
	keyRecordID = "download_id"
	keyCover    = "cover"
)

// CallbackCoverConfirm is the inline-button key of the cover prompt.
const CallbackCoverConfirm = "dl_cover"

// Handler owns the download command and its conversational flow.
type Handler struct {
	Sessions  *session.Store
	Records   Records
	Finalizer *Finalizer
	Covers    *audio.CoverStore
}

// CmdDownload starts the download flow.
func (h *Handler) CmdDownload(c tele.Context) error {
	owner := c.Sender().ID
	if _, err := h.Sessions.Begin(owner, session.FlowDownload, StepURL); err != nil {
		if errors.Is(err, session.ErrAlreadyActive) {
			return helpers.SendText(c, "Finish or cancel your current operation first.")
		}
		return err
	}
	return helpers.SendMD(c,
		"🎵 Send the track URL.\nSupported: YouTube (`youtube.com/watch`, `youtu.be`) and SoundCloud.")
}

// Continue advances the active download flow with one text input. It
// runs under the session store's per-owner lock.
func (h *Handler) Continue(c tele.Context, s *session.Session, input string) error {
	owner := s.Owner
	switch s.Step {
	case StepURL:
		url := strings.TrimSpace(input)
		if _, ok := audio.DetectSource(url); !ok {
			return helpers.SendMD(c,
				"That link is not supported. Send a YouTube (`youtube.com/watch`, `youtu.be`) or SoundCloud URL.")
		}
		recordID, err := h.Records.Create(h.ctx(c), owner, url)
		if err != nil {
			return err
		}
		fields := map[string]string{keyURL: url, keyRecordID: fmt.Sprint(recordID)}
		if err := h.Sessions.Advance(owner, StepArtist, fields); err != nil {
			return err
		}
		return helpers.SendMD(c, "Artist? Send *skip* to use the platform metadata.")

	case StepArtist:
		return h.collectField(c, s, keyArtist, StepTitle, "Title? Send *skip* to use the platform metadata.", input)

	case StepTitle:
		return h.collectField(c, s, keyTitle, StepAlbum, "Album? Send *skip* to leave it empty.", input)

	case StepAlbum:
		return h.collectField(c, s, keyAlbum, StepFilename,
			"Custom filename? Send *skip* to keep the track title.", input)

	case StepFilename:
		fields := map[string]string{}
		if !convo.IsSkip(input) {
			fields[keyFilename] = strings.TrimSpace(input)
		}
		if err := h.Sessions.Advance(owner, StepCoverChoice, fields); err != nil {
			return err
		}
		return h.askCover(c, owner)

	case StepCoverChoice:
		switch {
		case convo.IsAffirmative(input):
			return h.wantCover(c, owner)
		case convo.IsNegative(input):
			return h.startFinalize(c, s)
		}
		return helpers.SendMD(c, "Reply *yes* or *no*, or use the buttons above.")

	case StepCoverImage:
		if convo.IsSkip(input) {
			return h.startFinalize(c, s)
		}
		// Cover art is best effort: a bad link proceeds without it.
		url := strings.TrimSpace(input)
		path, err := h.Covers.FetchURL(h.ctx(c), url)
		if err != nil {
			logger.Warn(h.ctx(c), "service.downloads", "cover_fetch_failed",
				slog.String("url", url),
				slog.String("err", err.Error()),
			)
			_ = helpers.SendText(c, "Could not load an image from that link, continuing without a cover.")
		} else {
			s.Fields[keyCover] = path
		}
		return h.startFinalize(c, s)

	case StepFinalizing:
		return helpers.SendText(c, "Still working on your file, hang on.")
	}
	h.Sessions.End(owner, session.EndErrored)
	return fmt.Errorf("download: unexpected step %q", s.Step)
}

// ContinueMedia handles a photo or image document sent as cover art.
func (h *Handler) ContinueMedia(c tele.Context, s *session.Session) error {
	if s.Step != StepCoverImage {
		return helpers.SendText(c, "Please answer the current question with text.")
	}

	var file *tele.File
	ext := ".jpg"
	msg := c.Message()
	switch {
	case msg.Photo != nil:
		file = &msg.Photo.File
	case msg.Document != nil:
		if !strings.HasPrefix(msg.Document.MIME, "image/") {
			return helpers.SendText(c, "That file is not an image. Send a photo, an image URL, or skip.")
		}
		file = &msg.Document.File
		if e := filepath.Ext(msg.Document.FileName); e != "" {
			ext = e
		}
	default:
		return helpers.SendText(c, "Please send a photo, an image URL, or skip.")
	}

	if path, err := h.saveUpload(c, file, ext); err != nil {
		logger.Warn(h.ctx(c), "service.downloads", "cover_save_failed",
			slog.String("err", err.Error()),
		)
		_ = helpers.SendText(c, "Could not read that image, continuing without a cover.")
	} else {
		s.Fields[keyCover] = path
	}
	return h.startFinalize(c, s)
}

func (h *Handler) saveUpload(c tele.Context, file *tele.File, ext string) (string, error) {
	rc, err := c.Bot().File(file)
	if err != nil {
		return "", fmt.Errorf("download cover: %w", err)
	}
	defer func() { _ = rc.Close() }()
	return h.Covers.Save(rc, ext)
}

// ConfirmCover resolves the cover prompt from an inline button press.
// Presses on a stale or foreign message are ignored.
func (h *Handler) ConfirmCover(c tele.Context) error {
	cb := c.Callback()
	if cb == nil || cb.Message == nil {
		return nil
	}
	owner := c.Sender().ID
	wantsCover := convo.Normalize(callbacks.CallbackPayload(c)) == "yes"
	var ferr error
	err := h.Sessions.Do(owner, func(s *session.Session) error {
		if s.Flow != session.FlowDownload || s.Confirm == nil {
			return nil
		}
		if s.Confirm.MessageID != cb.Message.ID || s.Confirm.ChatID != cb.Message.Chat.ID {
			return nil
		}
		if wantsCover {
			ferr = h.wantCover(c, owner)
		} else {
			ferr = h.startFinalize(c, s)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrNoActiveSession) || errors.Is(err, session.ErrBusy) {
			return nil
		}
		return err
	}
	return ferr
}

// Abort marks the session's download record cancelled, if one exists.
func (h *Handler) Abort(ctx context.Context, s *session.Session) {
	id := parseInt64(s.Field(keyRecordID))
	if id == 0 {
		return
	}
	status := storage.DownloadCancelled
	if err := h.Records.Update(ctx, id, storage.DownloadUpdate{Status: &status}); err != nil {
		logger.Warn(ctx, "service.downloads", "record_update_failed",
			slog.Int64("download_id", id),
			slog.String("err", err.Error()),
		)
	}
}

func (h *Handler) collectField(c tele.Context, s *session.Session, key string, next session.Step, prompt, input string) error {
	fields := map[string]string{}
	if !convo.IsSkip(input) {
		fields[key] = strings.TrimSpace(input)
	}
	if err := h.Sessions.Advance(s.Owner, next, fields); err != nil {
		return err
	}
	return helpers.SendMD(c, prompt)
}

func (h *Handler) askCover(c tele.Context, owner int64) error {
	markup := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "✅ Yes", Unique: CallbackCoverConfirm, Data: "yes"},
		{Text: "❌ No", Unique: CallbackCoverConfirm, Data: "no"},
	})
	msg, err := c.Bot().Send(c.Recipient(),
		"Embed custom cover art?\nConfirm with the buttons or reply *yes* / *no*.",
		&tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: markup})
	if err != nil {
		return err
	}
	return h.Sessions.Await(owner, StepCoverChoice, session.PendingConfirm{MessageID: msg.ID, ChatID: msg.Chat.ID})
}

func (h *Handler) wantCover(c tele.Context, owner int64) error {
	if err := h.Sessions.Advance(owner, StepCoverImage, nil); err != nil {
		return err
	}
	return helpers.SendMD(c, "Send the cover as a photo or an image URL, or *skip*.")
}

// startFinalize flips the session into the finalizing step and runs the
// extraction pipeline in the background. The inactivity timer is stopped
// while the pipeline owns the session, and exactly one outcome message is
// sent when it finishes.
func (h *Handler) startFinalize(c tele.Context, s *session.Session) error {
	owner := s.Owner
	req := Request{
		Owner:    owner,
		RecordID: parseInt64(s.Field(keyRecordID)),
		URL:      s.Field(keyURL),
		Meta: audio.Metadata{
			Artist:    s.Field(keyArtist),
			Title:     s.Field(keyTitle),
			Album:     s.Field(keyAlbum),
			CoverPath: s.Field(keyCover),
		},
		CustomName: s.Field(keyFilename),
	}
	if err := h.Sessions.Suspend(owner, StepFinalizing); err != nil {
		return err
	}
	if err := helpers.SendText(c, "⏳ Downloading and tagging, this can take a minute."); err != nil {
		return err
	}

	ctx := h.ctx(c)
	go func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Minute)
		defer cancel()
		outcome := h.Finalizer.Run(runCtx, req)
		h.deliver(c, ctx, s, req, outcome)
	}()
	return nil
}

func (h *Handler) deliver(c tele.Context, ctx context.Context, s *session.Session, req Request, outcome Outcome) {
	reason := session.EndCompleted
	if outcome.Err != nil {
		reason = session.EndErrored
	}
	// Ending by instance keeps a finalizer that outlived its session from
	// tearing down a newer one, and from reporting a second outcome.
	if !h.Sessions.EndIf(s, reason) {
		logger.Warn(ctx, "service.downloads", "finalize_result_dropped",
			slog.Int64("download_id", req.RecordID),
		)
		return
	}
	if outcome.Err != nil {
		h.sendFinal(c, ctx, "❌ The download failed. Nothing was saved, try again later.")
		return
	}

	name := filepath.Base(outcome.Path)
	if outcome.Uploadable {
		audioFile := &tele.Audio{
			File:      tele.FromDisk(outcome.Path),
			Title:     outcome.Meta.Title,
			Performer: outcome.Meta.Artist,
			FileName:  name,
		}
		if _, err := c.Bot().Send(c.Recipient(), audioFile); err != nil {
			logger.Error(ctx, "service.downloads", "upload_failed",
				slog.Int64("download_id", req.RecordID),
				slog.String("err", err.Error()),
			)
			h.sendFinal(c, ctx, fmt.Sprintf(
				"✅ Saved `%s` (%.1f MB), but uploading it failed. The file is kept on the server.",
				format.EscapeV1(name), outcome.SizeMB))
		}
		return
	}
	h.sendFinal(c, ctx, fmt.Sprintf(
		"✅ Saved `%s` (%.1f MB). It exceeds the upload limit, so it stays on the server.",
		format.EscapeV1(name), outcome.SizeMB))
}

func (h *Handler) sendFinal(c tele.Context, ctx context.Context, text string) {
	if err := helpers.SendMD(c, text); err != nil {
		logger.Error(ctx, "service.downloads", "outcome_send_failed",
			slog.String("err", err.Error()),
		)
	}
}

func (h *Handler) ctx(c tele.Context) context.Context {
	return helpers.BuildContext(c)
}

func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
