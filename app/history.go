package app

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/aiobot/core/telegram/format"
	"github.com/m3rciful/aiobot/core/telegram/helpers"
	"github.com/m3rciful/aiobot/storage"
)

// historyLimit bounds the /history reply.
const historyLimit = 10

func (a *App) cmdHistory(c tele.Context) error {
	items, err := a.downloads.RecentByUser(helpers.BuildContext(c), c.Sender().ID, historyLimit)
	if err != nil {
		return err
	}
	return helpers.SendMD(c, formatHistory(items))
}

// formatHistory renders recent download records as one Markdown message,
// newest first.
func formatHistory(items []storage.Download) string {
	if len(items) == 0 {
		return "No downloads yet. Start one with */download*."
	}
	var b strings.Builder
	b.WriteString("🗂 *Your recent downloads*\n")
	for _, d := range items {
		b.WriteString("\n")
		b.WriteString(statusBadge(d.Status))
		b.WriteString(" ")
		b.WriteString(format.EscapeV1(downloadLabel(d)))
	}
	return b.String()
}

// downloadLabel prefers tagged metadata over the stored filename and
// falls back to the request URL for records that never resolved.
func downloadLabel(d storage.Download) string {
	title := d.Title.String
	if title == "" {
		title = d.Filename.String
	}
	if title == "" {
		return d.URL
	}
	if d.Artist.String != "" {
		return d.Artist.String + " - " + title
	}
	return title
}

func statusBadge(status string) string {
	switch status {
	case storage.DownloadCompleted:
		return "✅"
	case storage.DownloadFailed:
		return "❌"
	case storage.DownloadCancelled:
		return "🚫"
	default:
		return "⏳"
	}
}
