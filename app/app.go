package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/aiobot/app/download"
	"github.com/m3rciful/aiobot/app/vault"
	"github.com/m3rciful/aiobot/audio"
	"github.com/m3rciful/aiobot/core/bootstrap"
	corecmd "github.com/m3rciful/aiobot/core/cmd"
	"github.com/m3rciful/aiobot/core/logger"
	tg "github.com/m3rciful/aiobot/core/telegram"
	"github.com/m3rciful/aiobot/core/telegram/commands"
	"github.com/m3rciful/aiobot/core/telegram/helpers"
	"github.com/m3rciful/aiobot/core/telegram/router"
	"github.com/m3rciful/aiobot/core/telegram/session"
	"github.com/m3rciful/aiobot/storage"
	"github.com/m3rciful/aiobot/vaultcrypto"
)

// App wires configuration, storage, services and Telegram handlers.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	sessions *session.Store
	registry *tg.Registry

	vault     *vault.Handler
	download  *download.Handler
	downloads *storage.DownloadsRepo
	flows     *flowDispatcher
	health    *healthServer

	// bot becomes available once the runtime starts; the session expiry
	// notifier reads it.
	bot atomic.Pointer[tele.Bot]
}

// New builds the application from loaded configuration.
func New(carrier corecmd.ConfigCarrier) (*App, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}

	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	cipher, err := vaultcrypto.New(cfg.Vault.EncryptionKey)
	if err != nil {
		return nil, err
	}
	if err := cipher.SelfTest(); err != nil {
		return nil, fmt.Errorf("app: vault crypto selftest failed: %w", err)
	}

	if err := cfg.Audio.EnsureOutputDirectory(); err != nil {
		return nil, fmt.Errorf("app: output directory: %w", err)
	}

	app := &App{
		cfg:       cfg,
		db:        res.DB,
		registry:  tg.NewRegistry(),
		downloads: storage.NewDownloadsRepo(res.DB),
	}

	app.sessions = session.NewStore(session.Options{
		Timeouts: map[session.Flow]time.Duration{
			session.FlowDownload:    cfg.DownloadTimeout(),
			session.FlowVaultCreate: cfg.VaultTimeout(),
			session.FlowVaultUpdate: cfg.VaultTimeout(),
			session.FlowVaultDelete: cfg.VaultTimeout(),
		},
		Default:   cfg.VaultTimeout(),
		OnExpired: app.notifyExpired,
	})

	app.vault = &vault.Handler{
		Svc:       vault.NewService(storage.NewCredentialsRepo(res.DB), cipher),
		Sessions:  app.sessions,
		RevealTTL: cfg.RevealTTL(),
	}

	covers := &audio.CoverStore{Dir: cfg.Audio.OutputDirectory, Client: tg.BuildHTTPClient()}
	extractor := audio.NewExtractor(cfg.Audio)
	app.download = &download.Handler{
		Sessions: app.sessions,
		Records:  app.downloads,
		Covers:   covers,
		Finalizer: &download.Finalizer{
			Prober:        extractor,
			Fetcher:       extractor,
			Tagger:        audio.ID3Tagger{},
			Covers:        covers,
			Records:       app.downloads,
			OutputDir:     cfg.Audio.OutputDirectory,
			UploadLimitMB: cfg.Audio.UploadLimitMB,
		},
	}

	app.flows = &flowDispatcher{
		sessions: app.sessions,
		vault:    app.vault,
		download: app.download,
	}
	app.health = newHealthServer(cfg.Health.Listen)

	app.registerCommands()
	app.registerCallbacks()
	return app, nil
}

// TelegramRunOptions assembles the bot runtime configuration.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	routes := router.TextRoutes(a.flows, a.registry, router.TextOptions{
		Prefix:         "!",
		PrefixCommands: a.prefixCommands(),
	})
	routes = append(routes, router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: a.cfg.Core.Telegram.AdminID,
	})...)
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))

	return tg.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    a.registry,
		Middlewares: tg.DefaultMiddlewares(a.cfg.CoreConfig(), nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			a.bot.Store(rt.Bot)
			a.health.Start(ctx)
			return nil
		},
		OnStop: func(ctx context.Context, rt tg.Runtime) error {
			if err := a.health.Stop(ctx); err != nil {
				logger.Warn(ctx, "health", "shutdown_failed", slog.String("err", err.Error()))
			}
			return a.db.Close()
		},
	}, nil
}

func (a *App) registerCommands() {
	a.registry.RegisterCommand("/download", commands.Command{
		Handler:     a.download.CmdDownload,
		Description: "Download a track from YouTube or SoundCloud",
	})
	a.registry.RegisterCommand("/history", commands.Command{
		Handler:     a.cmdHistory,
		Description: "Your recent downloads",
	})
	a.registry.RegisterCommand("/cancel", commands.Command{
		Handler:     a.cmdCancel,
		Description: "Abort the current operation",
	})
	a.registry.RegisterCommand("/help", commands.Command{
		Handler:     a.cmdHelp,
		Description: "Show what this bot can do",
		Aliases:     []string{"start"},
	})
	a.registry.RegisterCommand("/stats", commands.Command{
		Handler:     a.cmdStats,
		Description: "Download statistics",
		AdminOnly:   true,
		Hidden:      true,
	})
}

func (a *App) registerCallbacks() {
	_ = a.registry.RegisterCallback(vault.CallbackDeleteConfirm, a.vault.ConfirmDelete)
	_ = a.registry.RegisterCallback(download.CallbackCoverConfirm, a.download.ConfirmCover)
}

func (a *App) prefixCommands() map[string]router.PrefixHandler {
	return map[string]router.PrefixHandler{
		"new":    a.vault.CmdNew,
		"get":    a.vault.CmdGet,
		"list":   a.vault.CmdList,
		"update": a.vault.CmdUpdate,
		"delete": a.vault.CmdDelete,
		"help":   a.vault.CmdHelp,
	}
}

func (a *App) cmdCancel(c tele.Context) error {
	err := a.sessions.Do(c.Sender().ID, func(s *session.Session) error {
		if a.flows.finalizing(s) {
			return helpers.SendText(c, "Still working on your file, hang on.")
		}
		if s.Flow == session.FlowDownload {
			a.download.Abort(helpers.BuildContext(c), s)
		}
		a.sessions.End(s.Owner, session.EndCancelled)
		return helpers.SendText(c, "Cancelled.")
	})
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		return helpers.SendText(c, "Nothing to cancel.")
	case errors.Is(err, session.ErrBusy):
		return helpers.SendText(c, "One moment, still handling your previous message.")
	}
	return err
}

func (a *App) cmdHelp(c tele.Context) error {
	return helpers.SendMD(c, "🎵 */download* - fetch a track from YouTube or SoundCloud as tagged mp3\n"+
		"🗂 */history* - your recent downloads\n"+
		"🔐 `!help` - manage your encrypted credential vault\n"+
		"✋ */cancel* - abort the current operation")
}

func (a *App) cmdStats(c tele.Context) error {
	counts, err := a.downloads.CountByStatus(helpers.BuildContext(c))
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("📊 *Downloads*\n")
	for _, status := range []string{storage.DownloadCompleted, storage.DownloadPending, storage.DownloadFailed} {
		b.WriteString(fmt.Sprintf("\n%s: %d", status, counts[status]))
	}
	return helpers.SendMD(c, b.String())
}

// notifyExpired tells the user their flow timed out. It runs on the
// session timer goroutine, so it sends through the bot directly.
func (a *App) notifyExpired(owner int64, flow session.Flow) {
	bot := a.bot.Load()
	if bot == nil {
		return
	}
	text := "⏱ Your session expired due to inactivity. Start again when you are ready."
	if _, err := bot.Send(&tele.User{ID: owner}, text); err != nil {
		logger.Warn(context.Background(), "tg", "expiry_notice_failed",
			slog.Int64("user_id", owner),
			slog.String("err", err.Error()),
		)
	}
}
