// Command pixivbot runs the subscription-delivery service: a Telegram
// command pump fronting a scheduler that polls the source for new works and
// forwards them to subscribed chats.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/basket/pixivbot-go/internal/audit"
	"github.com/basket/pixivbot-go/internal/bus"
	"github.com/basket/pixivbot-go/internal/commands"
	"github.com/basket/pixivbot-go/internal/config"
	"github.com/basket/pixivbot-go/internal/delivery"
	"github.com/basket/pixivbot-go/internal/doctor"
	"github.com/basket/pixivbot-go/internal/downloader"
	"github.com/basket/pixivbot-go/internal/filecache"
	"github.com/basket/pixivbot-go/internal/notifier"
	"github.com/basket/pixivbot-go/internal/scheduler"
	"github.com/basket/pixivbot-go/internal/sourceclient"
	"github.com/basket/pixivbot-go/internal/store"
	"github.com/basket/pixivbot-go/internal/telemetry"
)

// version is set via ldflags at build time: -ldflags "-X main.version=...".
var version = "dev"

func main() {
	app := &cli.App{
		Name:  "pixivbot",
		Usage: "subscribe chats to author/ranking updates and deliver new works over Telegram",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.toml",
				Usage:   "path to the TOML configuration file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the command pump and scheduler until interrupted",
				Action: runServe,
			},
			{
				Name:   "migrate",
				Usage:  "apply all pending database migrations and exit",
				Action: runMigrate,
			},
			{
				Name:  "doctor",
				Usage: "run startup diagnostics",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "emit machine-readable JSON"},
				},
				Action: runDoctor,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.String("config"))
}

func runMigrate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	s, err := store.Open(cfg.Database.URL, logger)
	if err != nil {
		return fmt.Errorf("open/migrate store: %w", err)
	}
	defer s.Close()
	fmt.Println("migrations applied")
	return nil
}

func runDoctor(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		cfg = &config.Config{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	diag := doctor.Run(ctx, cfg, version)

	if c.Bool("json") {
		if err := encodeJSON(os.Stdout, diag); err != nil {
			return err
		}
	} else {
		printDiagnosisTo(os.Stdout, diag)
	}

	if !diag.OK() {
		os.Exit(1)
	}
	return nil
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printDiagnosisTo(w io.Writer, diag doctor.Diagnosis) {
	fmt.Fprintf(w, "pixivbot doctor report (%s)\n", diag.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "system: %s/%s (%s)\n", diag.System.OS, diag.System.Arch, diag.System.Go)
	fmt.Fprintln(w, "---")
	for _, res := range diag.Results {
		fmt.Fprintf(w, "[%-4s] %-16s %s\n", res.Status, res.Name, res.Message)
		if res.Detail != "" {
			fmt.Fprintf(w, "       %s\n", res.Detail)
		}
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Quiet (file-only) logs when stdout isn't a terminal, so a daemonized
	// run doesn't double-write into whatever is capturing its stdout.
	quiet := !isatty.IsTerminal(os.Stdout.Fd())
	logger, closer, err := telemetry.NewLogger(cfg.Logging.Dir, cfg.Logging.Level, quiet)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closer.Close()

	if err := audit.Init(cfg.Logging.Dir); err != nil {
		return fmt.Errorf("init audit: %w", err)
	}
	defer audit.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(cfg.Database.URL, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()
	audit.SetDB(s.DB())

	eventBus := bus.NewWithLogger(logger)

	counters := &telemetry.Counters{}
	counters.Watch(ctx, eventBus, logger)

	source := sourceclient.New(cfg.Pixiv.RefreshToken, &http.Client{Timeout: 30 * time.Second})
	cache := filecache.New(cfg.Scheduler.CacheDir)
	dl := downloader.New(cache, &http.Client{Timeout: 60 * time.Second})

	go cache.RunGCForever(ctx, time.Duration(cfg.Scheduler.CacheRetentionDays)*24*time.Hour, logger, eventBus)

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("connect telegram: %w", err)
	}
	notif := notifier.New(bot, cache)

	deps := delivery.Deps{
		Downloader:    dl,
		Notifier:      notif,
		MaxRetryCount: cfg.Scheduler.MaxRetryCount,
	}

	sched := scheduler.New(scheduler.Config{
		Store:              s,
		Source:             source,
		Deps:               deps,
		Logger:             logger,
		Bus:                eventBus,
		TickInterval:       time.Duration(cfg.Scheduler.TickIntervalSec) * time.Second,
		MinTaskInterval:    time.Duration(cfg.Scheduler.MinTaskIntervalSec) * time.Second,
		MaxTaskInterval:    time.Duration(cfg.Scheduler.MaxTaskIntervalSec) * time.Second,
		MinRequestInterval: time.Duration(cfg.Scheduler.MinIntervalMS) * time.Millisecond,
		MaxRequestInterval: time.Duration(cfg.Scheduler.MaxIntervalMS) * time.Millisecond,
		RankingTopN:        cfg.Content.RankingTopN,
	})
	sched.Start(ctx)
	defer sched.Stop()

	nameUpdater := scheduler.NewNameUpdateEngine(s, source, logger)
	if err := nameUpdater.Start(ctx, "@every 6h"); err != nil {
		return fmt.Errorf("start name updater: %w", err)
	}
	defer nameUpdater.Stop()

	statusFn := func() string {
		return fmt.Sprintf(
			"tasks polled: %d\nworks delivered: %d\ndelivery failures: %d\ncache sweeps: %d\ncache evicted: %d\ncommand denials: %d",
			counters.TasksPolled.Load(),
			counters.WorksDelivered.Load(),
			counters.DeliveryFailures.Load(),
			counters.CacheSweeps.Load(),
			counters.CacheEvicted.Load(),
			audit.DenyCount(),
		)
	}

	cmdBot := commands.New(commands.Config{
		API:                    bot,
		Repo:                   s,
		Source:                 source,
		Notifier:               notif,
		Downloader:             dl,
		Logger:                 logger,
		OwnerID:                cfg.Telegram.OwnerID,
		BotMode:                cfg.Telegram.BotMode,
		DefaultTaskIntervalSec: cfg.Scheduler.MinTaskIntervalSec,
		MaxRetryCount:          cfg.Scheduler.MaxRetryCount,
		Status:                 statusFn,
	})

	logger.Info("pixivbot starting", "version", version, "bot_mode", cfg.Telegram.BotMode)
	cmdBot.Start(ctx)

	logger.Info("shutdown complete")
	return nil
}
