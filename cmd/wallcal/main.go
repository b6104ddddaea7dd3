package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	webpush "github.com/SherClockHolmes/webpush-go"

	"wallcal/internal/config"
	"wallcal/internal/database"
	appLog "wallcal/internal/log"
	"wallcal/internal/occurrence"
	"wallcal/internal/reminder"
	"wallcal/internal/store"
	"wallcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	importFrom string
	exportTo   string
	once       bool
}

func main() {
	if err := run(parseFlags()); err != nil {
		appLog.Error("wallcal failed", err)
		os.Exit(1)
	}
}

// run serves until SIGINT/SIGTERM, or returns early after -once.
func run(flags flagConfig) error {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	fileListen := conf.Listen
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := conf.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", flags.configPath, err)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	home, _ := conf.Location()

	appLog.Info("wallcal starting",
		"listen", conf.Listen,
		"timezone", home.String(),
		"database", conf.DatabasePath,
		"reminder_cron", conf.ReminderCron,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(conf.DatabasePath), 0o700); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	db, err := database.Open(conf.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", conf.DatabasePath, err)
	}
	defer db.Close()

	defs := store.NewSQLite(db)
	subs := store.NewPushStore(db)

	if flags.importFrom != "" {
		n, err := importFrom(ctx, defs, conf, flags.importFrom)
		if err != nil {
			return fmt.Errorf("import %s: %w", flags.importFrom, err)
		}
		appLog.Info("import finished", "definitions", n)
	}
	if flags.exportTo != "" {
		if err := exportTo(ctx, defs, flags.exportTo); err != nil {
			return err
		}
		appLog.Info("export finished", "path", flags.exportTo)
	}
	if flags.once {
		return nil
	}

	if !conf.HasVAPIDKeys() {
		if err := generateVAPIDKeys(conf, flags.configPath, fileListen); err != nil {
			// reminders still reach open websocket clients
			appLog.Error("failed to generate VAPID keys; web push disabled", err)
		}
	}

	srv := web.NewServer(conf, defs, subs, home)

	notifiers := []reminder.Notifier{
		reminder.LogNotifier{},
		reminder.BroadcastNotifier{B: srv.Hub()},
	}
	if conf.HasVAPIDKeys() {
		notifiers = append(notifiers, reminder.NewWebPushNotifier(subs, reminder.PushConfig{
			VAPIDPublicKey:  conf.Push.VAPIDPublicKey,
			VAPIDPrivateKey: conf.Push.VAPIDPrivateKey,
			Subject:         conf.Push.Subject,
			TTL:             conf.Push.TTL,
		}, nil))
	}
	scheduler := reminder.NewScheduler(defs, reminder.Config{
		Schedule:  conf.ReminderCron,
		Location:  home,
		Lookahead: conf.ReminderLookahead(),
		Expand:    occurrence.Config{MaxOccurrencesPerDefinition: conf.MaxOccurrencesPerDefinition},
	}, notifiers...)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start reminder scheduler: %w", err)
	}
	defer scheduler.Stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	appLog.Info("wallcal exiting")
	return nil
}

// generateVAPIDKeys creates a Web Push identity and persists it so browser
// subscriptions survive restarts. The file keeps fileListen rather than a
// -listen override.
func generateVAPIDKeys(conf *config.Config, configPath, fileListen string) error {
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return err
	}
	onDisk := *conf
	onDisk.Listen = fileListen
	onDisk.Push.VAPIDPrivateKey = privateKey
	onDisk.Push.VAPIDPublicKey = publicKey
	if err := onDisk.Save(configPath); err != nil {
		return err
	}
	conf.Push.VAPIDPrivateKey = privateKey
	conf.Push.VAPIDPublicKey = publicKey
	appLog.Info("generated VAPID keys", "config_path", configPath)
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./wallcal.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.importFrom, "import", "", "Import a JSON backup (replaces all), an .ics file or an http(s) ICS URL (appends)")
	flag.StringVar(&cfg.exportTo, "export", "", "Export all definitions to a .json or .ics file")
	flag.BoolVar(&cfg.once, "once", false, "Run import/export and exit without serving")

	flag.Parse()

	return cfg
}
