package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"snapcal/internal/capture"
	"snapcal/internal/config"
	"snapcal/internal/event"
	appLog "snapcal/internal/log"
	"snapcal/internal/model"
	"snapcal/internal/pipeline"
	"snapcal/internal/store"
	"snapcal/internal/vision"
	"snapcal/internal/web"
)

type flagConfig struct {
	configPath string
	imagePath  string
	captureURL string
	icsPath    string
	write      bool
	serve      bool
	watch      bool
	listen     string
}

func main() {
	appLog.Info("snapcal starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.icsPath != "" {
		conf.Export.ICSPath = flags.icsPath
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	client := vision.NewClient(conf.Vision.APIKey, conf.Vision.Model, conf.Vision.BaseURL, nil)
	if !client.IsConfigured() {
		appLog.Error("no vision API key configured", errors.New("set vision.api_key or SNAPCAL_API_KEY"))
		os.Exit(1)
	}

	pipe := pipeline.New(client, conf.Vision.Instruction, conf.Location(), event.Policy{
		DefaultDuration: time.Duration(conf.Export.DefaultDurationMinutes) * time.Minute,
		AllDaySpanDays:  conf.Export.AllDaySpanDays,
	})
	serializer := event.NewSerializer()

	switch {
	case flags.serve:
		runServe(ctx, conf, pipe, serializer)
	case flags.watch:
		runWatch(ctx, conf, pipe, serializer)
	default:
		if err := runOnce(ctx, conf, pipe, serializer, flags); err != nil {
			appLog.Error("run failed", err)
			os.Exit(1)
		}
	}

	appLog.Info("snapcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "snapcal.yaml", "Path to config file")
	flag.StringVar(&cfg.imagePath, "image", "", "Path to a photographed document (jpg/png/webp/heic)")
	flag.StringVar(&cfg.captureURL, "url", "", "Capture a screenshot of this URL as the input image")
	flag.StringVar(&cfg.icsPath, "ics", "", "Merge extracted events into this ICS file (overrides config)")
	flag.BoolVar(&cfg.write, "write", false, "Write extracted events into the calendar store")
	flag.BoolVar(&cfg.serve, "serve", false, "Run the HTTP API server")
	flag.BoolVar(&cfg.watch, "watch", false, "Watch the configured inbox directory on a schedule")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")

	flag.Parse()

	return cfg
}

func runServe(ctx context.Context, conf *config.Config, pipe *pipeline.Pipeline, serializer *event.Serializer) {
	var st store.CalendarStore
	if conf.Store.DSN != "" {
		sq, err := store.OpenSQLite(conf.Store.DSN)
		if err != nil {
			appLog.Error("failed to open calendar store", err, "dsn", conf.Store.DSN)
			os.Exit(1)
		}
		defer sq.Close()
		st = sq
	}

	srv := web.NewServer(conf, pipe, serializer, st)
	if err := srv.Start(ctx); err != nil {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}
}

func runWatch(ctx context.Context, conf *config.Config, pipe *pipeline.Pipeline, serializer *event.Serializer) {
	if conf.Inbox.Dir == "" {
		appLog.Error("watch mode requires inbox.dir in config", errors.New("inbox.dir is empty"))
		os.Exit(1)
	}

	sq, err := store.OpenSQLite(conf.Store.DSN)
	if err != nil {
		appLog.Error("failed to open calendar store", err, "dsn", conf.Store.DSN)
		os.Exit(1)
	}
	defer sq.Close()

	sink := func(ctx context.Context, res pipeline.Result, sourcePath string) error {
		if conf.Export.ICSPath != "" {
			added, err := serializer.MergeFile(conf.Export.ICSPath, res.Events)
			if err != nil {
				return fmt.Errorf("ics export: %w", err)
			}
			appLog.Info("ics export updated", "path", conf.Export.ICSPath, "added", added, "source", sourcePath)
		}

		granted, err := sq.RequestAccess(ctx)
		if err != nil || !granted {
			return fmt.Errorf("store access not granted: %w", err)
		}
		outcome := store.WriteAll(ctx, sq, conf.Store.Calendar, res.Events)
		if outcome.Classify() == model.BatchTotalFailure {
			return fmt.Errorf("all %d store writes failed", outcome.FailureCount)
		}
		return nil
	}

	w := pipeline.NewWatcher(pipe, conf.Inbox.Dir, conf.Inbox.ProcessedDir, sink)
	if err := w.Start(ctx, conf.Inbox.Schedule); err != nil {
		appLog.Error("failed to start inbox watcher", err)
		os.Exit(1)
	}

	// Process anything already sitting in the inbox, then let cron drive.
	w.ScanOnce(ctx)
	<-ctx.Done()
	time.Sleep(100 * time.Millisecond)
}

func runOnce(ctx context.Context, conf *config.Config, pipe *pipeline.Pipeline, serializer *event.Serializer, flags flagConfig) error {
	image, mime, err := loadInputImage(ctx, flags)
	if err != nil {
		return err
	}

	res, err := pipe.Run(ctx, image, mime)
	if err != nil {
		return err
	}

	printEventsTable(os.Stdout, res)

	if conf.Export.ICSPath != "" {
		added, err := serializer.MergeFile(conf.Export.ICSPath, res.Events)
		if err != nil {
			return fmt.Errorf("ics export: %w", err)
		}
		fmt.Printf("exported %d event(s) to %s (%d new)\n", len(res.Events), conf.Export.ICSPath, added)
	}

	if flags.write {
		sq, err := store.OpenSQLite(conf.Store.DSN)
		if err != nil {
			return fmt.Errorf("open calendar store: %w", err)
		}
		defer sq.Close()

		granted, err := sq.RequestAccess(ctx)
		if err != nil || !granted {
			return fmt.Errorf("store access not granted: %w", err)
		}

		outcome := store.WriteAll(ctx, sq, conf.Store.Calendar, res.Events)
		printOutcome(os.Stdout, outcome)
		if outcome.Classify() == model.BatchTotalFailure {
			return errors.New("all store writes failed")
		}
	}

	return nil
}

func loadInputImage(ctx context.Context, flags flagConfig) ([]byte, string, error) {
	switch {
	case flags.imagePath != "":
		mime := pipeline.MimeTypeForPath(flags.imagePath)
		if mime == "" {
			return nil, "", fmt.Errorf("unsupported image type: %s", flags.imagePath)
		}
		data, err := os.ReadFile(flags.imagePath)
		if err != nil {
			return nil, "", err
		}
		return data, mime, nil

	case flags.captureURL != "":
		appLog.Info("capturing screenshot", "url", flags.captureURL)
		png, err := capture.ScreenshotPNG(ctx, capture.Options{URL: flags.captureURL})
		if err != nil {
			return nil, "", err
		}
		return png, "image/png", nil

	default:
		return nil, "", errors.New("one of -image or -url is required (or use -serve / -watch)")
	}
}
