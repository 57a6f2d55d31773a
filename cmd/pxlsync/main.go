package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"pxlsync.dev/internal/accel"
	"pxlsync.dev/internal/canvas"
	"pxlsync.dev/internal/config"
)

// app is handed to every subcommand.
type app struct {
	cfg config.Config
	log *logrus.Logger
}

func appFrom(args []interface{}) *app { return args[0].(*app) }

func main() {
	var (
		configPath = flag.String("config", "", "path to pxlsync.yaml (defaults apply when empty)")
		logLevel   = flag.String("log_level", "", "log level override (trace, debug, info, warn, error)")
		site       = flag.String("site", "", "canvas site or base url override, e.g. pxls.space or http://127.0.0.1:8080")
	)

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&watchCmd{}, "")
	subcommands.Register(&progressCmd{}, "")
	subcommands.Register(&saveCmd{}, "")
	subcommands.Register(&unstylizeCmd{}, "")
	subcommands.ImportantFlag("config")
	subcommands.ImportantFlag("site")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *site != "" {
		cfg.BaseURL = canvas.SiteURL(*site)
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("config")
	}

	logger, closeLog, err := setupLogging(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("logging")
	}
	accel.SetLogger(logger)
	if err := cfg.ApplyAccel(); err != nil {
		logger.WithError(err).Fatal("accel")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ret := subcommands.Execute(ctx, &app{cfg: cfg, log: logger})
	stop()
	closeLog()
	os.Exit(int(ret))
}
