package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketconformance/config"
	"marketconformance/internal/scenario"
	"marketconformance/internal/stubexchange"
	"marketconformance/logger"

	"github.com/logrusorgru/aurora"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("conformance", pflag.ExitOnError)
	config.RegisterFlags(flags)
	list := flags.Bool("list", false, "print the selected scenarios and exit")
	noColor := flags.Bool("no-color", false, "disable colored output")
	_ = flags.Parse(os.Args[1:])

	// viper config
	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	features := scenario.Catalog(scenario.DefaultTiming(cfg.Run), cfg.Run.DefaultCount)
	filter := scenario.FilterFrom(cfg.Run)
	if *list {
		scenario.PrintCatalog(os.Stdout, features, filter)
		return 0
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Exchange.ParameterPrefix != "" {
		store, err := config.NewParameterStore(ctx)
		if err != nil {
			log.Error("parameter store unavailable", zap.Error(err))
			return 2
		}
		err = config.ApplyParameterStoreRetry(ctx, cfg, store, 3, time.Second, func(err error, next time.Duration) {
			log.Warn("parameter store lookup failed, retrying", zap.Error(err), zap.Duration("next", next))
		})
		if err != nil {
			log.Error("failed to load endpoint overrides", zap.Error(err))
			return 2
		}
	}

	if cfg.Run.Stub {
		stub := stubexchange.New(stubexchange.Options{HeartbeatInterval: 30 * time.Second}, log)
		defer stub.Close()
		cfg.Exchange.REST.BaseURL = stub.BaseURL()
		cfg.Exchange.REST.AnnouncementsURL = ""
		cfg.Exchange.WS.URL = stub.WSURL()
	}

	log.Info("conformance run started",
		zap.String("rest", cfg.Exchange.REST.BaseURL),
		zap.String("ws", cfg.Exchange.WS.URL),
		zap.Any("filter", filter))

	report := scenario.NewRunner(cfg, log).Run(ctx, features, filter)
	report.Print(os.Stdout, aurora.NewAurora(!*noColor))

	switch {
	case len(report.Results) == 0:
		log.Warn("no scenarios matched the filter")
		return 2
	case !report.OK():
		return 1
	}
	return 0
}
