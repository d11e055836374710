package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"marketconformance/config"
	"marketconformance/internal/loadtest"
	"marketconformance/logger"
	"marketconformance/pkg/marketdata"

	"github.com/logrusorgru/aurora"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("ratecheck", pflag.ExitOnError)
	config.RegisterFlags(flags)
	target := flags.String("url", "", "full request URL (default: candlestick endpoint under --rest-url)")
	instrument := flags.String("instrument", "BTC_USDT", "instrument for the default URL")
	rps := flags.Float64("rate", 100, "requests per second")
	duration := flags.Duration("duration", 30*time.Second, "test duration")
	workers := flags.Int("workers", 101, "concurrent requests in flight")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	if *target == "" {
		q := url.Values{"instrument_name": {*instrument}}
		*target = strings.TrimRight(cfg.Exchange.REST.BaseURL, "/") + "/" + marketdata.EndpointCandlestick + "?" + q.Encode()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the client's own limiter would cap the offered rate, so only its
	// transport settings are borrowed
	client := marketdata.NewRESTClient(config.RESTConfig{Timeout: cfg.Exchange.REST.Timeout}, log).HTTPClient()
	res, err := loadtest.Run(ctx, client, loadtest.Options{
		URL:      *target,
		Rate:     *rps,
		Duration: *duration,
		Workers:  *workers,
		Logger:   log.Named("loadtest"),
	})
	if err != nil {
		log.Error("load check stopped", zap.Error(err))
		if res.Sent == 0 {
			return 2
		}
	}

	printResult(res)
	if res.ByStatus[0] > 0 {
		return 1
	}
	return 0
}

func printResult(res loadtest.Result) {
	fmt.Printf("%s %d sent, %d dropped in %s\n", aurora.Bold("requests:"), res.Sent, res.Dropped, res.Elapsed.Round(time.Millisecond))
	for _, code := range res.Statuses() {
		label := fmt.Sprintf("%5d", code)
		switch {
		case code == 0:
			fmt.Printf("  %s %d\n", aurora.Red("error"), res.ByStatus[code])
		case code == http.StatusTooManyRequests:
			fmt.Printf("  %s %d\n", aurora.Yellow(label), res.ByStatus[code])
		case code >= http.StatusBadRequest:
			fmt.Printf("  %s %d\n", aurora.Red(label), res.ByStatus[code])
		default:
			fmt.Printf("  %s %d\n", aurora.Green(label), res.ByStatus[code])
		}
	}
	fmt.Printf("%s p50=%s p95=%s max=%s\n", aurora.Bold("latency:"),
		res.P50.Round(time.Millisecond), res.P95.Round(time.Millisecond), res.Max.Round(time.Millisecond))
}
