package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/internal/simulate"
	"github.com/robsheahan/tipping-aggregator-web/pkg/logger"
)

// Default configuration constants.
const (
	defaultEvents     = 200
	defaultProviders  = 6
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 30 * time.Second
	defaultSettle     = 5 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		events    = flag.Int("events", defaultEvents, "Number of fixtures to create")
		providers = flag.Int("providers", defaultProviders, "Number of providers quoting each fixture")
		league    = flag.String("league", "sim", "League of the generated fixtures")
		market    = flag.String("market", string(model.MarketTwoWay), "Market: moneyline_2way or moneyline_3way")
		margin    = flag.Float64("margin", 0.05, "Bookmaker overround applied to generated odds")
		noise     = flag.Float64("noise", 0.05, "Max deviation of a provider from the true probability")
		seed      = flag.Uint64("seed", 0, "Random seed (0 uses the clock)")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle    = flag.Duration("settle", defaultSettle, "Wait between submission and verification")
		output    = flag.String("output", "", "Write generated payloads to this JSON file")
		jsonLogs  = flag.Bool("json", false, "Emit JSON logs")
		verbose   = flag.Bool("verbose", false, "Log every failed request")
	)
	flag.Parse()

	var opts []logger.Option
	if *jsonLogs {
		opts = append(opts, logger.WithJSON())
	}
	if err := logger.Init(opts...); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := &simulate.Config{
		BaseURL:   *baseURL,
		Events:    *events,
		Providers: *providers,
		League:    model.LeagueID(*league),
		Market:    model.MarketType(*market),
		Margin:    *margin,
		Noise:     *noise,
		Seed:      *seed,
		Workers:   *workers,
		Timeout:   *timeout,
		Settle:    *settle,
		Output:    *output,
		Verbose:   *verbose,
	}

	if _, err := simulate.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		os.Exit(1)
	}
}
