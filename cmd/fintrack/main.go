// Command fintrack manages a personal ledger of transactions, monthly
// budgets and settings from the terminal, and serves the operational HTTP
// surface with `fintrack serve`.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/notify"
	"fintrack/internal/services"
)

const (
	settleTimeout   = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

const usage = `usage: fintrack <command> [flags]

commands:
  bootstrap     create the ledger if it does not exist
  transactions  list transactions [-month YYYY-MM]
  add           record a transaction -amount -kind -category [-date] [-note] [-id]
  delete        delete a transaction -id
  budgets       list budgets [-month YYYY-MM]
  budget        set a budget -category -limit [-month] [-id]
  summary       show the monthly summary [-month YYYY-MM]
  settings      show or change settings [-code] [-symbol] [-week-start]
  reset         drop all data and bootstrap again
  serve         run the health, metrics and read API server [-addr]
`

// app holds the wired service and everything that must be released with it.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	service *services.FinanceService

	registry  *prometheus.Registry
	publisher *amqp.Publisher
	closers   []func() error
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	name, args := os.Args[1], os.Args[2:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}

	cli.LoadEnvFile()
	bootLogger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.SetupLogger(cfg.LogLevel)

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start fintrack", log.FieldError, err, log.FieldOperation, log.OpStartup)
		os.Exit(1)
	}

	runErr := cmd(ctx, a, args)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.close(closeCtx)

	if runErr != nil {
		if !errors.Is(runErr, errUsage) {
			fmt.Fprintln(os.Stderr, "error:", runErr)
		}
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, res.Close)

	settings, err := cfg.Settings()
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("first-run settings: %w", err)
	}
	store := ledger.NewStore(res.Store, ledger.Options{
		Seed:     cfg.Seed,
		Settings: settings,
		Logger:   logger,
	})

	notifiers := notify.Multi{notify.NewLogger(logger)}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			// Settlement events are best effort; the ledger works without them.
			logger.Warn("AMQP unavailable, settlement events disabled", log.FieldError, err)
		} else {
			a.publisher = amqp.NewPublisher(client, cfg.AMQPRoutingKey, 0, logger)
			a.closers = append(a.closers, client.Close)
			notifiers = append(notifiers, a.publisher)
		}
	}

	a.service, err = services.New(ctx, services.Options{
		Store:            store,
		Notifier:         notifiers,
		Metrics:          metrics.New(a.registry),
		Logger:           logger,
		SummaryCacheSize: cfg.SummaryCacheSize,
		SummaryCacheTTL:  cfg.SummaryCacheTTL,
		CleanupInterval:  cfg.CacheCleanupInterval,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

// close stops the service first so pending writes settle and their
// notifications reach the publisher before it drains.
func (a *app) close(ctx context.Context) {
	if a.service != nil {
		if err := a.service.Close(ctx); err != nil && !errors.Is(err, services.ErrClosed) {
			a.logger.Error("Failed to close finance service", log.FieldError, err)
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(ctx); err != nil {
			a.logger.Warn("Settlement events not fully published", log.FieldError, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("Failed to release resource", log.FieldError, err, log.FieldOperation, log.OpShutdown)
		}
	}
}

// settle waits for a submitted mutation and reports its outcome.
func (a *app) settle(ctx context.Context, m *services.Mutation) error {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	if err := m.Wait(ctx); err != nil {
		return fmt.Errorf("%s %s: %w", m.Operation(), m.State(), err)
	}
	return nil
}
