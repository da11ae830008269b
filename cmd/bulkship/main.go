package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/bulkship/internal/cliconfig"
	"github.com/bft-labs/bulkship/pkg/log"
	"github.com/bft-labs/bulkship/pkg/metrics"
	"github.com/bft-labs/bulkship/pkg/ship"
)

const helpDescription = `
Ship large sets of JSON records to an HTTP ingest endpoint without losing any.

Highlights:
  - Batches, gzip-compresses and splits batches that exceed the payload limit.
  - Retries 429/5xx and network errors with exponential backoff.
  - Persists every batch it cannot deliver; "bulkship replay" resends them.
  - Configure via file (TOML or YAML), BULKSHIP_* environment, or flags.

Exit status is 0 when every record was delivered, 2 when some batches were
persisted to the failure directory, and 1 on any other error.
`

var exampleUsage = strings.TrimSpace(`
  bulkship send --endpoint https://ingest.example.com/v1/records --auth-token <token> orders.jsonl
  bulkship replay --config $HOME/.bulkship/config.toml
  bulkship watch --inbox /var/spool/bulkship
  bulkship plan --max-payload-bytes 1048576 orders.jsonl.gz
`)

// errUndelivered marks a run that finished but persisted some batches.
var errUndelivered = errors.New("some batches were not delivered")

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// app carries state shared by every subcommand.
type app struct {
	cfg     cliconfig.Config
	cfgPath string
	logger  log.Logger
	metrics *metrics.Metrics
}

func main() {
	a := &app{cfg: cliconfig.DefaultConfig(), logger: log.NewZerologAdapter(log.Options{})}

	if err := newRootCmd(a).Execute(); err != nil {
		if errors.Is(err, errUndelivered) {
			a.logger.Warn("bulkship", log.Err(err))
			os.Exit(2)
		}
		a.logger.Error("bulkship", log.Err(err))
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "bulkship",
		Short:         "Ship large sets of JSON records to an HTTP endpoint without losing any",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVar(&a.cfgPath, "config", "", "path to config file, .toml or .yaml (default: $HOME/.bulkship/config.toml)")
	f.StringVar(&a.cfg.Endpoint, "endpoint", a.cfg.Endpoint, "ingest endpoint URL")
	f.StringVar(&a.cfg.AuthToken, "auth-token", a.cfg.AuthToken, "bearer token for the endpoint")
	f.IntVar(&a.cfg.TargetBatchCount, "batch-count", a.cfg.TargetBatchCount, "records per planned batch")
	f.IntVar(&a.cfg.MaxPayloadBytes, "max-payload-bytes", a.cfg.MaxPayloadBytes, "maximum compressed bytes per request")
	f.IntVar(&a.cfg.MaxRetries, "max-retries", a.cfg.MaxRetries, "retries after the first attempt")
	f.DurationVar(&a.cfg.BackoffBase, "backoff-base", a.cfg.BackoffBase, "delay before the first retry")
	f.DurationVar(&a.cfg.BackoffMax, "backoff-max", a.cfg.BackoffMax, "upper bound on retry delay")
	f.Float64Var(&a.cfg.BackoffJitter, "backoff-jitter", a.cfg.BackoffJitter, "random extra delay as a fraction of the delay, in [0,1)")
	f.DurationVar(&a.cfg.RequestTimeout, "timeout", a.cfg.RequestTimeout, "timeout per request")
	f.StringVar(&a.cfg.FailureLogDir, "failure-dir", a.cfg.FailureLogDir, "directory for undelivered batches")
	f.IntVar(&a.cfg.WorkerCount, "workers", a.cfg.WorkerCount, "concurrent batches in flight")
	f.IntVar(&a.cfg.CompressionLevel, "compression-level", a.cfg.CompressionLevel, "gzip level, -1 (default) to 9")
	f.BoolVar(&a.cfg.IdempotencyKeys, "idempotency-keys", a.cfg.IdempotencyKeys, "send an Idempotency-Key header per batch")
	f.StringVar(&a.cfg.UserAgent, "user-agent", a.cfg.UserAgent, "User-Agent header")
	f.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "debug, info, warn or error")
	f.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "console or json")
	f.StringVar(&a.cfg.MetricsAddr, "metrics-addr", a.cfg.MetricsAddr, "serve Prometheus metrics on this address (e.g. :9090)")

	root.AddCommand(a.sendCmd(), a.replayCmd(), a.watchCmd(), a.planCmd())
	return root
}

// setup layers file, environment and flags into a.cfg, validates it and
// builds the logger. Flags win over environment, which wins over the file.
func (a *app) setup(cmd *cobra.Command) error {
	cfgFile := a.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
			return err
		}
	}

	// BULKSHIP_* override the file but not explicit flags
	if err := cliconfig.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return err
	}

	a.logger = log.NewZerologAdapter(log.Options{Level: a.cfg.LogLevel, Format: a.cfg.LogFormat})

	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.logger.Info("configuration", log.Any("config", a.cfg.Redacted()))
	return nil
}

func (a *app) newShipper() (*ship.Shipper, error) {
	opts := []ship.Option{ship.WithLogger(a.logger)}
	if a.metrics != nil {
		opts = append(opts, ship.WithObserver(a.metrics))
	}
	s, err := ship.New(a.cfg.ShipConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create shipper: %w", err)
	}
	return s, nil
}

// serveMetrics starts the metrics endpoint if configured and returns a stop
// function.
func (a *app) serveMetrics() func() {
	if a.cfg.MetricsAddr == "" {
		return func() {}
	}
	a.metrics = metrics.New()

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", log.Err(err))
		}
	}()
	a.logger.Info("serving metrics", log.String("addr", a.cfg.MetricsAddr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func (a *app) signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			a.logger.Info("received signal, stopping...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outcome maps a finished run to the command error.
func outcome(report ship.RunReport, err error) error {
	if err != nil {
		return err
	}
	if report.Failed() > 0 {
		return fmt.Errorf("%w: %d of %d batches persisted", errUndelivered, report.Failed(), report.BatchesTotal)
	}
	return nil
}
