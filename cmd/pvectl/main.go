package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/marcus-qen/pvego/internal/config"
	"github.com/marcus-qen/pvego/internal/metrics"
	"github.com/marcus-qen/pvego/internal/resource"
	"github.com/marcus-qen/pvego/internal/session"
	"github.com/marcus-qen/pvego/internal/telemetry"
	"github.com/marcus-qen/pvego/internal/ticketcache"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type cliConfig struct {
	configPath  string
	jsonOutput  bool
	metricsAddr string
	noCache     bool
}

// commandEnv is what every subcommand runs against.
type commandEnv struct {
	requester resource.Requester
	cfg       cliConfig
	out       io.Writer
	prompt    func(label string) (string, error)
	logger    *zap.Logger

	// tickets is nil when caching is disabled.
	tickets  ticketStore
	cacheKey string
}

func main() {
	cfg, command, args, err := parseArgs(os.Args[1:])
	if errors.Is(err, errShowUsage) {
		printUsage()
		if len(os.Args) == 1 {
			os.Exit(1)
		}
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printUsage()
		os.Exit(1)
	}

	switch command {
	case "version":
		fmt.Printf("pvectl %s (commit: %s, built: %s)\n", version, commit, date)
		return
	case "help":
		printUsage()
		return
	}

	if err := run(cfg, command, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cli cliConfig, command string, args []string) error {
	conf, err := config.Load(cli.configPath)
	if err != nil {
		return err
	}
	if err := conf.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(conf.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := telemetry.InitTraceProvider(ctx, conf.OTLPEndpoint, version)
	if err != nil {
		logger.Warn("Failed to initialise OTel tracing, continuing without traces", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := shutdownTracer(shutdownCtx); err != nil {
				logger.Warn("Failed to shutdown OTel tracer", zap.Error(err))
			}
		}()
	}

	if cli.metricsAddr != "" {
		srv := startMetricsServer(cli.metricsAddr, logger)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	params, err := conf.SessionParams()
	if err != nil {
		return err
	}
	timeout, err := conf.TimeoutDuration()
	if err != nil {
		return err
	}

	sess := session.New(params, session.WithLogger(logger), session.WithTimeout(timeout))
	defer sess.Close()
	if err := sess.Connect(); err != nil {
		return fmt.Errorf("connect to %s: %w", params.Hostname, err)
	}

	env := commandEnv{
		requester: sess,
		cfg:       cli,
		out:       os.Stdout,
		prompt:    promptPassword,
		logger:    logger,
	}
	if !cli.noCache {
		env.tickets = ticketcache.New(filepath.Join(config.DefaultConfigDir, "tickets.yaml"), ticketcache.DefaultLifetime)
		env.cacheKey = ticketcache.Key(params)
	}
	return dispatch(ctx, env, command, args)
}

func dispatch(ctx context.Context, env commandEnv, command string, args []string) error {
	switch command {
	case "ticket":
		return runTicket(ctx, env, args)
	case "user":
		return runUser(ctx, env, args)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

var errShowUsage = errors.New("show usage")

func parseArgs(args []string) (cliConfig, string, []string, error) {
	cfg := cliConfig{
		configPath: os.Getenv("PVECTL_CONFIG"),
	}

	idx := 0
	for idx < len(args) {
		arg := args[idx]
		if !strings.HasPrefix(arg, "-") {
			break
		}
		switch arg {
		case "--help", "-h":
			return cfg, "", nil, errShowUsage
		case "--config", "-c":
			if idx+1 >= len(args) {
				return cfg, "", nil, fmt.Errorf("--config requires a value")
			}
			cfg.configPath = args[idx+1]
			idx += 2
		case "--metrics-addr":
			if idx+1 >= len(args) {
				return cfg, "", nil, fmt.Errorf("--metrics-addr requires a value")
			}
			cfg.metricsAddr = args[idx+1]
			idx += 2
		case "--json":
			cfg.jsonOutput = true
			idx++
		case "--no-cache":
			cfg.noCache = true
			idx++
		default:
			return cfg, "", nil, fmt.Errorf("unknown flag: %s", arg)
		}
	}

	if idx >= len(args) {
		return cfg, "", nil, errShowUsage
	}

	return cfg, args[idx], args[idx+1:], nil
}

func printUsage() {
	fmt.Print(`Usage: pvectl [--config <file>] [--json] [--metrics-addr <addr>] [--no-cache] <command>

Commands:
  ticket                    Log in and print the ticket and CSRF token
  user get <id>             Show a user
  user create <id> [flags]  Create a user
  user update <id> [flags]  Change a user
  user delete <id>          Delete a user
  user passwd <id>          Change a user's password
  version                   Print version information

User flags:
  --email <addr> --comment <text> --first <name> --last <name>
  --groups <a,b> --expire <unix> --keys <keys> --enable | --disabled
  --password <pw>           (create only; prompted when absent)

Connection settings come from the config file and PVE_* environment
variables (PVE_HOST, PVE_USER, PVE_PASSWORD, PVE_REALM, ...). Tickets are
cached for reuse unless --no-cache is given.
`)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func startMetricsServer(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server error", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}
