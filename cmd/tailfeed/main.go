// Tailfeed — log relay daemon that subscribes to a pub/sub gateway and
// persists delivered log records.
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
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/tailfeed/tailfeed/internal/config"
	"github.com/tailfeed/tailfeed/internal/connection"
	"github.com/tailfeed/tailfeed/internal/notify"
	"github.com/tailfeed/tailfeed/internal/relay"
	"github.com/tailfeed/tailfeed/internal/status"
	"github.com/tailfeed/tailfeed/internal/store"
	"github.com/tailfeed/tailfeed/internal/telemetry"
)

var (
	version string
	commit  string
)

func init() {
	if version == "" {
		version = "dev"
	}
	if commit == "" {
		commit = "unknown"
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(ctx, os.Args[2:])
	case "query":
		err = cmdQuery(ctx, os.Args[2:])
	case "prune":
		err = cmdPrune(ctx, os.Args[2:])
	case "status":
		err = cmdStatus(os.Args[2:])
	case "version":
		fmt.Printf("tailfeed %s (commit: %s)\n", version, commit)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: tailfeed <command>

Commands:
  run        Connect to the gateway and relay log records into the store
  query      Query stored log records (--channel, --level, --since, --search)
  prune      Delete stored records older than the configured retention
  status     Show daemon status from the local status endpoint
  version    Print version information
  help       Show this help

Global flags:
  --config <path>   Config file (default /etc/tailfeed/config.yaml)`)
}

// parseConfigPath extracts --config from args, returning the path and remaining args.
func parseConfigPath(args []string) (string, []string) {
	path := ""
	var remaining []string
	for i := 0; i < len(args); i++ {
		if (args[i] == "--config" || args[i] == "-c") && i+1 < len(args) {
			path = args[i+1]
			i++
		} else {
			remaining = append(remaining, args[i])
		}
	}

	if path == "" {
		path = strings.TrimSpace(os.Getenv("TAILFEED_CONFIG"))
	}

	return path, remaining
}

func initTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	return telemetry.InitTraceProvider(ctx, cfg.Telemetry.OTLPEndpoint, version)
}

func openStore(cfg *config.Config, logger *zap.Logger) (*store.Store, error) {
	if cfg.Store.Driver == "" {
		return nil, fmt.Errorf("store.driver is not configured")
	}
	return store.Open(cfg.Store.Driver, cfg.Store.DSN, logger)
}

func cmdRun(ctx context.Context, args []string) error {
	configPath, _ := parseConfigPath(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := initTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	var st *store.Store
	if cfg.Store.Driver != "" {
		st, err = openStore(cfg, logger.Named("store"))
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Init(ctx); err != nil {
			return err
		}
	}

	var alerter relay.Alerter
	if cfg.Notify.WebhookURL != "" {
		alerter = notify.NewNotifier(
			zapr.NewLogger(logger.Named("notify")),
			notify.NewWebhookChannel(cfg.Notify.WebhookURL),
		)
	}

	connector := connection.NewConnector(
		logger.Named("connection"),
		connection.WithChannelPrefix(cfg.Gateway.ChannelPrefix),
	)

	statusSrv := &http.Server{
		Addr:    cfg.Status.Listen,
		Handler: status.NewServer(version, cfg.Gateway.URL, connector).Handler(),
	}
	go func() {
		logger.Info("status endpoint listening", zap.String("addr", cfg.Status.Listen))
		if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status endpoint failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = statusSrv.Shutdown(shutdownCtx)
	}()

	// A nil *store.Store must not become a non-nil LogStore interface.
	var logStore relay.LogStore
	if st != nil {
		logStore = st
	}

	r := relay.New(cfg, connector, logStore, alerter, logger.Named("relay"))
	err = r.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func cmdQuery(ctx context.Context, args []string) error {
	configPath, args := parseConfigPath(args)

	opts := store.QueryOptions{}
	format := "text"
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--channel":
			if i+1 < len(args) {
				opts.Channel = args[i+1]
				i++
			}
		case "--level":
			if i+1 < len(args) {
				opts.Levels = splitList(args[i+1])
				i++
			}
		case "--namespace":
			if i+1 < len(args) {
				opts.Namespaces = splitList(args[i+1])
				i++
			}
		case "--since":
			if i+1 < len(args) {
				d, err := time.ParseDuration(args[i+1])
				if err != nil {
					return fmt.Errorf("--since: %w", err)
				}
				opts.MinTime = time.Now().Add(-d).UnixMilli()
				i++
			}
		case "--search":
			if i+1 < len(args) {
				opts.Search = args[i+1]
				i++
			}
		case "--limit":
			if i+1 < len(args) {
				n, err := strconv.Atoi(args[i+1])
				if err != nil {
					return fmt.Errorf("--limit: %w", err)
				}
				opts.Limit = n
				i++
			}
		case "--format":
			if i+1 < len(args) {
				format = args[i+1]
				i++
			}
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.Query(ctx, opts)
	if err != nil {
		return err
	}

	if format == "json" {
		return json.NewEncoder(os.Stdout).Encode(entries)
	}
	for _, e := range entries {
		ts := time.UnixMilli(e.Time).UTC().Format(time.RFC3339)
		ns := e.Namespace
		if ns == "" {
			ns = "-"
		}
		fmt.Printf("%s  %-5s  %-20s  %-12s  %s\n", ts, strings.ToUpper(e.LevelLabel), e.Channel, ns, e.Msg)
	}
	return nil
}

func cmdPrune(ctx context.Context, args []string) error {
	configPath, _ := parseConfigPath(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	deleted, err := st.Prune(ctx, cfg.Store.MaxAge())
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d records older than %s\n", deleted, cfg.Store.MaxAge())
	return nil
}

func cmdStatus(args []string) error {
	configPath, _ := parseConfigPath(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	resp, err := http.Get("http://" + cfg.Status.Listen + "/status")
	if err != nil {
		return fmt.Errorf("daemon not reachable: %w", err)
	}
	defer resp.Body.Close()

	var info status.Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("decode status: %w (%s)", err, string(body))
	}

	fmt.Printf("Version:  %s\n", info.Version)
	fmt.Printf("Gateway:  %s\n", info.GatewayURL)
	fmt.Printf("State:    %s\n", info.State)
	if info.Error != "" {
		fmt.Printf("Error:    %s\n", info.Error)
	}
	fmt.Printf("Uptime:   %s\n", info.Uptime)
	if len(info.Subscriptions) > 0 {
		fmt.Println("Subscriptions:")
		for handle, channel := range info.Subscriptions {
			fmt.Printf("  %-12s → %s\n", handle, channel)
		}
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
