// bdcollect keeps a local mirror of a comic-album collection and wishlist
// in sync with the catalog API and edits per-album flags.
//
// Usage:
//
//	bdcollect refresh [--config <path>]                 # download both lists once
//	bdcollect daemon  [--config <path>]                 # refresh periodically and on reconnect
//	bdcollect toggle  [--config ...] <work> <edition> <flag>
//	bdcollect exclude [--config ...] <work> <edition>   # hide an album from tracking
//	bdcollect include [--config ...] <work> <edition>   # undo exclude
//	bdcollect status  [--config <path>]                 # show cache and config state
//	bdcollect logout  [--config <path>]                 # wipe the offline cache
//	bdcollect version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/log/global"

	"github.com/njoerd114/bdcollect/internal/config"
	"github.com/njoerd114/bdcollect/internal/connectivity"
	"github.com/njoerd114/bdcollect/internal/model"
	"github.com/njoerd114/bdcollect/internal/remote"
	"github.com/njoerd114/bdcollect/internal/state"
	syncp "github.com/njoerd114/bdcollect/internal/sync"
	"github.com/njoerd114/bdcollect/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// run dispatches to the appropriate subcommand.
func run() error {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "refresh":
		return withSession(cmd, args, 0, runRefresh)
	case "daemon":
		return withSession(cmd, args, 0, runDaemon)
	case "toggle":
		return withSession(cmd, args, 3, runToggle)
	case "exclude":
		return withSession(cmd, args, 2, func(ctx context.Context, s *session) error {
			return runExclude(ctx, s, true)
		})
	case "include":
		return withSession(cmd, args, 2, func(ctx context.Context, s *session) error {
			return runExclude(ctx, s, false)
		})
	case "status":
		return runStatus(args)
	case "logout":
		return withSession(cmd, args, 0, runLogout)
	case "version":
		fmt.Println("bdcollect", version)
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	}
	return fmt.Errorf("unknown command %q, run 'bdcollect help' for usage", cmd)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "bdcollect: sync a comic collection and wishlist with the catalog API")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  bdcollect refresh                       Download collection and wishlist once")
	fmt.Fprintln(os.Stderr, "  bdcollect daemon                        Refresh periodically and on reconnect")
	fmt.Fprintln(os.Stderr, "  bdcollect toggle <work> <edition> <flag> Flip one flag on an album")
	fmt.Fprintln(os.Stderr, "  bdcollect exclude <work> <edition>      Hide an album from tracking")
	fmt.Fprintln(os.Stderr, "  bdcollect include <work> <edition>      Undo exclude")
	fmt.Fprintln(os.Stderr, "  bdcollect status                        Show config and cache state")
	fmt.Fprintln(os.Stderr, "  bdcollect logout                        Wipe the offline cache")
	fmt.Fprintln(os.Stderr, "  bdcollect version                       Print version")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Flags: --config <path>, --verbose")
	names := make([]string, 0, len(model.AllFlags()))
	for _, f := range model.AllFlags() {
		names = append(names, f.String())
	}
	fmt.Fprintf(os.Stderr, "Album flags: %s\n", strings.Join(names, ", "))
}

// --- Session -----------------------------------------------------------------

// session is everything a subcommand needs, built once per invocation.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	args    []string
	cache   *state.Store
	client  *remote.Client
	monitor *connectivity.Monitor
	probe   *connectivity.Probe
	coord   *syncp.Coordinator
}

// withSession parses the common flags, wires the stack and runs fn. nargs
// is the number of positional arguments fn expects.
func withSession(name string, args []string, nargs int, fn func(context.Context, *session) error) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != nargs {
		return fmt.Errorf("%s expects %d argument(s), got %d", name, nargs, fs.NArg())
	}

	// --- Logger --------------------------------------------------------------

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	local := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(local)
	slog.SetDefault(logger)

	// --- Config --------------------------------------------------------------

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config from %q: %w", *cfgPath, err)
	}
	logger.Debug("config loaded",
		"api_url", cfg.APIURL,
		"refresh_interval", cfg.RefreshInterval,
		"cache_path", cfg.CachePath,
		"wifi_only", cfg.WifiOnly,
	)

	// --- Telemetry (optional) ------------------------------------------------

	if cfg.Telemetry != nil {
		shutdownTel, err := telemetry.Setup(context.Background(), cfg.Telemetry, version)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger = slog.New(telemetry.NewLogHandler(local, global.GetLoggerProvider(), "bdcollect", logLevel))
			slog.SetDefault(logger)
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			}()
		}
	}

	// --- Offline cache -------------------------------------------------------

	cache, err := state.Open(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("opening offline cache at %q: %w", cfg.CachePath, err)
	}
	defer func() {
		if closeErr := cache.Close(); closeErr != nil {
			logger.Error("closing offline cache", "error", closeErr)
		}
	}()

	// --- Remote, connectivity and coordinator --------------------------------

	if cfg.APIToken == "" {
		logger.Warn("no API token configured, requests will be anonymous", "env", config.TokenEnv)
	}
	client := remote.NewClient(cfg.APIURL, cfg.APIToken, cfg.RequestTimeout, logger)
	monitor := connectivity.NewMonitor(cfg.WifiOnly, logger)
	probe := connectivity.NewProbe(client, monitor, time.Minute, cfg.RequestTimeout, logger)

	prefs := syncp.Preferences{
		WifiOnly:       cfg.WifiOnly,
		ConfirmRemoval: cfg.ConfirmRemoval,
		RetractableUI:  cfg.RetractableUI,
	}
	coord := syncp.NewCoordinator(client, monitor, cache, prefs, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if _, err := coord.WarmStart(ctx); err != nil {
		logger.Warn("warm start failed, starting empty", "error", err)
	}

	return fn(ctx, &session{
		cfg:     cfg,
		logger:  logger,
		args:    fs.Args(),
		cache:   cache,
		client:  client,
		monitor: monitor,
		probe:   probe,
		coord:   coord,
	})
}

// --- Subcommands -------------------------------------------------------------

func runRefresh(ctx context.Context, s *session) error {
	s.probe.Check(ctx)
	res, err := s.coord.RefreshAll(ctx)
	fmt.Printf("collection: %d  wishlist: %d  changed: %d\n",
		res.CollectionCount, res.WishlistCount, res.Changed)
	return err
}

func runDaemon(ctx context.Context, s *session) error {
	engine := syncp.NewEngine(s.coord, s.cfg.RefreshInterval, s.logger)
	s.monitor.OnChange(func(online bool) {
		if online {
			engine.Notify()
		}
	})

	s.probe.Check(ctx)
	go func() {
		if err := s.probe.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("connectivity probe stopped", "error", err)
		}
	}()

	s.logger.Info("daemon starting", "refresh_interval", s.cfg.RefreshInterval)
	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("refresh engine: %w", err)
	}
	s.logger.Info("shutdown complete")
	return nil
}

func runToggle(ctx context.Context, s *session) error {
	id, err := model.ParseIdentity(s.args[0], s.args[1])
	if err != nil {
		return fmt.Errorf("parsing album identity: %w", err)
	}
	f, err := model.ParseFlag(s.args[2])
	if err != nil {
		return err
	}

	if err := refreshBeforeEdit(ctx, s); err != nil {
		return err
	}

	m, err := s.coord.ToggleFlag(ctx, id, f)
	if err != nil {
		return err
	}
	value := "off"
	if a, _, ok := s.coord.Album(id); ok && a.Flags.Get(f) {
		value = "on"
	}
	// Excluded items live in the side-table, not in either store.
	if f == model.FlagExcludedFromTracking && m == model.Excluded {
		value = "on"
	}
	fmt.Printf("%s %s: %s (%s)\n", id, f, value, m)
	return nil
}

func runExclude(ctx context.Context, s *session, exclude bool) error {
	id, err := model.ParseIdentity(s.args[0], s.args[1])
	if err != nil {
		return fmt.Errorf("parsing album identity: %w", err)
	}
	if err := refreshBeforeEdit(ctx, s); err != nil {
		return err
	}
	if err := s.coord.ExcludeItem(ctx, id, exclude); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", id, s.coord.Membership(id))
	return nil
}

// refreshBeforeEdit syncs local state so an edit reads what the server holds.
// A partial refresh is fine; being offline is not.
func refreshBeforeEdit(ctx context.Context, s *session) error {
	if !s.probe.Check(ctx) {
		return fmt.Errorf("catalog API unreachable: %w", syncp.ErrNoConnection)
	}
	_, err := s.coord.RefreshAll(ctx)
	var fe *syncp.FetchError
	switch {
	case err == nil:
	case errors.As(err, &fe) && fe.Partial():
		s.logger.Warn("editing on a partially refreshed state", "error", err)
	case errors.Is(err, syncp.ErrNoConnection):
		// wifi-only mode blocks bulk downloads; edit against the cache.
		s.logger.Info("skipping refresh", "reason", err)
	default:
		return fmt.Errorf("refreshing before edit: %w", err)
	}
	return nil
}

func runLogout(ctx context.Context, s *session) error {
	if err := s.coord.Invalidate(ctx); err != nil {
		return err
	}
	fmt.Println("✓ Offline cache cleared.")
	if s.cfg.APIToken != "" {
		fmt.Printf("  Remove api_token from your config or unset %s to finish logging out.\n", config.TokenEnv)
	}
	return nil
}

// runStatus prints config and offline-cache state without touching the
// network.
func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Println("bdcollect status")
	fmt.Println("────────────────")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Printf("  Config:    %s (%v)\n", *cfgPath, err)
		return nil
	}
	fmt.Printf("  Config:    %s ✓\n", *cfgPath)
	fmt.Printf("  API URL:   %s\n", cfg.APIURL)
	fmt.Printf("  Refresh:   every %s\n", cfg.RefreshInterval)
	fmt.Printf("  Wifi only: %v\n", cfg.WifiOnly)

	info, err := os.Stat(cfg.CachePath)
	if err != nil {
		fmt.Printf("  Cache:     not found (%s)\n", cfg.CachePath)
		return nil
	}
	fmt.Printf("  Cache:     %s (%s)\n", cfg.CachePath, humanSize(info.Size()))

	cache, err := state.Open(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("opening offline cache: %w", err)
	}
	defer func() { _ = cache.Close() }()

	ctx := context.Background()
	empty, err := cache.IsEmpty(ctx)
	if err != nil {
		return fmt.Errorf("reading offline cache: %w", err)
	}
	if empty {
		fmt.Println("  Lists:     not cached yet, run 'bdcollect refresh'")
		return nil
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	coord := syncp.NewCoordinator(nil, nil, cache, syncp.Preferences{}, logger)
	if _, err := coord.WarmStart(ctx); err != nil {
		return fmt.Errorf("reading offline cache: %w", err)
	}
	counts := coord.Counts()
	fmt.Printf("  Owned:     %d\n", counts.Owned)
	fmt.Printf("  Wanted:    %d\n", counts.Wanted)
	fmt.Printf("  Excluded:  %d\n", counts.Excluded)

	last, err := coord.LastRefresh(ctx)
	switch {
	case err != nil:
		fmt.Printf("  Refreshed: unknown (%v)\n", err)
	case last.IsZero():
		fmt.Println("  Refreshed: never")
	default:
		fmt.Printf("  Refreshed: %s (%s ago)\n", last.Local().Format(time.DateTime), time.Since(last).Round(time.Second))
	}
	return nil
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
