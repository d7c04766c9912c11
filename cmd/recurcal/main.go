package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recurcal/internal/capture"
	"recurcal/internal/config"
	"recurcal/internal/configurator"
	"recurcal/internal/ics"
	appLog "recurcal/internal/log"
	"recurcal/internal/session"
	"recurcal/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	snapshot   string

	// Form state for -once.
	state stateFlags
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		if conf == nil {
			appLog.Error("failed to load config", err, "config_path", flags.configPath)
			os.Exit(1)
		}
		appLog.Warn("config file not written; using defaults", "config_path", flags.configPath, "error", err.Error())
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	loc, err := conf.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to UTC", err, "name", conf.Timezone)
	}

	appLog.Info("recurcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"preview_count", conf.PreviewCount,
		"max_sessions", conf.MaxSessions,
		"session_ttl", conf.SessionTTL().String(),
		"session_sweep", conf.SessionSweep,
		"once", flags.once,
		"snapshot", flags.snapshot,
	)

	if flags.once {
		if err := runOnce(os.Stdout, flags.state, loc, conf, time.Now()); err != nil {
			appLog.Error("derivation failed", err)
			os.Exit(1)
		}
		return
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

	if err := runServer(ctx, conf, loc, flags.snapshot); err != nil {
		appLog.Error("server stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("recurcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/recurcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Derive one preview from the state flags, print it and exit")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Start the server, capture the form page to this PNG and exit")

	flag.StringVar(&cfg.state.freq, "freq", "", "Frequency: daily, weekly, monthly, yearly")
	flag.StringVar(&cfg.state.interval, "interval", "", "Repeat every N units")
	flag.StringVar(&cfg.state.days, "days", "", "Weekly days, comma separated (MO,WE,FR)")
	flag.StringVar(&cfg.state.nth, "nth", "", "Monthly ordinal: 1-4 or -1 for last")
	flag.StringVar(&cfg.state.nthDay, "nth-day", "", "Monthly weekday (FR)")
	flag.StringVar(&cfg.state.start, "start", "", "Start date (yyyy-MM-dd or natural language)")
	flag.StringVar(&cfg.state.end, "end", "", "Inclusive end date (yyyy-MM-dd or natural language)")

	flag.Parse()

	return cfg
}

func runServer(ctx context.Context, conf *config.Config, loc *time.Location, snapshot string) error {
	store, err := session.NewStore(session.Options{
		MaxSessions: conf.MaxSessions,
		IdleTTL:     conf.SessionTTL(),
		Factory: func() *configurator.Configurator {
			return configurator.New(loc, configurator.WithPreviewCount(conf.PreviewCount))
		},
	})
	if err != nil {
		return err
	}
	sweeper, err := store.StartSweeper(conf.SessionSweep)
	if err != nil {
		return fmt.Errorf("session sweep schedule %q: %w", conf.SessionSweep, err)
	}
	defer sweeper.Stop()

	srv := web.NewServer(conf, store, ics.NewFetcher(15*time.Second))
	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if snapshot != "" {
		capErr := capture.CapturePreviewPNG(ctx, capture.CaptureOptions{
			URL:        snapshotURL(conf),
			OutputPath: snapshot,
		})
		if capErr == nil {
			appLog.Info("snapshot written", "path", snapshot)
		}
		return errors.Join(capErr, shutdown(httpSrv))
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	return shutdown(httpSrv)
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// snapshotURL is the loopback URL of the form page, with credentials when
// basic auth is on.
func snapshotURL(conf *config.Config) string {
	host, port, err := net.SplitHostPort(conf.Listen)
	if err != nil {
		host, port = "127.0.0.1", "8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	u := url.URL{Scheme: "http", Host: net.JoinHostPort(host, port), Path: "/"}
	if conf.BasicAuth != nil && conf.BasicAuth.Username != "" && conf.BasicAuth.Password != "" {
		u.User = url.UserPassword(conf.BasicAuth.Username, conf.BasicAuth.Password)
	}
	return u.String()
}
