package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Techcyte/context-sync/core/logx"
	"github.com/Techcyte/context-sync/core/secret"
	"github.com/Techcyte/context-sync/internal/config"
	"github.com/Techcyte/context-sync/internal/host"
	"github.com/Techcyte/context-sync/sdk/base/agent"
	"github.com/Techcyte/context-sync/sdk/contracts/syncmsg"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.HostConfig
	cfg.BindFlags()
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "ctxsync-host version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("ctxsync-host version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	logx.Configure(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initial := syncmsg.Context{
		{Key: "patient", Value: "p-123456"},
		{Key: "order", Value: "o-654321"},
		{Key: syncmsg.CaseNumber, Value: cfg.StartingCase},
	}
	var store host.Store = host.NewMemoryStore(initial)
	if cfg.RedisAddr != "" {
		rs, err := host.NewRedisStore(ctx, cfg.RedisAddr, initial)
		if err != nil {
			logx.Log.Fatal().Err(err).Str("addr", secret.MaskURL(cfg.RedisAddr)).Msg("connect redis")
		}
		defer func() { _ = rs.Close() }()
		store = rs
		logx.Log.Info().Str("addr", secret.MaskURL(cfg.RedisAddr)).Msg("using redis context store")
	}

	reg := prometheus.NewRegistry()
	host.RegisterMetrics(reg)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	agent.RegisterBuildInfo(reg, "host", version, buildSHA, buildDate)

	m := host.NewManager(host.Options{
		Application: cfg.Application,
		Timeout:     cfg.Timeout,
		AutoAccept:  cfg.AutoAccept,
		Store:       store,
	})
	rc := host.RouterConfig{WSPath: cfg.WSPath, AllowedOrigins: cfg.AllowedOrigins}
	if cfg.MetricsAddr == "" {
		rc.Gatherer = reg
	} else {
		addr, err := agent.StartMetricsServer(ctx, cfg.MetricsAddr, reg)
		if err != nil {
			logx.Log.Fatal().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server")
		}
		logx.Log.Info().Str("addr", addr).Msg("metrics server starting")
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           host.NewRouter(m, rc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logx.Log.Warn().Msg("termination requested")
		cancel()
	}()
	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
	}()

	logx.Log.Info().Int("port", cfg.Port).Str("ws_path", cfg.WSPath).Bool("auto_accept", cfg.AutoAccept).Msg("host starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
}
