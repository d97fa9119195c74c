package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Techcyte/context-sync/core/logx"
	"github.com/Techcyte/context-sync/internal/config"
	"github.com/Techcyte/context-sync/internal/status"
	"github.com/Techcyte/context-sync/sdk/base/agent"
	"github.com/Techcyte/context-sync/sdk/base/ctxsync"
	"github.com/Techcyte/context-sync/sdk/contracts/syncmsg"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.ClientConfig
	cfg.BindFlags()
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "ctxsync-client version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("ctxsync-client version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
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
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logx.Log.Warn().Msg("termination requested")
		cancel()
	}()

	var client *ctxsync.Client
	opts := ctxsync.Options{
		URL:         cfg.URL,
		Version:     cfg.Version,
		Application: cfg.Application,
		Handlers: ctxsync.Handlers{
			OnConnected: func() { fmt.Println("connected to", cfg.URL) },
			OnSubscribed: func(rej *syncmsg.Rejection) {
				if rej != nil {
					fmt.Printf("subscription rejected (%d): %s\n", rej.Status, rej.Reason)
					return
				}
				fmt.Println("subscribed")
			},
			OnContextSwitched: func(c syncmsg.Context) { fmt.Println("context switched to case", c.CaseNumber()) },
			OnContextChangeRequested: func(c syncmsg.Context) {
				if cfg.AutoAccept {
					_ = client.Accept()
					return
				}
				fmt.Printf("host proposes case %s; type 'accept' or 'reject <reason>'\n", c.CaseNumber())
			},
			OnContextChangeRejected: func(reason string, c syncmsg.Context) {
				fmt.Printf("host rejected case %s: %s\n", c.CaseNumber(), reason)
			},
			OnClosed: func() { fmt.Println("disconnected; type 'connect' to open a new session") },
			OnError:  func(err *ctxsync.Error) { fmt.Println("error:", err.Message) },
		},
	}
	if cfg.Timeout > 0 {
		t := cfg.Timeout
		opts.Timeout = &t
	}
	if cfg.ReplaceExisting {
		r := true
		opts.ReplaceExistingClient = &r
	}
	client = ctxsync.New(opts)

	reg := prometheus.NewRegistry()
	ctxsync.RegisterMetrics(reg)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	agent.RegisterBuildInfo(reg, "client", version, buildSHA, buildDate)
	if cfg.MetricsAddr != "" {
		addr, err := agent.StartMetricsServer(ctx, cfg.MetricsAddr, reg)
		if err != nil {
			logx.Log.Fatal().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server")
		}
		logx.Log.Info().Str("addr", addr).Msg("metrics server started")
	}
	if cfg.StatusAddr != "" {
		vi := status.VersionInfo{Version: version, BuildSHA: buildSHA, BuildDate: buildDate}
		addr, err := agent.ServeUntilContext(ctx, cfg.StatusAddr, status.NewRouter(client, vi))
		if err != nil {
			logx.Log.Fatal().Err(err).Str("addr", cfg.StatusAddr).Msg("status server")
		}
		logx.Log.Info().Str("addr", addr).Msg("status server started")
	}

	if err := client.Connect(ctx); err != nil {
		logx.Log.Error().Err(err).Msg("connect failed; type 'connect' to retry")
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()
	for {
		select {
		case <-ctx.Done():
			_ = client.Close()
			return
		case line, ok := <-lines:
			if !ok {
				_ = client.Close()
				return
			}
			quit, err := runCommand(ctx, client, os.Stdout, line)
			// engine failures were already printed by OnError
			var se *ctxsync.Error
			if err != nil && !errors.As(err, &se) {
				fmt.Println(err)
			}
			if quit {
				_ = client.Close()
				return
			}
		}
	}
}
