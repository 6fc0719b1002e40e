package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"smsgate/internal/channel"
	"smsgate/internal/config"
	"smsgate/internal/dedupe"
	"smsgate/internal/dispatch"
	"smsgate/internal/gateway"
	"smsgate/internal/maintenance"
	"smsgate/internal/ratelimit"
	"smsgate/internal/storage"
	logx "smsgate/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	defer func() { _ = logSvc.Close() }()
	mgr.SetLogger(log)

	store, err := openStore(cfg, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	limiter, err := buildLimiter(cfg, store, log)
	if err != nil {
		return err
	}
	dedup, err := buildDedup(cfg, store, log)
	if err != nil {
		return err
	}

	channels, err := buildChannels(cfg.Channels, log)
	if err != nil {
		return fmt.Errorf("build channels: %w", err)
	}
	coord := dispatch.New(channels, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := gateway.NewMetrics(reg)

	pipeline := gateway.NewPipeline(cfg.Server.Token, cfg.Server.Debug, limiter, dedup, coord, metrics, log)

	srvCfg, err := serverConfig(cfg.Server)
	if err != nil {
		return err
	}
	srv := gateway.NewServer(srvCfg, pipeline, reg, log)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	defer srv.Stop(context.Background())

	var maint *maintenance.Service
	if cfg.Maintenance.Enabled {
		maint, err = maintenance.New(store, cfg.Maintenance.Schedule, log)
		if err != nil {
			return fmt.Errorf("maintenance schedule: %w", err)
		}
		maint.Start()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			maint.Stop(sctx)
			scancel()
		}()
	}

	// Live reload of the cheap knobs; credentials and the listener address
	// take effect on restart.
	sub := mgr.Subscribe(4)
	defer mgr.Unsubscribe(sub)
	go func() { _ = mgr.Watch(ctx) }()
	go func() {
		for next := range sub {
			if next == nil {
				continue
			}
			logSvc.Apply(logx.Config{
				Level:   next.Logging.Level,
				Console: next.Logging.Console,
				File:    logx.FileConfig{Enabled: next.Logging.File.Enabled, Path: next.Logging.File.Path},
			})
			pipeline.Apply(next.Server.Token, next.Server.Debug)
			if p, err := ratePolicy(next.RateLimit); err == nil {
				limiter.Apply(p)
			} else {
				log.Warn("rate_limit config ignored", logx.Err(err))
			}
			if o, err := dedupeOptions(next.Dedupe); err == nil {
				dedup.Apply(o)
			} else {
				log.Warn("dedupe config ignored", logx.Err(err))
			}
			log.Info("config reloaded")
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("smsgate started", logx.String("addr", srv.Addr()))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	return nil
}

func openStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc := storage.Config{}
	if cfg.Storage != nil {
		sc.Driver = cfg.Storage.Driver
		sc.Path = cfg.Storage.Path
		bt, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		sc.BusyTimeout = bt
	}
	return storage.Open(sc, log)
}

func ratePolicy(rc config.RateLimitConfig) (ratelimit.Policy, error) {
	w, err := config.ParseDurationOrDefault("rate_limit.window", rc.Window, time.Minute)
	if err != nil {
		return ratelimit.Policy{}, err
	}
	return ratelimit.Policy{Window: w, MaxRequests: rc.MaxRequests}, nil
}

func dedupeOptions(dc config.DedupeConfig) (dedupe.Options, error) {
	ttl, err := config.ParseDurationOrDefault("dedupe.ttl", dc.TTL, 300*time.Second)
	if err != nil {
		return dedupe.Options{}, err
	}
	return dedupe.Options{TTL: ttl, PrefixLen: dc.PrefixLen}, nil
}

func buildLimiter(cfg *config.Config, store storage.Store, log logx.Logger) (*ratelimit.Limiter, error) {
	p, err := ratePolicy(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	return ratelimit.New(store, p, log), nil
}

func buildDedup(cfg *config.Config, store storage.Store, log logx.Logger) (*dedupe.Deduplicator, error) {
	o, err := dedupeOptions(cfg.Dedupe)
	if err != nil {
		return nil, err
	}
	return dedupe.New(store, o, log), nil
}

func buildChannels(cc config.ChannelsConfig, log logx.Logger) ([]channel.Channel, error) {
	sender := channel.NewSender(cc.SendRatePerSec, log)

	tg, err := channel.NewTelegram(cc.Telegram.Token, cc.Telegram.ChatID, log)
	if err != nil {
		return nil, err
	}

	return []channel.Channel{
		channel.NewFeishu(cc.Feishu.Webhook, sender),
		channel.NewWecom(cc.Wecom.Webhook, sender),
		channel.NewDingtalk(cc.Dingtalk.Webhook, cc.Dingtalk.Secret, sender),
		channel.NewBark(cc.Bark.Server, cc.Bark.Keys, sender),
		tg,
	}, nil
}

func serverConfig(sc config.ServerConfig) (gateway.ServerConfig, error) {
	rt, err := config.ParseDurationField("server.read_timeout", sc.ReadTimeout)
	if err != nil {
		return gateway.ServerConfig{}, err
	}
	wt, err := config.ParseDurationField("server.write_timeout", sc.WriteTimeout)
	if err != nil {
		return gateway.ServerConfig{}, err
	}
	it, err := config.ParseDurationField("server.idle_timeout", sc.IdleTimeout)
	if err != nil {
		return gateway.ServerConfig{}, err
	}
	st, err := config.ParseDurationField("server.shutdown_timeout", sc.ShutdownTimeout)
	if err != nil {
		return gateway.ServerConfig{}, err
	}
	return gateway.ServerConfig{
		Addr:            sc.Addr,
		ReadTimeout:     rt,
		WriteTimeout:    wt,
		IdleTimeout:     it,
		ShutdownTimeout: st,
		MetricsEnabled:  sc.MetricsEnabled,
	}, nil
}
