package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/redis/go-redis/v9"
	"github.com/temoto/udpinsert/admin"
	"github.com/temoto/udpinsert/config"
	"github.com/temoto/udpinsert/log2"
	"github.com/temoto/udpinsert/sink"
	"github.com/temoto/udpinsert/tele"
	telenet "github.com/temoto/udpinsert/tele/net"
)

var log = log2.NewStderr(log2.LInfo)

func main() {
	flagConfig := flag.String("config", "udpinsert.hcl", "")
	flagDebug := flag.Bool("debug", false, "debug logging, overrides config log_debug")
	flag.Parse()

	if sdnotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	}

	cfg := config.MustReadConfig(log, config.NewOsFullReader(), *flagConfig)
	if cfg.LogDebug || *flagDebug {
		log.SetLevel(log2.LDebug)
	}

	registry, err := cfg.Registry(log)
	if err != nil {
		// valid schemas are still registered
		log.Errorf("schema load errors:\n%v", err)
	}
	if registry.Len() == 0 {
		log.Fatal("no valid schema, check `schema` blocks and schema_files")
	}
	for _, s := range registry.Schemas() {
		log.Infof("schema %s", s.String())
	}

	out, closers, err := newSink(cfg)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	var guard telenet.ReplayGuard
	if cfg.Replay.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Replay.RedisAddr, DB: cfg.Replay.RedisDB})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Fatal(errors.ErrorStack(errors.Annotatef(err, "redis addr=%s", cfg.Replay.RedisAddr)))
		}
		guard = telenet.NewRedisGuard(rdb, cfg.Replay.RedisPrefix, cfg.MaxDeltaT())
		closers = append(closers, rdb)
		log.Infof("replay guard redis addr=%s", cfg.Replay.RedisAddr)
	}

	server, err := telenet.NewServer(telenet.ServerOptions{
		Log:             log,
		Registry:        registry,
		Sink:            out,
		Guard:           guard,
		MaxDeltaT:       cfg.MaxDeltaT(),
		ForwardTimeout:  cfg.ForwardTimeout(),
		ShutdownTimeout: cfg.ShutdownTimeout(),
	})
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	listens := make([]telenet.ListenOptions, 0, len(cfg.ListenURLs()))
	for _, u := range cfg.ListenURLs() {
		listens = append(listens, telenet.ListenOptions{PacketURL: u})
	}
	if err = server.Listen(context.Background(), listens); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	log.Infof("listen %v max_delta=%ds", server.Addrs(), cfg.MaxDeltaT())

	stats := map[string]fmt.Stringer{"server": server.Stat()}
	for _, c := range closers {
		if sp, ok := c.(*sink.Spool); ok {
			stats["spool"] = sp.Stat()
		}
	}
	admin.PublishStats("udpinsert_", stats)
	var adminServer *http.Server
	if cfg.AdminListen != "" {
		adminServer = &http.Server{
			Addr: cfg.AdminListen,
			Handler: admin.NewRouter(admin.Options{
				Log:        log,
				Registry:   registry,
				Stats:      stats,
				LastAccept: server.LastAccept,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("admin listen=%s err=%v", cfg.AdminListen, err)
			}
		}()
		log.Infof("admin listen=%s", cfg.AdminListen)
	}

	sdnotify(daemon.SdNotifyReady)
	log.Infof("running")

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigch
	log.Infof("signal=%v shutting down", sig)
	sdnotify(daemon.SdNotifyStopping)

	if adminServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = adminServer.Shutdown(ctx)
		cancel()
	}
	if err = server.Close(); err != nil {
		log.Error(err)
	}
	for _, c := range closers {
		if err = c.Close(); err != nil {
			log.Error(err)
		}
	}
	log.Infof("stat=%s", server.Stat().String())
}

// newSink wires configured destinations.
// Spool, when enabled, wraps all of them so outage of any destination does not lose data.
func newSink(cfg *config.Config) (tele.Sink, []io.Closer, error) {
	closers := make([]io.Closer, 0, 2)
	outs := make(sink.Multi, 0, 2)
	if cfg.Sink.InfluxURL != "" {
		influx, err := sink.NewInflux(sink.InfluxOptions{
			Log:     log,
			URL:     cfg.Sink.InfluxURL,
			Timeout: cfg.InfluxTimeout(),
		})
		if err != nil {
			return nil, nil, err
		}
		outs = append(outs, influx)
		log.Infof("sink influx url=%s", cfg.Sink.InfluxURL)
	}
	if cfg.Sink.MqttBroker != "" {
		m, err := sink.NewMqtt(sink.MqttOptions{
			Log:         log,
			Broker:      cfg.Sink.MqttBroker,
			ClientID:    cfg.Sink.MqttClientId,
			TopicPrefix: cfg.MqttTopicPrefix(),
			Qos:         1,
			Timeout:     cfg.ForwardTimeout(),
		})
		if err != nil {
			return nil, nil, err
		}
		outs = append(outs, m)
		closers = append(closers, m)
		log.Infof("sink mqtt broker=%s", cfg.Sink.MqttBroker)
	}
	if len(outs) == 0 {
		log.Errorf("no sink configured, accepted telemetry is discarded")
		return tele.Noop{}, closers, nil
	}

	var out tele.Sink = outs
	if cfg.Sink.SpoolPath != "" {
		spool, err := sink.NewSpool(sink.SpoolOptions{
			Log:     log,
			Path:    cfg.Sink.SpoolPath,
			Next:    outs,
			Timeout: cfg.ForwardTimeout(),
		})
		if err != nil {
			return nil, nil, err
		}
		// spool drains into sinks, close it first
		closers = append([]io.Closer{spool}, closers...)
		out = spool
		log.Infof("sink spool path=%s", cfg.Sink.SpoolPath)
	}
	return out, closers, nil
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
