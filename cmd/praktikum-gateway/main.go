package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/praktikumlab/go-praktikum/cache"
	"github.com/praktikumlab/go-praktikum/config"
	"github.com/praktikumlab/go-praktikum/logger"
	"github.com/praktikumlab/go-praktikum/offline"
	"github.com/praktikumlab/go-praktikum/outbox"
	"github.com/praktikumlab/go-praktikum/session"
	"github.com/praktikumlab/go-praktikum/telemetry"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "praktikum-gateway",
	Short: "Offline-first gateway for the praktikum kebidanan backend",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the caching gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := logger.NewConsoleLogger(logger.GetLevelFromEnv())
		shutdownTelemetry := func() {}
		if cfg.Telemetry.CollectorURL != "" {
			otelLog, shutdown, err := telemetry.New(ctx, cfg.Telemetry.CollectorURL, cfg.Telemetry.AuthToken, cfg.Telemetry.ServiceName)
			if err != nil {
				return err
			}
			log = otelLog
			shutdownTelemetry = shutdown
		}
		defer shutdownTelemetry()

		return serve(ctx, cfg, log)
	},
}

func init() {
	serveCmd.Flags().String("config", "praktikum.yaml", "path to the configuration file")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func newStore(ctx context.Context, cfg config.Config) (cache.Cache, *redis.Client, error) {
	expires := cache.WithExpires(cfg.Cache.Expires.Std())
	switch cfg.Cache.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, err
		}
		return cache.NewRedis(client, expires), client, nil
	case "sqlite":
		store, err := cache.NewSQLite(ctx, cfg.Cache.Path, expires)
		if err != nil {
			return nil, nil, err
		}
		// Memory in front of sqlite: reads hit the map, writes and
		// generation drops land in both.
		return cache.NewComposite(cache.NewInMemory(ctx, expires), store), nil, nil
	default:
		return cache.NewInMemory(ctx, expires), nil, nil
	}
}

// logNotifier surfaces push notifications in the gateway log until a real
// delivery channel exists.
type logNotifier struct{ log logger.Logger }

func (n logNotifier) Show(_ context.Context, note offline.Notification) error {
	n.log.Info("push: %s - %s", note.Title, note.Body)
	return nil
}

func (n logNotifier) OpenOrFocus(_ context.Context, url string) error {
	n.log.Info("open %s", url)
	return nil
}

func serve(ctx context.Context, cfg config.Config, log logger.Logger) error {
	store, redisClient, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	ocfg := offline.DefaultConfig(cfg.Version)
	ocfg.Origin = cfg.Upstream
	ocfg.SkipWaiting = cfg.Offline.SkipWaiting
	if len(cfg.Offline.Precache) > 0 {
		ocfg.Precache = cfg.Offline.Precache
	}
	if cfg.Offline.OfflinePath != "" {
		ocfg.OfflinePath = cfg.Offline.OfflinePath
	}
	if cfg.Offline.SnapshotTTL.Std() > 0 {
		ocfg.SnapshotTTL = cfg.Offline.SnapshotTTL.Std()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := offline.NewMetrics(registry)

	ctrl, err := offline.New(ocfg, store, log, offline.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer ctrl.Close()
	if err := ctrl.Install(ctx); err != nil {
		return err
	}

	queue, err := outbox.Open(cfg.Outbox.Path)
	if err != nil {
		return err
	}
	defer queue.Close()
	flusher := outbox.NewFlusher(queue, cfg.Outbox.SyncURL, log)

	var manager *session.Manager
	if cfg.Auth.BaseURL != "" {
		auth := session.NewHTTPAuthClient(cfg.Auth.BaseURL, cfg.Auth.APIKey, log)
		manager = session.NewManager(session.Config{
			SessionTimeout:   cfg.Session.Timeout.Std(),
			WarningTimeout:   cfg.Session.Warning.Std(),
			CheckInterval:    cfg.Session.CheckInterval.Std(),
			RefreshInterval:  cfg.Session.RefreshInterval.Std(),
			RefreshWindow:    cfg.Session.RefreshWindow.Std(),
			ActivityThrottle: cfg.Session.ActivityThrottle.Std(),
		}, auth, log,
			session.WithWarningFunc(func(remaining time.Duration) {
				log.Warn("session expires in %s", remaining.Round(time.Second))
			}),
			session.WithSignOutFunc(func(reason string) {
				log.Info("signed out: %s", reason)
			}),
		)
	}

	upstream, err := url.Parse(cfg.Upstream)
	if err != nil {
		return err
	}
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.Transport = ctrl

	var app http.Handler = proxy
	if manager != nil {
		// Each authenticated request through the gateway counts as user
		// activity; the manager's throttle absorbs bursts.
		app = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				manager.Activity()
			}
			proxy.ServeHTTP(w, r)
		})
	}

	mux := http.NewServeMux()
	mux.Handle("/ws/control", offline.NewControlServer(ctrl, log))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /outbox/kuis", func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec, err := queue.Enqueue(r.Context(), outbox.KindKuisAttempt, payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		flusher.Trigger(outbox.TagSyncKuisData)
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintln(w, rec.ID)
	})
	mux.Handle("/", app)

	server := &http.Server{Addr: cfg.Listen, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("gateway listening on %s (cache %s, version %s)", cfg.Listen, cfg.Cache.Backend, cfg.Version)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := flusher.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	if redisClient != nil {
		notifier := logNotifier{log: log}
		sub := offline.NewPushSubscriber(redisClient, notifier, notifier, cfg.Upstream, log)
		g.Go(func() error {
			err := sub.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	if manager != nil {
		g.Go(func() error {
			err := manager.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
