package main

import (
	"context"
	"net/http"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/bus/backing"
	"tradecore/internal/cache"
	"tradecore/internal/obs"
	"tradecore/internal/ops"
	"tradecore/pkg/conn"
	"tradecore/pkg/exception"
)

// openCacheBackend opens the configured cache database backend.
func openCacheBackend(ctx context.Context, cfg ops.CacheConfig) (cache.Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return cache.NewMemoryBackend(), nil
	case "pebble":
		return cache.OpenPebble(cfg.Dir)
	case "postgres":
		client, err := conn.NewPostgres(ctx, conn.PostgresOption{
			ConnString:      cfg.DSN,
			MaxOpenConns:    8,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		})
		if err != nil {
			return nil, err
		}
		return cache.NewPostgresBackend(client)
	case "redis":
		return cache.DialRedis(ctx, cfg.Addr, cfg.Password, cfg.DB)
	default:
		return nil, errors.Wrap(exception.ErrInvalidConfig, "cache backend").With("backend", cfg.Backend)
	}
}

// openBacking builds the bus stream mirror, or nil when streaming is off.
func openBacking(loaded ops.Loaded, metrics *obs.Metrics) (*backing.Streamer, error) {
	var sink backing.Sink
	switch loaded.Bus.Backing {
	case "", "none":
		return nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: loaded.Bus.RedisAddr})
		sink = backing.NewRedisSink(client, loaded.Bus.AutotrimMins)
	case "kafka":
		sink = backing.NewKafkaSink(backing.NewKafkaWriter(loaded.Bus.KafkaBrokers))
	default:
		return nil, errors.Wrap(exception.ErrInvalidConfig, "bus backing").With("backing", loaded.Bus.Backing)
	}
	ser, err := cache.NewSerializer(loaded.Cache.Config.Encoding)
	if err != nil {
		return nil, err
	}
	return backing.NewStreamer(loaded.Backing, sink, ser, metrics), nil
}

// serveMetrics exposes the engine metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, metrics *obs.Metrics) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(obs.NewCollector(metrics))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logs.Infof("node: metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "metrics server").With("addr", addr)
	}
	return nil
}

type emptyLogger struct{}

func (emptyLogger) Infof(string, ...any)  {}
func (emptyLogger) Debugf(string, ...any) {}
func (emptyLogger) Errorf(string, ...any) {}

// startProfiler starts continuous profiling. The returned stop func is never nil.
func startProfiler(cfg ops.ProfilingConfig, traderID string) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}
	name := cfg.AppName
	if name == "" {
		name = "tradecore.node"
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: name,
		ServerAddress:   cfg.ServerURL,
		Tags:            map[string]string{"trader": traderID},
		Logger:          emptyLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return func() {}, errors.Wrap(err, "start pyroscope")
	}
	return func() { _ = profiler.Stop() }, nil
}
