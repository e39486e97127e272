// coordd runs the coordination layer as a small standalone service:
// health and stats endpoints, prometheus metrics, and demo routes showing
// the response-cache and rate-limit adapters in front of the shared
// store. The real application mounts the same adapters inside its own
// router; coordd exists for operations and local development.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/choukidar/go-coord/coord"
	"github.com/choukidar/go-coord/lock"
	"github.com/choukidar/go-coord/stream"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "coordd",
		Short:         "coordination layer daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to yaml config")

	if err := root.Execute(); err != nil {
		logger := zerolog.New(os.Stderr)
		logger.Error().Err(err).Msg("coordd failed")
		os.Exit(1)
	}
}

func run(configPath string) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	opts, err := coordOptions(cfg)
	if err != nil {
		return err
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return err
	}
	client := redis.NewClient(redisOpts)
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Ping(ctx).Err(); err != nil {
		// The layer fails open, so a dead store is a warning, not a
		// startup failure.
		logger.Warn().Err(err).Str("url", cfg.RedisURL).Msg("backing store unreachable, starting degraded")
	}

	c := coord.New(client, logger, opts...)

	reg := prometheus.NewRegistry()
	if err := c.Stats.Register(reg); err != nil {
		return err
	}

	go c.Run(ctx)

	window, err := duration(cfg.RateLimit.Window)
	if err != nil {
		return err
	}
	if window <= 0 {
		window = time.Minute
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(c, reg, cfg.RateLimit.Requests, window),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.Addr).Msg("coordd listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func coordOptions(cfg Config) ([]coord.Option, error) {
	opts := []coord.Option{coord.WithPrefix(cfg.Prefix)}

	defTTL, err := duration(cfg.Cache.DefaultTTL)
	if err != nil {
		return nil, err
	}
	shortTTL, err := duration(cfg.Cache.ShortTTL)
	if err != nil {
		return nil, err
	}
	longTTL, err := duration(cfg.Cache.LongTTL)
	if err != nil {
		return nil, err
	}
	if defTTL > 0 || shortTTL > 0 || longTTL > 0 {
		opts = append(opts, coord.WithTTLClasses(defTTL, shortTTL, longTTL))
	}

	var lockOpts []lock.Option
	if d, err := duration(cfg.Lock.TTL); err != nil {
		return nil, err
	} else if d > 0 {
		lockOpts = append(lockOpts, lock.WithDefaultTTL(d))
	}
	if d, err := duration(cfg.Lock.RetryDelay); err != nil {
		return nil, err
	} else if d > 0 {
		lockOpts = append(lockOpts, lock.WithRetryDelay(d))
	}
	if cfg.Lock.MaxRetries > 0 {
		lockOpts = append(lockOpts, lock.WithMaxRetries(cfg.Lock.MaxRetries))
	}
	if len(lockOpts) > 0 {
		opts = append(opts, coord.WithLockOptions(lockOpts...))
	}

	var streamOpts []stream.Option
	if cfg.Stream.Capacity > 0 {
		streamOpts = append(streamOpts, stream.WithCapacity(cfg.Stream.Capacity))
	}
	if d, err := duration(cfg.Stream.Retention); err != nil {
		return nil, err
	} else if d > 0 {
		streamOpts = append(streamOpts, stream.WithRetention(d))
	}
	if d, err := duration(cfg.Stream.SweepInterval); err != nil {
		return nil, err
	} else if d > 0 {
		streamOpts = append(streamOpts, stream.WithSweepInterval(d))
	}
	if len(streamOpts) > 0 {
		opts = append(opts, coord.WithStreamOptions(streamOpts...))
	}

	return opts, nil
}
