package main

import (
  "context"
  "errors"
  "fmt"
  "net/http"
  "os"
  "os/signal"
  "syscall"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/prometheus/client_golang/prometheus/collectors"
  "github.com/prometheus/client_golang/prometheus/promhttp"
  "github.com/rs/zerolog"
  "github.com/rs/zerolog/log"
  "github.com/spf13/cobra"

  "github.com/robertof/go-restclient-exporter/collector"
  "github.com/robertof/go-restclient-exporter/device"
  "github.com/robertof/go-restclient-exporter/device/restclient"
  "github.com/robertof/go-restclient-exporter/metrics"
  "github.com/robertof/go-restclient-exporter/publish"
  "github.com/robertof/go-restclient-exporter/rest"
  "github.com/robertof/go-restclient-exporter/utils"
)

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  if err := restclient.Register(device.DefaultRegistry); err != nil {
    log.Fatal().Err(err).Msg("Failed to register device declarations")
  }

  ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
  defer stop()

  if err := newRootCmd(device.DefaultRegistry).ExecuteContext(ctx); err != nil {
    log.Error().Err(err).Msg("Command failed")
    stop()
    os.Exit(1)
  }
}

func setupLogging(cfg config) {
  if cfg.Trace || os.Getenv("TRACE") != "" {
    zerolog.SetGlobalLevel(zerolog.TraceLevel)
  } else if cfg.Debug || os.Getenv("DEBUG") != "" {
    zerolog.SetGlobalLevel(zerolog.DebugLevel)
  } else {
    zerolog.SetGlobalLevel(zerolog.InfoLevel)
  }
}

func newRootCmd(registry *device.Registry) *cobra.Command {
  var cfg config

  root := &cobra.Command{
    Use: "restclient-exporter",
    Short: "Poll REST devices and export their parameters",
    SilenceUsage: true,
    SilenceErrors: true,
  }

  flags := registerFlags(root, registry)

  // every command but devices needs the full configuration.
  loadConfig := func(cmd *cobra.Command, args []string) (err error) {
    cfg, err = flags.load(cmd.Flags())
    if err != nil {
      return err
    }

    setupLogging(cfg)

    cfg.Devices, err = buildDevices(registry, cfg.DeviceConfigs)
    return err
  }

  requireDevices := func(cmd *cobra.Command, args []string) error {
    if err := loadConfig(cmd, args); err != nil {
      return err
    }

    if len(cfg.Devices) == 0 {
      return errors.New("at least one device is required")
    }

    return nil
  }

  root.AddCommand(
    &cobra.Command{
      Use: "devices",
      Short: "List the registered device declarations",
      Args: cobra.NoArgs,
      RunE: func(cmd *cobra.Command, args []string) error {
        return printDeclarations(cmd.OutOrStdout(), registry)
      },
    },
    &cobra.Command{
      Use: "describe",
      Aliases: []string{"discover"},
      Short: "Fetch every parameter of the configured devices and print them",
      Args: cobra.NoArgs,
      PreRunE: requireDevices,
      RunE: func(cmd *cobra.Command, args []string) error {
        return doParamDiscovery(cmd.Context(), cmd.OutOrStdout(), cfg)
      },
    },
    &cobra.Command{
      Use: "get DEVICE PARAM",
      Short: "Fetch a single parameter",
      Args: cobra.ExactArgs(2),
      PreRunE: requireDevices,
      RunE: func(cmd *cobra.Command, args []string) error {
        return doGet(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], args[1])
      },
    },
    newPutCmd(&cfg, requireDevices),
    &cobra.Command{
      Use: "serve",
      Short: "Poll the configured devices and serve Prometheus metrics",
      Args: cobra.NoArgs,
      PreRunE: requireDevices,
      RunE: func(cmd *cobra.Command, args []string) error {
        return serve(cmd.Context(), cfg)
      },
    },
  )

  return root
}

func serve(ctx context.Context, cfg config) error {
  log.Info().
    Str("BindAddr", cfg.BindAddress).
    Array("Devices", utils.ToZeroLogArray(cfg.Devices)).
    Dur("Interval", cfg.CollectionInterval).
    Msg("Starting with the specified configuration")

  coll := collector.NewRecurring(cfg.Devices)
  coll.IdleTimeout = cfg.CollectionIdleTimeout

  if cfg.MQTT.Enabled() {
    publisher, err := publish.Connect(cfg.MQTT)
    if err != nil {
      return err
    }
    defer publisher.Close()

    coll.OnUpdate(func(readings map[device.Device]device.Reading, ts time.Time) {
      if err := publisher.Publish(readings, ts); err != nil {
        log.Warn().Err(err).Msg("Failed to publish readings")
      }
    })
  }

  collectInitialReadings(ctx, cfg, coll)

  registry := prometheus.NewRegistry()

  if cfg.EnableMetamonitoring {
    registry.MustRegister(
      collectors.NewGoCollector(),
      collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
    )
    rest.RegisterMetrics(registry)
  }

  metrics.RegisterCollector(
    func() (map[device.Device]device.Reading, time.Time) {
      // no way to get the HTTP request context from the collector unfortunately :(
      return coll.WaitLatest(ctx)
    },
    registry,
  )

  go coll.Start(
    ctx,
    cfg.CollectionInterval,
    collector.CollectionOptions{
      TimeoutPerAttempt: cfg.CollectionTimeout,
      MaxRetries: cfg.MaxRetries,
      BackoffFactor: cfg.Backoff,
    },
  )

  log.Info().
      Str("ListenAddress", cfg.BindAddress).
      Msg("Starting Prometheus server")

  mux := http.NewServeMux()
  mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

  server := &http.Server{
    Addr: cfg.BindAddress,
    Handler: mux,
    ReadHeaderTimeout: 10 * time.Second,
  }

  go func() {
    <-ctx.Done()

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5 * time.Second)
    defer cancel()

    _ = server.Shutdown(shutdownCtx)
  }()

  if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
    return fmt.Errorf("unable to bind on requested address: %w", err)
  }

  return nil
}

// collectInitialReadings primes the collector. Devices that fail are only
// reported: their parameters are exported as disconnected until they answer.
func collectInitialReadings(ctx context.Context, cfg config, coll *collector.Recurring) {
  log.Info().
    Dur("TimeoutSec", cfg.InitialCollectionTimeout).
    Msg("Running initial collection for the provided devices")

  err := coll.Prime(ctx, collector.CollectionOptions{
    TimeoutPerAttempt: cfg.InitialCollectionTimeout,
    MaxRetries: cfg.MaxRetries,
    BackoffFactor: cfg.Backoff,
  })

  readings, _ := coll.Latest()

  for dev, reading := range readings {
    log.Info().
      Stringer("Device", dev).
      Int("Disconnected", reading.Disconnected()).
      Msg("Collected initial reading for device")
  }

  switch {
  case err == nil:
  case utils.IsCancellation(err) && ctx.Err() != nil:
    log.Debug().Err(err).Msg("Initial collection interrupted")
  default:
    log.Error().
      Err(err).
      Msg("Initial collection failed for at least one device")
  }
}
