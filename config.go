package main

import (
  "bytes"
  "errors"
  "fmt"
  "io"
  "os"
  "strings"
  "time"

  "github.com/joho/godotenv"
  "github.com/rs/zerolog/log"
  "github.com/spf13/cobra"
  "github.com/spf13/pflag"
  "gopkg.in/yaml.v3"

  "github.com/robertof/go-restclient-exporter/collector"
  "github.com/robertof/go-restclient-exporter/device"
  "github.com/robertof/go-restclient-exporter/param"
  "github.com/robertof/go-restclient-exporter/publish"
)

const envPrefix = "RESTCLIENT_"

type config struct {
  Debug bool `yaml:"debug"`
  Trace bool `yaml:"trace"`
  BindAddress string `yaml:"bind"`
  EnableMetamonitoring bool `yaml:"metamonitoring"`
  MaxRetries int `yaml:"max_retries"`
  InitialCollectionTimeout time.Duration `yaml:"initial_timeout"`
  CollectionTimeout time.Duration `yaml:"timeout"`
  CollectionInterval time.Duration `yaml:"interval"`
  CollectionIdleTimeout time.Duration `yaml:"idle_timeout"`
  Backoff time.Duration `yaml:"backoff"`
  MQTT publish.Config `yaml:"mqtt"`
  DeviceConfigs []deviceConfig `yaml:"devices"`

  Devices []device.Device `yaml:"-"`
}

// deviceConfig is one configured device instance: the declared type, its
// spec in `key=value,key=value` form and optional parameter definitions.
type deviceConfig struct {
  Type string `yaml:"type"`
  Spec string `yaml:"spec"`
  Params []param.Definition `yaml:"params"`
}

func defaultConfig() config {
  return config{
    BindAddress: "localhost:9102",
    EnableMetamonitoring: true,
    MaxRetries: collector.DefaultMaxRetries,
    InitialCollectionTimeout: 10 * time.Second,
    CollectionTimeout: collector.DefaultTimeoutPerAttempt,
    CollectionInterval: 60 * time.Second,
    CollectionIdleTimeout: -1,
    Backoff: collector.DefaultBackoffFactor,
  }
}

// boundDeviceList collects device specs given on the command line for one
// registered device type.
type boundDeviceList struct {
  name string
  list *[]deviceConfig
}

func (d *boundDeviceList) String() string {
  return ""
}

func (d *boundDeviceList) Set(v string) error {
  *d.list = append(*d.list, deviceConfig{Type: d.name, Spec: v})

  return nil
}

func (d *boundDeviceList) Type() string {
  return "spec"
}

// cliFlags holds command line values; they win over the configuration file
// when set explicitly.
type cliFlags struct {
  cfg config
  configFile string
  envFile string
  devices []deviceConfig
}

func registerFlags(cmd *cobra.Command, registry *device.Registry) *cliFlags {
  f := &cliFlags{cfg: defaultConfig()}
  flags := cmd.PersistentFlags()

  flags.StringVarP(&f.configFile, "config", "c", "", "YAML configuration file (or set " + envPrefix + "CONFIG)")
  flags.StringVar(&f.envFile, "env-file", ".env", "Environment file loaded before reading the configuration")
  flags.StringVar(&f.cfg.BindAddress, "bind", f.cfg.BindAddress, "Where the exporter will bind to")
  flags.BoolVar(&f.cfg.EnableMetamonitoring, "metamonitoring", f.cfg.EnableMetamonitoring, "Enable metamonitoring metrics")
  flags.IntVar(&f.cfg.MaxRetries, "max-retries", f.cfg.MaxRetries, "Max number of retries")
  flags.DurationVar(&f.cfg.InitialCollectionTimeout, "initial-timeout", f.cfg.InitialCollectionTimeout,
    "Timeout for the collection done on start (per retry attempt)")
  flags.DurationVar(&f.cfg.CollectionTimeout, "timeout", f.cfg.CollectionTimeout,
    "Timeout for the periodic collections (per retry attempt)")
  flags.DurationVar(&f.cfg.CollectionInterval, "interval", f.cfg.CollectionInterval,
    "How frequently data collection happens")
  flags.DurationVar(&f.cfg.CollectionIdleTimeout, "idle-timeout", f.cfg.CollectionIdleTimeout,
    "Timeout after which the collector is suspended if no data is read. Defaults to 3 * interval")
  flags.DurationVar(&f.cfg.Backoff, "backoff", f.cfg.Backoff, "Exponential backoff factor for retries")
  flags.StringVar(&f.cfg.MQTT.Broker, "mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883. Disabled when empty")
  flags.StringVar(&f.cfg.MQTT.Prefix, "mqtt-prefix", "", "MQTT topic prefix")
  flags.BoolVar(&f.cfg.Debug, "debug", false, "Enable debug logs")
  flags.BoolVar(&f.cfg.Trace, "trace", false, "Enable trace logs")

  for _, entry := range registry.Entries() {
    if entry.Factory == nil {
      continue
    }

    name := entry.Declaration.Name()
    help := "Device spec for this device in the form of `key=value,key=value`."

    if docs, ok := entry.Factory.(device.FactoryDocs); ok {
      help += "\n" + docs.Help()
    }

    flags.Var(&boundDeviceList{name: name, list: &f.devices}, name, help)
  }

  return f
}

// load builds the effective configuration: defaults, then the YAML file,
// then environment overrides, then explicitly set flags.
func (f *cliFlags) load(flags *pflag.FlagSet) (config, error) {
  if err := godotenv.Load(f.envFile); err != nil && !(errors.Is(err, os.ErrNotExist) && !flags.Changed("env-file")) {
    return config{}, fmt.Errorf("loading env file: %w", err)
  }

  cfg := defaultConfig()

  path := f.configFile
  if path == "" {
    path = os.Getenv(envPrefix + "CONFIG")
  }

  if path != "" {
    data, err := os.ReadFile(path)
    if err != nil {
      return config{}, fmt.Errorf("reading config file: %w", err)
    }

    if err := parseConfig(data, &cfg); err != nil {
      return config{}, err
    }
  }

  applyEnvOverrides(&cfg)
  f.applyChangedFlags(flags, &cfg)

  cfg.DeviceConfigs = append(cfg.DeviceConfigs, f.devices...)

  if cfg.CollectionIdleTimeout < 0 {
    cfg.CollectionIdleTimeout = cfg.CollectionInterval * 3
  }

  if err := cfg.Validate(); err != nil {
    return config{}, err
  }

  return cfg, nil
}

func parseConfig(data []byte, cfg *config) error {
  dec := yaml.NewDecoder(bytes.NewReader(data))
  dec.KnownFields(true)

  if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
    return fmt.Errorf("parsing config file: %w", err)
  }

  return nil
}

func applyEnvOverrides(cfg *config) {
  if v := os.Getenv(envPrefix + "BIND"); v != "" {
    cfg.BindAddress = v
  }

  if v := os.Getenv(envPrefix + "MQTT_BROKER"); v != "" {
    cfg.MQTT.Broker = v
  }

  if v := os.Getenv(envPrefix + "MQTT_USERNAME"); v != "" {
    cfg.MQTT.Username = v
  }

  if v := os.Getenv(envPrefix + "MQTT_PASSWORD"); v != "" {
    cfg.MQTT.Password = v
  }
}

func (f *cliFlags) applyChangedFlags(flags *pflag.FlagSet, cfg *config) {
  set := map[string]func(){
    "bind": func() { cfg.BindAddress = f.cfg.BindAddress },
    "metamonitoring": func() { cfg.EnableMetamonitoring = f.cfg.EnableMetamonitoring },
    "max-retries": func() { cfg.MaxRetries = f.cfg.MaxRetries },
    "initial-timeout": func() { cfg.InitialCollectionTimeout = f.cfg.InitialCollectionTimeout },
    "timeout": func() { cfg.CollectionTimeout = f.cfg.CollectionTimeout },
    "interval": func() { cfg.CollectionInterval = f.cfg.CollectionInterval },
    "idle-timeout": func() { cfg.CollectionIdleTimeout = f.cfg.CollectionIdleTimeout },
    "backoff": func() { cfg.Backoff = f.cfg.Backoff },
    "mqtt-broker": func() { cfg.MQTT.Broker = f.cfg.MQTT.Broker },
    "mqtt-prefix": func() { cfg.MQTT.Prefix = f.cfg.MQTT.Prefix },
    "debug": func() { cfg.Debug = f.cfg.Debug },
    "trace": func() { cfg.Trace = f.cfg.Trace },
  }

  flags.Visit(func(flag *pflag.Flag) {
    if apply, ok := set[flag.Name]; ok {
      apply()
    }
  })
}

func (c config) Validate() error {
  var errs []string

  if c.CollectionInterval <= 0 {
    errs = append(errs, "interval must be positive")
  }

  if c.MaxRetries < 0 {
    errs = append(errs, "max_retries must not be negative")
  }

  if c.MQTT.QoS > 2 {
    errs = append(errs, "mqtt.qos must be 0, 1, or 2")
  }

  for i, dc := range c.DeviceConfigs {
    if dc.Type == "" {
      errs = append(errs, fmt.Sprintf("devices[%d].type is required", i))
    }
  }

  if len(errs) > 0 {
    return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
  }

  return nil
}

// buildDevices instantiates every configured device whose declaration is
// auto-instantiated.
func buildDevices(registry *device.Registry, configs []deviceConfig) ([]device.Device, error) {
  var devices []device.Device

  names := make(map[string]bool)

  for _, dc := range configs {
    entry, ok := registry.Lookup(dc.Type)
    if !ok {
      return nil, fmt.Errorf("%w: %q", device.ErrUnknownDevice, dc.Type)
    }

    if !entry.Declaration.AutoInstantiate() {
      log.Warn().
        Stringer("Declaration", entry.Declaration).
        Msg("Skipping device whose declaration is not auto-instantiated")
      continue
    }

    dev, err := registry.FromSpec(dc.Type, device.NewSpec(dc.Spec))
    if err != nil {
      return nil, fmt.Errorf("failed to create %s device: %w", dc.Type, err)
    }

    if names[dev.Name()] {
      return nil, fmt.Errorf("duplicate device name %q", dev.Name())
    }

    names[dev.Name()] = true

    if len(dc.Params) > 0 {
      configurable, ok := dev.(device.Configurable)
      if !ok {
        return nil, fmt.Errorf("device %q does not accept parameter definitions", dev.Name())
      }

      if err := configurable.Configure(dc.Params); err != nil {
        return nil, err
      }
    }

    devices = append(devices, dev)
  }

  return devices, nil
}
