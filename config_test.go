package main

import (
  "os"
  "path/filepath"
  "testing"
  "time"

  "github.com/spf13/cobra"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"

  "github.com/robertof/go-restclient-exporter/device"
  "github.com/robertof/go-restclient-exporter/device/restclient"
  "github.com/robertof/go-restclient-exporter/param"
)

func testRegistry(t *testing.T) *device.Registry {
  t.Helper()

  reg := device.NewRegistry()
  require.NoError(t, restclient.Register(reg))
  require.NoError(t, reg.Register(device.MustDeclaration("manual", []string{"manual"}, false), &restclient.Factory{}))

  return reg
}

func TestParseConfig(t *testing.T) {
  cfg := defaultConfig()

  err := parseConfig([]byte(`
interval: 30s
max_retries: 4
mqtt:
  broker: tcp://localhost:1883
devices:
  - type: restClient
    spec: host=10.0.0.5,port=8080
    params:
      - name: temperature
        type: float
        subsystem: sensors
        endpoint: temperature
`), &cfg)

  require.NoError(t, err)
  assert.Equal(t, 30 * time.Second, cfg.CollectionInterval)
  assert.Equal(t, 4, cfg.MaxRetries)
  assert.Equal(t, "localhost:9102", cfg.BindAddress)
  assert.True(t, cfg.MQTT.Enabled())
  require.Len(t, cfg.DeviceConfigs, 1)
  assert.Equal(t, "restClient", cfg.DeviceConfigs[0].Type)
  require.Len(t, cfg.DeviceConfigs[0].Params, 1)
  assert.Equal(t, param.TypeDouble, cfg.DeviceConfigs[0].Params[0].Type)

  assert.Error(t, parseConfig([]byte("unknown_key: 1\n"), &cfg))
  assert.NoError(t, parseConfig(nil, &cfg))
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
  t.Setenv(envPrefix + "BIND", "")
  t.Setenv(envPrefix + "CONFIG", "")

  path := filepath.Join(t.TempDir(), "config.yaml")
  require.NoError(t, os.WriteFile(path, []byte("bind: 127.0.0.1:1000\ninterval: 20s\n"), 0o600))

  cmd := &cobra.Command{Use: "test"}
  f := registerFlags(cmd, testRegistry(t))

  require.NoError(t, cmd.PersistentFlags().Parse([]string{
    "--config", path,
    "--max-retries", "7",
    "--restClient", "host=10.0.0.5",
    "--restClient", "host=10.0.0.6,name=second",
  }))

  cfg, err := f.load(cmd.PersistentFlags())
  require.NoError(t, err)

  assert.Equal(t, "127.0.0.1:1000", cfg.BindAddress)
  assert.Equal(t, 20 * time.Second, cfg.CollectionInterval)
  assert.Equal(t, 60 * time.Second, cfg.CollectionIdleTimeout)
  assert.Equal(t, 7, cfg.MaxRetries)
  assert.Equal(t, []deviceConfig{
    {Type: "restClient", Spec: "host=10.0.0.5"},
    {Type: "restClient", Spec: "host=10.0.0.6,name=second"},
  }, cfg.DeviceConfigs)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
  t.Setenv(envPrefix + "CONFIG", "")
  t.Setenv(envPrefix + "BIND", ":9999")

  cmd := &cobra.Command{Use: "test"}
  f := registerFlags(cmd, testRegistry(t))
  require.NoError(t, cmd.PersistentFlags().Parse(nil))

  cfg, err := f.load(cmd.PersistentFlags())
  require.NoError(t, err)
  assert.Equal(t, ":9999", cfg.BindAddress)
}

func TestConfig_Validate(t *testing.T) {
  cfg := defaultConfig()
  assert.NoError(t, cfg.Validate())

  cfg.CollectionInterval = 0
  cfg.MaxRetries = -1
  cfg.DeviceConfigs = []deviceConfig{{Spec: "host=a"}}

  err := cfg.Validate()
  require.Error(t, err)
  assert.Contains(t, err.Error(), "interval must be positive")
  assert.Contains(t, err.Error(), "max_retries must not be negative")
  assert.Contains(t, err.Error(), "devices[0].type is required")
}

func TestBuildDevices(t *testing.T) {
  reg := testRegistry(t)

  devices, err := buildDevices(reg, []deviceConfig{
    {
      Type: "restClient",
      Spec: "host=10.0.0.5,port=8080",
      Params: []param.Definition{
        {Name: "temperature", Type: param.TypeDouble, Subsystem: "sensors", Endpoint: "temperature"},
      },
    },
    {Type: "manual", Spec: "host=10.0.0.7"},
  })
  require.NoError(t, err)

  require.Len(t, devices, 1, "devices of non auto-instantiated declarations must be skipped")
  assert.Equal(t, "restclient-10-0-0-5-8080", devices[0].Name())
  assert.True(t, devices[0].Declaration().Equal(restclient.Declaration()))
  assert.NotNil(t, devices[0].Params().Lookup("temperature"))
}

func TestBuildDevices_Errors(t *testing.T) {
  reg := testRegistry(t)

  _, err := buildDevices(reg, []deviceConfig{{Type: "nope", Spec: "host=a"}})
  assert.ErrorIs(t, err, device.ErrUnknownDevice)

  _, err = buildDevices(reg, []deviceConfig{{Type: "restClient", Spec: "port=80"}})
  assert.ErrorIs(t, err, device.ErrInvalidSpec)

  _, err = buildDevices(reg, []deviceConfig{
    {Type: "restClient", Spec: "host=a,name=dup"},
    {Type: "restClient", Spec: "host=b,name=dup"},
  })
  assert.ErrorContains(t, err, "duplicate device name")
}
