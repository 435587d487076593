package restclient

import (
  "fmt"
  "strings"
  "time"

  "github.com/robertof/go-restclient-exporter/device"
  "github.com/robertof/go-restclient-exporter/param"
  "github.com/robertof/go-restclient-exporter/rest"
  "github.com/rs/zerolog/log"
)

const (
  SpecFieldSockets = "sockets"
  SpecFieldTimeout = "timeout"
  SpecFieldParams = "params"
  SpecFieldReadOnly = "readonly"
  SpecFieldWriteOnly = "writeonly"
)

type Factory struct{}

func (f *Factory) FromSpec(spec device.Spec) (device.Device, error) {
  host := spec.Host()
  if host == "" {
    return nil, fmt.Errorf("%w: host is required", device.ErrInvalidSpec)
  }

  port, err := spec.Port(rest.DefaultPort)
  if err != nil {
    return nil, err
  }

  sockets, err := spec.Int(SpecFieldSockets, rest.DefaultSockets)
  if err != nil {
    return nil, err
  }

  opts := []rest.Option{rest.WithSockets(sockets)}

  if v := spec[SpecFieldTimeout]; v != "" {
    timeout, err := time.ParseDuration(v)
    if err != nil {
      return nil, fmt.Errorf("%w: invalid timeout: %v", device.ErrInvalidSpec, err)
    }

    opts = append(opts, rest.WithTimeout(timeout))
  }

  if modes := accessModes(spec); len(modes) > 0 {
    opts = append(opts, rest.WithAccessModes(modes))
  }

  client, err := rest.New(host, port, opts...)
  if err != nil {
    return nil, fmt.Errorf("invalid host: %w", err)
  }

  name := spec.Name()
  if name == "" {
    name = fmt.Sprintf("restclient-%s-%d", strings.ReplaceAll(host, ".", "-"), port)
  }

  d := New(name, client, param.WithConcurrency(sockets))

  if path := spec[SpecFieldParams]; path != "" {
    defs, err := param.LoadDefinitions(path)
    if err != nil {
      return nil, err
    }

    if err := d.Configure(defs); err != nil {
      return nil, err
    }
  }

  log.Debug().Stringer("Device", d).Msg("restclient: created device")

  return d, nil
}

// accessModes maps the semicolon separated subsystems listed under the
// readonly and writeonly keys to their fixed access mode.
func accessModes(spec device.Spec) map[string]param.AccessMode {
  modes := make(map[string]param.AccessMode)

  for key, mode := range map[string]param.AccessMode{
    SpecFieldReadOnly: param.ReadOnly,
    SpecFieldWriteOnly: param.WriteOnly,
  } {
    for _, subsystem := range strings.Split(spec[key], ";") {
      if subsystem = strings.TrimSpace(subsystem); subsystem != "" {
        modes[subsystem] = mode
      }
    }
  }

  return modes
}

func (f *Factory) Help() string {
  return `Supported parameters:
host (string, required): Hostname or IP address of the device
port (int): HTTP port of the device (default 80)
name (string): Name of this device (default derived from host and port)
sockets (int): Maximum number of concurrent requests (default 5)
timeout (duration): Timeout of a single request (default 20s)
params (string): Path to a YAML file with a top-level "params" list
readonly (string): Semicolon separated subsystems whose parameters are read-only
writeonly (string): Semicolon separated subsystems whose parameters are write-only`
}
