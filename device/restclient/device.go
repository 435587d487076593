package restclient

import (
  "fmt"

  "github.com/robertof/go-restclient-exporter/device"
  "github.com/robertof/go-restclient-exporter/param"
  "github.com/robertof/go-restclient-exporter/rest"
)

type Device struct {
  name string
  client *rest.Client
  params *param.Set
}

// New builds a device talking through client with an empty parameter set.
func New(name string, client *rest.Client, opts ...param.SetOption) *Device {
  return &Device{
    name: name,
    client: client,
    params: param.NewSet(client, param.NewStore(), opts...),
  }
}

func (d *Device) Name() string {
  return d.name
}

func (d *Device) Declaration() device.Declaration {
  return declaration
}

func (d *Device) Params() *param.Set {
  return d.params
}

func (d *Device) Client() *rest.Client {
  return d.client
}

func (d *Device) CloseIdle() {
  d.client.CloseIdle()
}

func (d *Device) Configure(defs []param.Definition) error {
  if _, err := d.params.CreateAll(defs); err != nil {
    return fmt.Errorf("device %q: %w", d.name, err)
  }

  return nil
}

func (d *Device) String() string {
  return fmt.Sprintf("restclient[name=%q, endpoint=%v]", d.name, d.client)
}
