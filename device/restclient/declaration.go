// Package restclient declares the restClient device type and builds devices
// that expose their parameters over a JSON REST interface.
package restclient

import (
  "github.com/robertof/go-restclient-exporter/device"
)

const Name = "restClient"

var declaration = device.MustDeclaration(Name, []string{"restClient", "frozen"}, true)

// Declaration is what a build host reads to link and create restClient
// devices: the client library and the frozen JSON codec, instantiated
// automatically.
func Declaration() device.Declaration {
  return declaration
}

// Register adds the restClient declaration and its factory to reg.
func Register(reg *device.Registry) error {
  return reg.Register(declaration, &Factory{})
}
