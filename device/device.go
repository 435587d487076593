package device

import (
  "errors"

  "github.com/robertof/go-restclient-exporter/param"
)

var (
  ErrInvalidSpec = errors.New("invalid device spec")
  ErrUnknownDevice = errors.New("unknown device type")
)

type Device interface {
  Name() string
  Declaration() Declaration
  Params() *param.Set
  String() string
}

// Configurable devices accept parameter definitions after construction,
// typically from the YAML configuration file.
type Configurable interface {
  Configure(defs []param.Definition) error
}

// Idler devices can release their connections while the collector is
// suspended.
type Idler interface {
  CloseIdle()
}
