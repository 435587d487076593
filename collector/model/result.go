package model

import (
	"fmt"

	"github.com/robertof/go-restclient-exporter/device"
)

// Result of a collection attempt. A failed attempt may still carry a
// partial Reading: parameters that could not be fetched are marked as
// disconnected.
type Result struct {
  Reading device.Reading
  Error error
}

func (c Result) String() string {
  if c.Error != nil {
    return fmt.Sprintf("result:error(%v)", c.Error)
  } else {
    return fmt.Sprintf("result:success(%v)", c.Reading)
  }
}

type DeviceResult struct {
	device.Device
	Result
}
