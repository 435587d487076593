package device

import (
  "fmt"
  "strings"
  "time"

  "github.com/robertof/go-restclient-exporter/param"
)

// Reading is a snapshot of a device's stored parameter values.
type Reading struct {
  Values []param.Value
  Time time.Time
}

func NewReading(d Device) Reading {
  return Reading{
    Values: d.Params().Store().Snapshot(),
    Time: time.Now(),
  }
}

// Disconnected returns the number of values whose last fetch failed.
func (r Reading) Disconnected() (n int) {
  for _, v := range r.Values {
    if !v.Connected {
      n++
    }
  }

  return n
}

func (r Reading) String() string {
  fields := make([]string, 0, len(r.Values))

  for _, v := range r.Values {
    name := v.Name
    if v.Address > 0 {
      name = fmt.Sprintf("%s[%d]", v.Name, v.Address)
    }

    switch v.Kind {
    case param.KindInt:
      fields = append(fields, fmt.Sprintf("%s=%d", name, v.Int))
    case param.KindFloat:
      fields = append(fields, fmt.Sprintf("%s=%g", name, v.Float))
    case param.KindString:
      fields = append(fields, fmt.Sprintf("%s=%q", name, v.String))
    }
  }

  return fmt.Sprintf("Reading[%v]", strings.Join(fields, ","))
}
