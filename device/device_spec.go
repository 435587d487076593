package device

import (
  "fmt"
  "strconv"
  "strings"

  "github.com/rs/zerolog/log"
)

type Spec map[string]string

const (
  SpecFieldName = "name"
  SpecFieldHost = "host"
  SpecFieldPort = "port"
)

func NewSpec(s string) Spec {
  spec := Spec{}
  entries := strings.Split(s, ",")

  for _, entry := range entries {
    if strings.TrimSpace(entry) == "" {
      continue
    }

    parts := strings.SplitN(entry, "=", 2)

    if len(parts) != 2 {
      log.Warn().Str("Entry", entry).Msg("Skipping invalid device spec entry")
      continue
    }

    spec[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
  }

  return spec
}

func (ds Spec) Name() string {
  return ds[SpecFieldName]
}

func (ds Spec) Host() string {
  return ds[SpecFieldHost]
}

// Int returns the integer value of key, or def when the key is absent.
func (ds Spec) Int(key string, def int) (int, error) {
  v, ok := ds[key]
  if !ok || v == "" {
    return def, nil
  }

  i, err := strconv.Atoi(v)
  if err != nil {
    return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidSpec, key, v)
  }

  return i, nil
}

// Bool returns true for "yes", "true" or "1".
func (ds Spec) Bool(key string) bool {
  switch strings.ToLower(ds[key]) {
  case "yes", "true", "1":
    return true
  }

  return false
}

func (ds Spec) Port(def int) (int, error) {
  return ds.Int(SpecFieldPort, def)
}
