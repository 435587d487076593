package main

import (
  "bytes"
  "context"
  "errors"
  "sync"
  "testing"

  "github.com/rs/zerolog"
  "github.com/rs/zerolog/log"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"

  "github.com/robertof/go-restclient-exporter/param"
)

var errOffline = errors.New("device offline")

type cliAPI struct {
  mu sync.Mutex
  replies map[string]string
  puts []string
}

func (a *cliAPI) Get(ctx context.Context, subsystem, name string) ([]byte, error) {
  a.mu.Lock()
  defer a.mu.Unlock()

  reply, ok := a.replies[subsystem + name]
  if !ok {
    return nil, errOffline
  }

  return []byte(reply), nil
}

func (a *cliAPI) Put(ctx context.Context, subsystem, name, rawValue string) ([]byte, error) {
  a.mu.Lock()
  defer a.mu.Unlock()

  a.puts = append(a.puts, subsystem + name + "=" + rawValue)

  return nil, nil
}

func (a *cliAPI) LookupAccessMode(subsystem string) (param.AccessMode, bool) {
  return param.ReadWrite, false
}

func TestPutValue_ParsesByType(t *testing.T) {
  api := &cliAPI{replies: map[string]string{
    "/api/gain": `{"value": 1.5, "value_type": "float", "access_mode": "rw"}`,
    "/api/count": `{"value": 3, "value_type": "int", "access_mode": "rw"}`,
    "/api/enabled": `{"value": false, "value_type": "bool", "access_mode": "rw"}`,
    "/api/mode": `{"value": "auto", "value_type": "string", "access_mode": "rw", "allowed_values": ["off", "auto", "manual"]}`,
  }}

  set := param.NewSet(api, param.NewStore())
  _, err := set.CreateAll([]param.Definition{
    {Name: "GAIN", Kind: param.KindFloat, Subsystem: "/api/", Endpoint: "gain"},
    {Name: "COUNT", Kind: param.KindInt, Subsystem: "/api/", Endpoint: "count"},
    {Name: "ENABLED", Kind: param.KindInt, Subsystem: "/api/", Endpoint: "enabled"},
    {Name: "MODE", Kind: param.KindInt, Subsystem: "/api/", Endpoint: "mode"},
  })
  require.NoError(t, err)

  ctx := context.Background()

  require.NoError(t, putValue(ctx, set.Lookup("GAIN"), "2.5", -1))
  require.NoError(t, putValue(ctx, set.Lookup("COUNT"), "7", -1))
  require.NoError(t, putValue(ctx, set.Lookup("ENABLED"), "true", -1))
  require.NoError(t, putValue(ctx, set.Lookup("MODE"), "manual", -1))

  assert.Error(t, putValue(ctx, set.Lookup("COUNT"), "seven", -1))

  assert.Equal(t, []string{
    "/api/gain=2.5",
    "/api/count=7",
    "/api/enabled=true",
    `/api/mode="manual"`,
  }, api.puts)
}

func TestPutValue_LogsFailedInitialFetch(t *testing.T) {
  var buf bytes.Buffer

  logger, level := log.Logger, zerolog.GlobalLevel()
  log.Logger = zerolog.New(&buf)
  zerolog.SetGlobalLevel(zerolog.DebugLevel)

  t.Cleanup(func() {
    log.Logger = logger
    zerolog.SetGlobalLevel(level)
  })

  api := &cliAPI{replies: map[string]string{}}

  set := param.NewSet(api, param.NewStore())
  _, err := set.CreateAll([]param.Definition{
    {Name: "GAIN", Kind: param.KindFloat, Subsystem: "/api/", Endpoint: "gain"},
  })
  require.NoError(t, err)

  err = putValue(context.Background(), set.Lookup("GAIN"), "2.5", -1)
  assert.ErrorIs(t, err, errOffline)

  assert.Contains(t, buf.String(), "Initial fetch before put failed")
  assert.Contains(t, buf.String(), `"Param":"GAIN"`)
  assert.Empty(t, api.puts)
}
