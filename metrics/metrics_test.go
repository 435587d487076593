package metrics_test

import (
  "testing"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  dto "github.com/prometheus/client_model/go"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"

  "github.com/robertof/go-restclient-exporter/device"
  "github.com/robertof/go-restclient-exporter/metrics"
  "github.com/robertof/go-restclient-exporter/param"
)

type fakeDevice struct {
  name string
}

func (d *fakeDevice) Name() string { return d.name }
func (d *fakeDevice) Declaration() device.Declaration { return device.Declaration{} }
func (d *fakeDevice) Params() *param.Set { return nil }
func (d *fakeDevice) String() string { return d.name }

func labels(m *dto.Metric) map[string]string {
  out := map[string]string{}
  for _, l := range m.GetLabel() {
    out[l.GetName()] = l.GetValue()
  }

  return out
}

func TestCollector(t *testing.T) {
  ts := time.Unix(1700000000, 0)
  dev := &fakeDevice{name: "lab"}

  reading := device.Reading{
    Time: ts,
    Values: []param.Value{
      {Name: "TEMPERATURE", Kind: param.KindFloat, Float: 21.5, Connected: true},
      {Name: "FANS", Index: 1, Address: 1, Kind: param.KindInt, Int: 3, Connected: false},
      {Name: "STATE", Index: 2, Kind: param.KindString, String: "idle", Connected: true},
    },
  }

  reg := prometheus.NewPedanticRegistry()
  metrics.RegisterCollector(func() (map[device.Device]device.Reading, time.Time) {
    return map[device.Device]device.Reading{dev: reading}, ts
  }, reg)

  families, err := reg.Gather()
  require.NoError(t, err)

  byName := map[string]*dto.MetricFamily{}
  for _, f := range families {
    byName[f.GetName()] = f
  }

  values := byName["restclient_param_value"]
  require.NotNil(t, values)
  require.Len(t, values.GetMetric(), 2)

  got := map[string]float64{}
  for _, m := range values.GetMetric() {
    l := labels(m)
    assert.Equal(t, "lab", l["device"])
    got[l["param"]+"/"+l["index"]] = m.GetGauge().GetValue()
    assert.Equal(t, ts.UnixMilli(), m.GetTimestampMs())
  }

  assert.Equal(t, map[string]float64{"TEMPERATURE/0": 21.5, "FANS/1": 3}, got)

  info := byName["restclient_param_info"]
  require.NotNil(t, info)
  require.Len(t, info.GetMetric(), 1)
  assert.Equal(t, "idle", labels(info.GetMetric()[0])["value"])

  connected := byName["restclient_param_connected"]
  require.NotNil(t, connected)
  require.Len(t, connected.GetMetric(), 3)

  disconnected := 0
  for _, m := range connected.GetMetric() {
    if m.GetGauge().GetValue() == 0 {
      disconnected++
      assert.Equal(t, "FANS", labels(m)["param"])
    }
  }

  assert.Equal(t, 1, disconnected)
}
