package metrics

import (
  "sort"
  "strconv"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-restclient-exporter/device"
  "github.com/robertof/go-restclient-exporter/param"
  "golang.org/x/exp/maps"
)

var (
  descValue = prometheus.NewDesc(
    "restclient_param_value",
    "Last value of a numeric device parameter. Enum parameters report the index of their value.",
    []string{"device", "param", "index"},
    nil,
  )

  descInfo = prometheus.NewDesc(
    "restclient_param_info",
    "Last value of a string device parameter, as a label. Always 1.",
    []string{"device", "param", "index", "value"},
    nil,
  )

  descConnected = prometheus.NewDesc(
    "restclient_param_connected",
    "Whether the last fetch of the parameter succeeded. 1 = connected, 0 = disconnected.",
    []string{"device", "param", "index"},
    nil,
  )
)

type CollectFunc func() (map[device.Device]device.Reading, time.Time)

type collector struct {
  CollectFunc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
  prometheus.DescribeByCollect(c, ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
  out, ts := c.CollectFunc()

  if out == nil {
    panic("collector got empty data!")
  }

  devices := maps.Keys(out)
  sort.Slice(devices, func(i, j int) bool {
    return devices[i].Name() < devices[j].Name()
  })

  for _, device := range devices {
    for _, v := range out[device].Values {
      index := strconv.Itoa(v.Address)

      switch v.Kind {
      case param.KindInt, param.KindFloat:
        value := float64(v.Int)
        if v.Kind == param.KindFloat {
          value = v.Float
        }

        gauge := prometheus.MustNewConstMetric(
          descValue,
          prometheus.GaugeValue,
          value,
          device.Name(),
          v.Name,
          index,
        )

        ch <- prometheus.NewMetricWithTimestamp(ts, gauge)
      case param.KindString:
        info := prometheus.MustNewConstMetric(
          descInfo,
          prometheus.GaugeValue,
          1,
          device.Name(),
          v.Name,
          index,
          v.String,
        )

        ch <- prometheus.NewMetricWithTimestamp(ts, info)
      }

      connected := prometheus.MustNewConstMetric(
        descConnected,
        prometheus.GaugeValue,
        boolToFloat(v.Connected),
        device.Name(),
        v.Name,
        index,
      )

      ch <- prometheus.NewMetricWithTimestamp(ts, connected)
    }
  }
}

func boolToFloat(b bool) float64 {
  if b {
    return 1
  }

  return 0
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
  c := &collector{f}

  reg.MustRegister(c)
}
