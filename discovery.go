package main

import (
  "context"
  "fmt"
  "io"
  "sort"
  "strconv"
  "strings"
  "text/tabwriter"

  "github.com/pkg/errors"
  "github.com/rs/zerolog/log"
  "github.com/spf13/cobra"
  "golang.org/x/exp/maps"

  "github.com/robertof/go-restclient-exporter/collector"
  "github.com/robertof/go-restclient-exporter/device"
  "github.com/robertof/go-restclient-exporter/param"
)

var errNoSuchParam = errors.New("no such parameter")

func printDeclarations(w io.Writer, registry *device.Registry) error {
  tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

  fmt.Fprintln(tw, "NAME\tLIBS\tAUTO")

  for _, d := range registry.Declarations() {
    fmt.Fprintf(tw, "%s\t%s\t%t\n", d.Name(), strings.Join(d.LibFileList(), ","), d.AutoInstantiate())
  }

  return tw.Flush()
}

// doParamDiscovery fetches every parameter of every configured device once
// and prints what the devices reported about them.
func doParamDiscovery(ctx context.Context, w io.Writer, cfg config) error {
  log.Info().Msg("Starting in discovery mode - fetching all parameters once...")

  opts := collector.DefaultOptions()
  opts.TimeoutPerAttempt = cfg.InitialCollectionTimeout
  opts.MaxRetries = cfg.MaxRetries
  opts.BackoffFactor = cfg.Backoff

  results, err := collector.CollectReadingsWithOptions(ctx, cfg.Devices, opts)
  if err != nil {
    log.Warn().Err(err).Msg("Some devices failed to answer")
  }

  byName := make(map[string]device.Device, len(cfg.Devices))
  for _, dev := range cfg.Devices {
    byName[dev.Name()] = dev
  }

  names := maps.Keys(byName)
  sort.Strings(names)

  tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

  for _, name := range names {
    dev := byName[name]
    result, ok := results[dev]

    fmt.Fprintf(tw, "%v (collected: %t)\n", dev, ok && result.Error == nil)
    fmt.Fprintln(tw, "  PARAM\tTYPE\tACCESS\tMIN\tMAX\tVALUE")

    for _, p := range dev.Params().Params() {
      min, max := p.Limits()

      fmt.Fprintf(tw, "  %s\t%v\t%v\t%v\t%v\t%s\n",
        p.Name(), p.Type(), p.AccessMode(), min, max, formatValues(p, dev.Params().Store()))
    }

    fmt.Fprintln(tw)
  }

  return tw.Flush()
}

func formatValues(p *param.Param, store *param.Store) string {
  var values []string

  for _, v := range store.Snapshot() {
    if v.Index != p.Index() {
      continue
    }

    if !v.Connected {
      values = append(values, "<disconnected>")
      continue
    }

    switch v.Kind {
    case param.KindInt:
      if s, err := p.GetString(v.Address); err == nil && p.Type() == param.TypeEnum {
        values = append(values, s)
      } else {
        values = append(values, strconv.Itoa(v.Int))
      }
    case param.KindFloat:
      values = append(values, strconv.FormatFloat(v.Float, 'g', -1, 64))
    default:
      values = append(values, strconv.Quote(v.String))
    }
  }

  if len(values) == 0 {
    return "-"
  }

  return strings.Join(values, ",")
}

func findParam(cfg config, deviceName, paramName string) (device.Device, *param.Param, error) {
  for _, dev := range cfg.Devices {
    if dev.Name() != deviceName {
      continue
    }

    if p := dev.Params().Lookup(paramName); p != nil {
      return dev, p, nil
    }

    return nil, nil, errors.Wrapf(errNoSuchParam, "%s on %s", paramName, deviceName)
  }

  return nil, nil, fmt.Errorf("%w: %q", device.ErrUnknownDevice, deviceName)
}

func doGet(ctx context.Context, w io.Writer, cfg config, deviceName, paramName string) error {
  dev, p, err := findParam(cfg, deviceName, paramName)
  if err != nil {
    return err
  }

  ctx, cancel := context.WithTimeout(ctx, cfg.CollectionTimeout)
  defer cancel()

  if err := p.Fetch(ctx); err != nil {
    return err
  }

  _, err = fmt.Fprintln(w, formatValues(p, dev.Params().Store()))
  return err
}

func newPutCmd(cfg *config, preRun func(*cobra.Command, []string) error) *cobra.Command {
  var index int

  cmd := &cobra.Command{
    Use: "put DEVICE PARAM VALUE",
    Short: "Write a single parameter",
    Args: cobra.ExactArgs(3),
    PreRunE: preRun,
    RunE: func(cmd *cobra.Command, args []string) error {
      _, p, err := findParam(*cfg, args[0], args[1])
      if err != nil {
        return err
      }

      ctx, cancel := context.WithTimeout(cmd.Context(), cfg.CollectionTimeout)
      defer cancel()

      if err := putValue(ctx, p, args[2], index); err != nil {
        return err
      }

      log.Info().
        Str("Device", args[0]).
        Str("Param", p.Name()).
        Str("Value", args[2]).
        Msg("Parameter written")

      return nil
    },
  }

  cmd.Flags().IntVar(&index, "index", -1, "Array element to write, -1 for scalar parameters")

  return cmd
}

// putValue parses raw according to the parameter's type and writes it.
func putValue(ctx context.Context, p *param.Param, raw string, index int) error {
  if !p.Remote() {
    switch p.Kind() {
    case param.KindInt:
      v, err := strconv.Atoi(raw)
      if err != nil {
        return err
      }
      return p.PutInt(ctx, v, index)
    case param.KindFloat:
      v, err := strconv.ParseFloat(raw, 64)
      if err != nil {
        return err
      }
      return p.PutFloat(ctx, v, index)
    default:
      return p.PutString(ctx, raw, index)
    }
  }

  if !p.Initialised() {
    // write-only parameters can't be fetched; the put reports the real error
    if err := p.Fetch(ctx); err != nil {
      log.Debug().
        Err(err).
        Str("Param", p.Name()).
        Msg("Initial fetch before put failed")
    }
  }

  switch p.Type() {
  case param.TypeBool, param.TypeCommand:
    v, err := strconv.ParseBool(raw)
    if err != nil {
      return err
    }
    return p.PutBool(ctx, v, index)
  case param.TypeInt, param.TypeUint:
    v, err := strconv.Atoi(raw)
    if err != nil {
      return err
    }
    return p.PutInt(ctx, v, index)
  case param.TypeDouble:
    v, err := strconv.ParseFloat(raw, 64)
    if err != nil {
      return err
    }
    return p.PutFloat(ctx, v, index)
  case param.TypeEnum:
    if v, err := strconv.Atoi(raw); err == nil {
      return p.PutInt(ctx, v, index)
    }
    return p.PutString(ctx, raw, index)
  default:
    return p.PutString(ctx, raw, index)
  }
}
