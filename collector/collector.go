package collector

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/robertof/go-restclient-exporter/collector/model"
	"github.com/robertof/go-restclient-exporter/device"
	"github.com/robertof/go-restclient-exporter/utils"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
  DefaultMaxRetries = 2
  DefaultTimeoutPerAttempt = 30 * time.Second
  DefaultBackoffFactor = 500 * time.Millisecond
)

type CollectionOptions struct {
  MaxRetries int
  TimeoutPerAttempt time.Duration
  BackoffFactor time.Duration

  // Concurrency bounds the number of devices polled at once. Zero means no limit.
  Concurrency int

  attempt int
}

func DefaultOptions() CollectionOptions {
  return CollectionOptions{
    MaxRetries: DefaultMaxRetries,
    TimeoutPerAttempt: DefaultTimeoutPerAttempt,
    BackoffFactor: DefaultBackoffFactor,
  }
}

func CollectReadings(
  ctx context.Context,
  devices []device.Device,
) (out map[device.Device]model.Result, err error) {
  return CollectReadingsWithOptions(ctx, devices, DefaultOptions())
}

func collectDevice(ctx context.Context, dev device.Device) model.Result {
  err := dev.Params().FetchAll(ctx)

  return model.Result{
    Reading: device.NewReading(dev),
    Error: err,
  }
}

// Collect readings from the specified devices, refreshing every parameter of
// each one. Devices whose collection fails are retried with exponential
// backoff until MaxRetries is exhausted or the parent context is done.
func CollectReadingsWithOptions(
  parentCtx context.Context,
  devices []device.Device,
  options CollectionOptions,
) (out map[device.Device]model.Result, err error) {
  out = make(map[device.Device]model.Result, len(devices))

  log.Debug().
    Array("Devices", utils.ToZeroLogArray(devices)).
    Msg("Collecting readings from devices")

  // make sure signals are properly handled and we enforce the passed timeout.
  var ctx context.Context
  var cancel func()

  if options.TimeoutPerAttempt > 0 {
    ctx, cancel = context.WithTimeout(parentCtx, options.TimeoutPerAttempt)
  } else {
    ctx, cancel = context.WithCancel(parentCtx)
  }

  defer cancel()

  // collect everything in parallel and gather results.
  var eg errgroup.Group
  resultCh := make(chan model.DeviceResult)

  if options.Concurrency > 0 {
    eg.SetLimit(options.Concurrency)
  }

  go func() {
    for _, dev := range devices {
      dev := dev

      eg.Go(func() error {
        resultCh <- model.DeviceResult{Device: dev, Result: collectDevice(ctx, dev)}
        return nil
      })
    }

    _ = eg.Wait()
    close(resultCh)
  }()

  for v := range resultCh {
    log.Trace().
      Stringer("Device", v.Device).
      Stringer("Result", v.Result).
      Msg("Received result for device")

    out[v.Device] = v.Result
  }

  var failedDevices []device.Device
  var errs []error

  for _, device := range devices {
    if result := out[device]; result.Error != nil {
      failedDevices = append(failedDevices, device)
      errs = append(errs, fmt.Errorf("%s: %w", device.Name(), result.Error))
    }
  }

  if len(failedDevices) == 0 {
    return out, nil
  }

  // analyze results, and retry if needed
  if options.MaxRetries <= 0 || parentCtx.Err() != nil {
    return out, stderrors.Join(errs...)
  }

  for _, device := range failedDevices {
    log.Debug().
      Stringer("Device", device).
      Int("RetriesLeft", options.MaxRetries).
      Err(out[device].Error).
      Msg("Collection failed for device - will retry")
  }

  if options.BackoffFactor > 0 {
    backoff := options.BackoffFactor << int64(options.attempt)

    if backoff < 0 {
      backoff = DefaultBackoffFactor
    }

    log.Trace().
      Dur("Backoff", backoff).
      Msg("Backing off before attempting retry")

    select {
    case <-parentCtx.Done():
      log.Trace().Err(parentCtx.Err()).Msg("Retry aborted by context cancel")
      return out, parentCtx.Err()
    case <-time.After(backoff):
    }
  }

  options.MaxRetries -= 1
  options.attempt += 1

  retryOutput, err := CollectReadingsWithOptions(parentCtx, failedDevices, options)

  // merge old and new outputs
  for failedDevice, result := range retryOutput {
    out[failedDevice] = result
  }

  return out, err
}
