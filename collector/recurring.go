package collector

import (
  "context"
  "sync"
  "sync/atomic"
  "time"

  "github.com/rs/zerolog/log"

  "github.com/robertof/go-restclient-exporter/collector/model"
  "github.com/robertof/go-restclient-exporter/device"
  "github.com/robertof/go-restclient-exporter/utils"
)

// UpdateFunc is called with every successful update, from the collector
// goroutine.
type UpdateFunc func(readings map[device.Device]device.Reading, ts time.Time)

type Recurring struct {
  // If no call to Latest() has been executed for more than IdleTimeout seconds, the
  // collector will suspend and resume automatically when Latest() is called again.
  IdleTimeout time.Duration

  readings map[device.Device]device.Reading
  collectionTime time.Time

  lastRead time.Time

  devices []device.Device
  mu sync.Mutex

  onUpdate []UpdateFunc

  // failures already reported, cleared once every device collects again.
  errors *utils.ErrorFilter

  // collector has been Start()ed
  started bool

  // collector is currently suspended due to inactivity
  suspended atomic.Bool

  // a reader resuming the collector sends a channel that is closed once
  // the resulting collection has finished.
  wakeUp chan chan struct{}
  wakeUpMu sync.Mutex

  // closed when Start returns.
  done chan struct{}
}

func NewRecurring(devices []device.Device) *Recurring {
  return &Recurring{
    devices: devices,
    lastRead: time.Now(),
    wakeUp: make(chan chan struct{}),
    done: make(chan struct{}),
    errors: utils.NewErrorFilter(),
  }
}

// OnUpdate registers f to be called after each collection that produced
// data. It must be called before Start.
func (s *Recurring) OnUpdate(f UpdateFunc) {
  s.onUpdate = append(s.onUpdate, f)
}

func (s *Recurring) Update(r map[device.Device]device.Reading) {
  s.mu.Lock()
  defer s.mu.Unlock()

  if r == nil {
    panic("attempted to set nil reading")
  }

  s.readings = r
  s.collectionTime = time.Now()
}

// Prime runs a single collection and stores every reading it produced, even
// fully disconnected ones, so that Latest can be called before the first
// tick.
func (s *Recurring) Prime(ctx context.Context, opts CollectionOptions) error {
  results, err := CollectReadingsWithOptions(ctx, s.devices, opts)

  s.apply(results, err, true)

  return err
}

// apply stores the readings of a collection and notifies subscribers.
// Unless keepEmpty is set, readings in which every value is disconnected are
// dropped so that the previous data keeps being served.
func (s *Recurring) apply(results map[device.Device]model.Result, err error, keepEmpty bool) {
  update := make(map[device.Device]device.Reading, len(results))

  for dev, res := range results {
    if res.Error != nil && s.errors.NewError(dev.Name() + ": " + res.Error.Error()) {
      log.Warn().
        Stringer("Device", dev).
        Err(res.Error).
        Msg("Collection failed for device")
    }

    if res.Error == nil {
      log.Debug().
        Stringer("Device", dev).
        Stringer("Reading", res.Reading).
        Msg("Successfully collected data from device")
    }

    if keepEmpty || res.Reading.Disconnected() < len(res.Reading.Values) {
      update[dev] = res.Reading
    }
  }

  if err != nil {
    log.Debug().Err(err).Msg("Collection failed for one or more devices")
  } else {
    s.errors.Clear()
  }

  if len(update) == 0 && !keepEmpty {
    return
  }

  s.Update(update)
  s.notify()
}

func (s *Recurring) notify() {
  s.mu.Lock()
  readings, ts := s.readings, s.collectionTime
  s.mu.Unlock()

  for _, f := range s.onUpdate {
    f(readings, ts)
  }
}

func (s *Recurring) closeIdle() {
  for _, dev := range s.devices {
    if idler, ok := dev.(device.Idler); ok {
      idler.CloseIdle()
    }
  }
}

// wakeUpIfNeeded resumes a suspended collector. It returns a channel closed
// after the resulting collection, or nil if there was nothing to resume.
func (s *Recurring) wakeUpIfNeeded() <-chan struct{} {
  if !s.suspended.CompareAndSwap(true, false) {
    return nil
  }

  finished := make(chan struct{})

  select {
  case s.wakeUp <- finished:
    return finished
  case <-s.done:
    return nil
  }
}

func (s *Recurring) wakeUpAndBlockIfNeeded(ctx context.Context) {
  // wait if another goroutine has already sent the wake up signal.
  s.wakeUpMu.Lock()
  defer s.wakeUpMu.Unlock()

  finished := s.wakeUpIfNeeded()
  if finished == nil {
    return
  }

  select {
  case <-ctx.Done():
  case <-s.done:
  case <-finished:
  }
}

func (s *Recurring) get() (map[device.Device]device.Reading, time.Time) {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.readings == nil || s.collectionTime.IsZero() {
    panic("Latest() on collector.Recurring called when not initialised yet")
  }

  s.lastRead = time.Now()

  // safe to return as we replace the old map with a new one on update.
  return s.readings, s.collectionTime
}

// Retrieve the latest collected value. Wakes up the collector if asleep.
// Doesn't wait for a new result if the collector is asleep and is waken up.
func (s *Recurring) Latest() (map[device.Device]device.Reading, time.Time) {
  s.wakeUpIfNeeded()

  return s.get()
}

// Retrieve the latest collected value. Wakes up the collector if asleep and
// waits until it finishes the collection, otherwise, returns the last available
// data without blocking.
func (s *Recurring) WaitLatest(ctx context.Context) (map[device.Device]device.Reading, time.Time) {
  s.wakeUpAndBlockIfNeeded(ctx)

  return s.get()
}

func (s *Recurring) shouldSuspend() (suspend bool, elapsed time.Duration) {
  if s.IdleTimeout == 0 {
    return false, 0
  }

  s.mu.Lock()
  defer s.mu.Unlock()

  elapsed = time.Now().Sub(s.lastRead)

  return elapsed > s.IdleTimeout, elapsed
}

func (s *Recurring) shutdown() {
  log.Info().Msg("Recurring collector is shutting down")

  close(s.done)
}

// suspend blocks until a reader wakes the collector up and returns the
// channel to close once the next collection is done. ok is false when ctx
// is done first.
func (s *Recurring) suspend(ctx context.Context, elapsed time.Duration) (finished chan struct{}, ok bool) {
  s.suspended.Store(true)

  log.Warn().
    Dur("IdleTimeoutSec", s.IdleTimeout).
    Dur("TimeSinceLastReadSec", elapsed).
    Msg("Suspending recurring collector due to inactivity. If you see this message often, " +
        "you probably need to adjust the collection interval with '--interval'.")

  s.closeIdle()

  select {
  case <-ctx.Done():
    s.suspended.Store(false)
    return nil, false
  case finished = <-s.wakeUp:
  }

  s.mu.Lock()
  s.lastRead = time.Now()
  s.mu.Unlock()

  log.Trace().Msg("Collector woke up from sleep - starting immediate collection")

  return finished, true
}

// Start collects every interval until ctx is done. It must be called once.
func (s *Recurring) Start(
  ctx context.Context,
  interval time.Duration,
  opts CollectionOptions,
) {
  if s.started {
    panic("attempted to call collector.Recurring.Start() twice")
  }

  s.started = true
  defer s.shutdown()

  log.Info().
    Dur("Interval", interval).
    Int("MaxRetries", opts.MaxRetries).
    Dur("TimeoutPerAttemptSec", opts.TimeoutPerAttempt).
    Dur("IdleTimeoutSec", s.IdleTimeout).
    Msg("Starting recurring collector")

  ticker := time.NewTicker(interval)
  defer ticker.Stop()

  for {
    select {
    case <-ctx.Done():
      return
    case <-ticker.C:
    }

    var finished chan struct{}

    if suspend, elapsed := s.shouldSuspend(); suspend {
      var ok bool
      if finished, ok = s.suspend(ctx, elapsed); !ok {
        return
      }
    } else {
      log.Trace().Dur("Interval", interval).Msg("Recurring collector tick: collecting...")
    }

    results, err := CollectReadingsWithOptions(ctx, s.devices, opts)

    if ctx.Err() != nil {
      return
    }

    s.apply(results, err, false)

    if finished != nil {
      close(finished)

      // a long suspension leaves stale ticks behind.
      ticker.Reset(interval)
    }
  }
}
