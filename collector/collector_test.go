package collector_test

import (
  "context"
  "errors"
  "fmt"
  "sync"
  "sync/atomic"
  "testing"
  "time"

  "go.uber.org/goleak"

  "github.com/robertof/go-restclient-exporter/collector"
  "github.com/robertof/go-restclient-exporter/device"
  "github.com/robertof/go-restclient-exporter/device/restclient"
  "github.com/robertof/go-restclient-exporter/param"
)

func TestMain(m *testing.M) {
  goleak.VerifyTestMain(m)
}

var errUnreachable = errors.New("device unreachable")

// fakeAPI serves canned replies and fails the first `failures` requests.
type fakeAPI struct {
  mu sync.Mutex
  replies map[string]string
  failures int
  calls int
}

func (a *fakeAPI) Get(ctx context.Context, subsystem, name string) ([]byte, error) {
  a.mu.Lock()
  defer a.mu.Unlock()

  a.calls++

  if a.failures > 0 {
    a.failures--
    return nil, errUnreachable
  }

  reply, ok := a.replies[subsystem+name]
  if !ok {
    return nil, fmt.Errorf("no such parameter %q", subsystem+name)
  }

  return []byte(reply), nil
}

func (a *fakeAPI) callCount() int {
  a.mu.Lock()
  defer a.mu.Unlock()

  return a.calls
}

func (a *fakeAPI) Put(ctx context.Context, subsystem, name, rawValue string) ([]byte, error) {
  return nil, errors.New("not supported")
}

func (a *fakeAPI) LookupAccessMode(subsystem string) (param.AccessMode, bool) {
  return param.ReadOnly, false
}

type fakeDevice struct {
  name string
  params *param.Set
}

func (d *fakeDevice) Name() string { return d.name }
func (d *fakeDevice) Declaration() device.Declaration { return restclient.Declaration() }
func (d *fakeDevice) Params() *param.Set { return d.params }
func (d *fakeDevice) String() string { return "fake[" + d.name + "]" }

func newFakeDevice(t *testing.T, name string, api *fakeAPI) *fakeDevice {
  t.Helper()

  set := param.NewSet(api, param.NewStore())

  _, err := set.CreateAll([]param.Definition{
    {Name: "TEMPERATURE", Kind: param.KindFloat, Subsystem: "/api/", Endpoint: "temperature"},
    {Name: "STATE", Kind: param.KindString, Subsystem: "/api/", Endpoint: "state"},
  })
  if err != nil {
    t.Fatalf("CreateAll: %v", err)
  }

  return &fakeDevice{name: name, params: set}
}

func newAPI(temperature float64) *fakeAPI {
  return &fakeAPI{
    replies: map[string]string{
      "/api/temperature": fmt.Sprintf(`{"value": %g, "value_type": "float", "access_mode": "r"}`, temperature),
      "/api/state": `{"value": "idle", "value_type": "string", "access_mode": "r"}`,
    },
  }
}

func fastOptions(retries int) collector.CollectionOptions {
  return collector.CollectionOptions{
    MaxRetries: retries,
    TimeoutPerAttempt: time.Second,
    BackoffFactor: time.Millisecond,
  }
}

func TestCollectReadings(t *testing.T) {
  a := newFakeDevice(t, "a", newAPI(21.5))
  b := newFakeDevice(t, "b", newAPI(-3))

  out, err := collector.CollectReadingsWithOptions(
    context.Background(),
    []device.Device{a, b},
    fastOptions(0),
  )
  if err != nil {
    t.Fatalf("CollectReadingsWithOptions: %v", err)
  }

  if len(out) != 2 {
    t.Fatalf("got %d results, wanted 2", len(out))
  }

  for dev, want := range map[device.Device]float64{a: 21.5, b: -3} {
    res := out[dev]

    if res.Error != nil {
      t.Fatalf("%v: unexpected error %v", dev, res.Error)
    }

    if len(res.Reading.Values) != 2 || res.Reading.Disconnected() != 0 {
      t.Fatalf("%v: got reading %v", dev, res.Reading)
    }

    if got := res.Reading.Values[0].Float; got != want {
      t.Fatalf("%v: temperature got %v, wanted %v", dev, got, want)
    }

    if got := res.Reading.Values[1].String; got != "idle" {
      t.Fatalf("%v: state got %q, wanted %q", dev, got, "idle")
    }
  }
}

func TestCollectReadings_RetriesFailedDevices(t *testing.T) {
  api := newAPI(10)
  api.failures = 2

  dev := newFakeDevice(t, "flaky", api)

  out, err := collector.CollectReadingsWithOptions(context.Background(), []device.Device{dev}, fastOptions(1))
  if err != nil {
    t.Fatalf("CollectReadingsWithOptions: %v", err)
  }

  if res := out[dev]; res.Error != nil || res.Reading.Disconnected() != 0 {
    t.Fatalf("retry did not recover: %v", res)
  }

  if api.calls != 4 {
    t.Fatalf("got %d calls, wanted 4", api.calls)
  }
}

func TestCollectReadings_GivesUp(t *testing.T) {
  api := newAPI(10)
  api.failures = 100

  dev := newFakeDevice(t, "down", api)

  out, err := collector.CollectReadingsWithOptions(context.Background(), []device.Device{dev}, fastOptions(2))
  if !errors.Is(err, errUnreachable) {
    t.Fatalf("got error %v, wanted %v", err, errUnreachable)
  }

  res := out[dev]
  if res.Error == nil {
    t.Fatalf("got no error in result")
  }

  if res.Reading.Disconnected() != 2 {
    t.Fatalf("got %d disconnected values, wanted 2", res.Reading.Disconnected())
  }

  // one attempt plus two retries, two parameters each.
  if api.calls != 6 {
    t.Fatalf("got %d calls, wanted 6", api.calls)
  }
}

func TestRecurring(t *testing.T) {
  dev := newFakeDevice(t, "a", newAPI(1))
  r := collector.NewRecurring([]device.Device{dev})

  updates := make(chan time.Time, 16)
  r.OnUpdate(func(readings map[device.Device]device.Reading, ts time.Time) {
    updates <- ts
  })

  if err := r.Prime(context.Background(), fastOptions(0)); err != nil {
    t.Fatalf("Prime: %v", err)
  }

  readings, primed := r.Latest()
  if _, ok := readings[dev]; !ok {
    t.Fatalf("Latest() after Prime has no reading for %v", dev)
  }

  ctx, cancel := context.WithCancel(context.Background())
  done := make(chan struct{})

  go func() {
    defer close(done)
    r.Start(ctx, 5*time.Millisecond, fastOptions(0))
  }()

  deadline := time.After(5 * time.Second)

  for {
    select {
    case ts := <-updates:
      if ts.After(primed) {
        cancel()
        <-done

        if _, ts := r.WaitLatest(context.Background()); !ts.After(primed) {
          t.Fatalf("WaitLatest returned stale data")
        }

        return
      }
    case <-deadline:
      cancel()
      <-done
      t.Fatalf("no update from the recurring collector")
    }
  }
}

// idleDevice counts how often the collector released its connections.
type idleDevice struct {
  *fakeDevice
  closed atomic.Int32
}

func (d *idleDevice) CloseIdle() { d.closed.Add(1) }

func waitFor(t *testing.T, what string, cond func() bool) {
  t.Helper()

  deadline := time.Now().Add(5 * time.Second)

  for !cond() {
    if time.Now().After(deadline) {
      t.Fatalf("timed out waiting for %s", what)
    }

    time.Sleep(time.Millisecond)
  }
}

func startIdling(t *testing.T, api *fakeAPI) (*collector.Recurring, *idleDevice, context.CancelFunc, <-chan struct{}) {
  t.Helper()

  dev := &idleDevice{fakeDevice: newFakeDevice(t, "idle", api)}
  r := collector.NewRecurring([]device.Device{dev})
  r.IdleTimeout = 20 * time.Millisecond

  if err := r.Prime(context.Background(), fastOptions(0)); err != nil {
    t.Fatalf("Prime: %v", err)
  }

  ctx, cancel := context.WithCancel(context.Background())
  done := make(chan struct{})

  go func() {
    defer close(done)
    r.Start(ctx, 5*time.Millisecond, fastOptions(0))
  }()

  t.Cleanup(func() {
    cancel()
    <-done
  })

  waitFor(t, "the collector to suspend", func() bool { return dev.closed.Load() > 0 })

  return r, dev, cancel, done
}

func TestRecurring_SuspendsAndWakesUp(t *testing.T) {
  api := newAPI(1)
  r, dev, _, _ := startIdling(t, api)

  calls := api.callCount()
  time.Sleep(30 * time.Millisecond)

  if got := api.callCount(); got != calls {
    t.Fatalf("collector made %d requests while suspended", got-calls)
  }

  before := time.Now()
  readings, ts := r.WaitLatest(context.Background())

  if !ts.After(before) {
    t.Fatalf("WaitLatest after suspension returned data from %v, wanted newer than %v", ts, before)
  }

  if _, ok := readings[dev]; !ok {
    t.Fatalf("WaitLatest has no reading for %v", dev)
  }

  if api.callCount() <= calls {
    t.Fatal("waking up did not trigger a collection")
  }
}

func TestRecurring_ShutdownWhileSuspended(t *testing.T) {
  r, dev, cancel, done := startIdling(t, newAPI(1))

  cancel()
  <-done

  readings, _ := r.Latest()
  if _, ok := readings[dev]; !ok {
    t.Fatalf("Latest after shutdown has no reading for %v", dev)
  }

  ctx, stop := context.WithTimeout(context.Background(), time.Second)
  defer stop()

  if _, ts := r.WaitLatest(ctx); ts.IsZero() {
    t.Fatal("WaitLatest after shutdown returned no data")
  }

  if ctx.Err() != nil {
    t.Fatal("WaitLatest after shutdown blocked until its context expired")
  }
}
