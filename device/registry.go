package device

import (
  "errors"
  "fmt"
  "sort"
  "sync"

  "github.com/rs/zerolog/log"
)

var ErrDuplicateDeclaration = errors.New("device already registered")

// Entry pairs a declaration with the factory building its instances. The
// factory may be nil for declarations only consumed by the build host.
type Entry struct {
  Declaration Declaration
  Factory Factory
}

// Registry holds the declared device types. Registration is append-only
// and normally happens once at startup; lookups are safe from any goroutine.
type Registry struct {
  mu sync.RWMutex
  entries map[string]Entry
}

// DefaultRegistry is the process-wide registry used by the CLI.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
  return &Registry{
    entries: make(map[string]Entry),
  }
}

func (r *Registry) Register(d Declaration, f Factory) error {
  if d.IsZero() {
    return ErrEmptyName
  }

  r.mu.Lock()
  defer r.mu.Unlock()

  if _, ok := r.entries[d.Name()]; ok {
    return fmt.Errorf("%w: %q", ErrDuplicateDeclaration, d.Name())
  }

  r.entries[d.Name()] = Entry{Declaration: d, Factory: f}

  log.Debug().
    Str("Device", d.Name()).
    Strs("LibFiles", d.libFiles).
    Bool("AutoInstantiate", d.AutoInstantiate()).
    Msg("Registered device declaration")

  return nil
}

func (r *Registry) Lookup(name string) (Entry, bool) {
  r.mu.RLock()
  defer r.mu.RUnlock()

  e, ok := r.entries[name]
  return e, ok
}

// Entries returns every registered entry sorted by device name.
func (r *Registry) Entries() []Entry {
  r.mu.RLock()
  defer r.mu.RUnlock()

  out := make([]Entry, 0, len(r.entries))
  for _, e := range r.entries {
    out = append(out, e)
  }

  sort.Slice(out, func(i, j int) bool {
    return out[i].Declaration.Name() < out[j].Declaration.Name()
  })

  return out
}

func (r *Registry) Declarations() []Declaration {
  entries := r.Entries()
  out := make([]Declaration, len(entries))

  for i, e := range entries {
    out[i] = e.Declaration
  }

  return out
}

// AutoInstantiated returns the entries the host should instantiate on its own.
func (r *Registry) AutoInstantiated() (out []Entry) {
  for _, e := range r.Entries() {
    if e.Declaration.AutoInstantiate() {
      out = append(out, e)
    }
  }

  return out
}

func (r *Registry) Len() int {
  r.mu.RLock()
  defer r.mu.RUnlock()

  return len(r.entries)
}
