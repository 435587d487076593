package param

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Set owns the parameters of one device. Parameters are indexed by their
// Store index and, for the ones added to the config map, by their device
// endpoint name so that parameters reported as changed by a write can be
// refreshed.
type Set struct {
	api         API
	store       *Store
	schema      Schema
	concurrency int

	mu      sync.RWMutex
	byIndex map[int]*Param
	byName  map[string]*Param
}

type SetOption func(*Set)

// WithSchema overrides DefaultSchema.
func WithSchema(schema Schema) SetOption {
	return func(s *Set) {
		s.schema = schema
	}
}

// WithConcurrency bounds the number of parameters FetchAll reads at once.
func WithConcurrency(n int) SetOption {
	return func(s *Set) {
		s.concurrency = n
	}
}

func NewSet(api API, store *Store, opts ...SetOption) *Set {
	s := &Set{
		api:         api,
		store:       store,
		schema:      DefaultSchema,
		concurrency: 1,
		byIndex:     make(map[int]*Param),
		byName:      make(map[string]*Param),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.concurrency < 1 {
		s.concurrency = 1
	}

	return s
}

func (s *Set) API() API { return s.api }
func (s *Set) Store() *Store { return s.store }
func (s *Set) Schema() Schema { return s.schema }

// CreateWithKind creates a parameter from its Store representation. An
// empty endpoint creates a local parameter.
func (s *Set) CreateWithKind(name string, kind Kind, subsystem, endpoint string) (*Param, error) {
	p, err := newWithKind(s, name, kind, subsystem, endpoint)
	if err != nil {
		return nil, err
	}

	s.addToIndex(p)
	return p, nil
}

// CreateWithType creates a parameter from its REST type. arraySize > 0
// creates an array parameter; strict parameters also learn limits and
// critical values from the device.
func (s *Set) CreateWithType(name string, typ Type, subsystem, endpoint string, arraySize int, strict bool) (*Param, error) {
	p, err := newWithType(s, name, typ, subsystem, endpoint, arraySize, strict)
	if err != nil {
		return nil, err
	}

	s.addToIndex(p)
	return p, nil
}

func (s *Set) addToIndex(p *Param) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byIndex[p.index] = p
}

// AddToConfigMap makes p reachable by name, typically its endpoint.
func (s *Set) AddToConfigMap(name string, p *Param) {
	if name == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; !ok {
		s.byName[name] = p
	}
}

func (s *Set) ByName(name string) *Param {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.byName[name]
}

// Lookup finds a parameter by its local name or, failing that, by the
// name it was added to the config map with.
func (s *Set) Lookup(name string) *Param {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.byIndex {
		if p.name == name {
			return p
		}
	}

	return s.byName[name]
}

func (s *Set) ByIndex(index int) *Param {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.byIndex[index]
}

// Params returns every parameter ordered by Store index.
func (s *Set) Params() []*Param {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Param, 0, len(s.byIndex))
	for _, p := range s.byIndex {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })

	return out
}

// FetchAll refreshes every parameter. A failing parameter does not stop
// the others; all failures are returned together.
func (s *Set) FetchAll(ctx context.Context) error {
	return s.fetch(ctx, s.Params())
}

// FetchParams refreshes the named parameters. Unknown names are ignored.
func (s *Set) FetchParams(ctx context.Context, names []string) error {
	var params []*Param

	for _, name := range names {
		if p := s.ByName(name); p != nil {
			params = append(params, p)
		} else {
			log.Trace().Str("Param", name).Msg("param: ignoring unknown parameter")
		}
	}

	return s.fetch(ctx, params)
}

func (s *Set) fetch(ctx context.Context, params []*Param) error {
	var (
		eg   errgroup.Group
		mu   sync.Mutex
		errs []error
	)

	eg.SetLimit(s.concurrency)

	for _, p := range params {
		p := p

		eg.Go(func() error {
			if err := p.Fetch(ctx); err != nil {
				mu.Lock()
				errs = append(errs, errors.Wrapf(err, "fetch %q", p.name))
				mu.Unlock()
			}

			return nil
		})
	}

	_ = eg.Wait()

	return stderrors.Join(errs...)
}
