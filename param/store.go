package param

import (
	"fmt"
	"sort"
	"sync"
)

// Store is the local parameter table REST parameters are bound to. Each
// parameter is identified by an index and holds one value per address;
// array parameters use one address per element.
//
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries []*storeEntry
	byName  map[string]int
}

type storeEntry struct {
	name   string
	kind   Kind
	values map[int]*Value
}

// Value is a copy of one stored value.
type Value struct {
	Name      string
	Index     int
	Address   int
	Kind      Kind
	Int       int
	Float     float64
	String    string
	Connected bool
}

func NewStore() *Store {
	return &Store{
		byName: make(map[string]int),
	}
}

// Find returns the index of the parameter called name.
func (s *Store) Find(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, ok := s.byName[name]
	return index, ok
}

// Create adds a parameter and returns its index. Creating a name twice
// returns the existing index.
func (s *Store) Create(name string, kind Kind) (int, error) {
	if kind == KindUndefined {
		return -1, fmt.Errorf("%w: cannot create %q with undefined kind", ErrKindMismatch, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if index, ok := s.byName[name]; ok {
		if s.entries[index].kind != kind {
			return -1, fmt.Errorf("%w: %q exists as %v, requested %v",
				ErrKindMismatch, name, s.entries[index].kind, kind)
		}

		return index, nil
	}

	s.entries = append(s.entries, &storeEntry{
		name:   name,
		kind:   kind,
		values: make(map[int]*Value),
	})

	index := len(s.entries) - 1
	s.byName[name] = index

	return index, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

func (s *Store) Name(index int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.entries) {
		return ""
	}

	return s.entries[index].name
}

func (s *Store) Kind(index int) Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.entries) {
		return KindUndefined
	}

	return s.entries[index].kind
}

// value returns the slot for (address, index), creating it when create is
// set. Callers must hold the appropriate lock.
func (s *Store) value(address, index int, kind Kind, create bool) (*Value, error) {
	if index < 0 || index >= len(s.entries) {
		return nil, fmt.Errorf("%w: index %d", ErrNoSuchParam, index)
	}

	if address < 0 {
		address = 0
	}

	e := s.entries[index]

	if kind != KindUndefined && e.kind != kind {
		return nil, fmt.Errorf("%w: %q is %v, accessed as %v", ErrKindMismatch, e.name, e.kind, kind)
	}

	if v, ok := e.values[address]; ok {
		return v, nil
	}

	v := &Value{Name: e.name, Index: index, Address: address, Kind: e.kind}

	if create {
		e.values[address] = v
	}

	return v, nil
}

func (s *Store) SetInt(address, index, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.value(address, index, KindInt, true)
	if err != nil {
		return err
	}

	v.Int = value
	return nil
}

func (s *Store) SetFloat(address, index int, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.value(address, index, KindFloat, true)
	if err != nil {
		return err
	}

	v.Float = value
	return nil
}

func (s *Store) SetString(address, index int, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.value(address, index, KindString, true)
	if err != nil {
		return err
	}

	v.String = value
	return nil
}

func (s *Store) Int(address, index int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.value(address, index, KindInt, false)
	if err != nil {
		return 0, err
	}

	return v.Int, nil
}

func (s *Store) Float(address, index int) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.value(address, index, KindFloat, false)
	if err != nil {
		return 0, err
	}

	return v.Float, nil
}

func (s *Store) String(address, index int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.value(address, index, KindString, false)
	if err != nil {
		return "", err
	}

	return v.String, nil
}

// SetConnected records whether the last exchange with the device for
// (address, index) succeeded.
func (s *Store) SetConnected(address, index int, connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.value(address, index, KindUndefined, true)
	if err != nil {
		return err
	}

	v.Connected = connected
	return nil
}

func (s *Store) Connected(address, index int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.value(address, index, KindUndefined, false)
	if err != nil {
		return false
	}

	return v.Connected
}

// Snapshot returns a copy of every stored value ordered by index, then
// address.
func (s *Store) Snapshot() []Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Value

	for _, e := range s.entries {
		start := len(out)

		for _, v := range e.values {
			out = append(out, *v)
		}

		part := out[start:]
		sort.Slice(part, func(i, j int) bool { return part[i].Address < part[j].Address })
	}

	return out
}
