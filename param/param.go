// Package param binds parameters of a REST device to a local Store.
//
// A Param knows how to fetch its value from the device, convert it to the
// representation used in the Store and write new values back. Parameter
// metadata (type, access mode, limits, enum values) is learnt from the
// first reply the device sends, unless it was configured up front.
package param

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 20 * time.Second

// API is the device transport a Set talks to.
type API interface {
	Get(ctx context.Context, subsystem, name string) ([]byte, error)
	Put(ctx context.Context, subsystem, name, rawValue string) ([]byte, error)
	// LookupAccessMode returns the access mode shared by every parameter of
	// subsystem, if the device defines one.
	LookupAccessMode(subsystem string) (AccessMode, bool)
}

// Schema names the fields of a device reply.
type Schema struct {
	// Value is the key holding the parameter value. When empty, the
	// parameter's own endpoint name is used as the key.
	Value          string
	Type           string
	Min            string
	Max            string
	EnumValues     string
	AccessMode     string
	CriticalValues string
}

var DefaultSchema = Schema{
	Value:          "value",
	Type:           "value_type",
	Min:            "min",
	Max:            "max",
	EnumValues:     "allowed_values",
	AccessMode:     "access_mode",
	CriticalValues: "critical_values",
}

type Param struct {
	set *Set

	name      string
	kind      Kind
	index     int
	subsystem string
	endpoint  string
	remote    bool
	arraySize int

	mu             sync.Mutex
	strict         bool
	typ            Type
	access         AccessMode
	min, max       Limit
	enumValues     []string
	criticalValues []string
	customEnum     bool
	epsilon        float64
	timeout        time.Duration
	initialised    bool
}

// newWithKind creates a parameter from its Store representation. A remote
// parameter learns its REST type from the device.
func newWithKind(set *Set, name string, kind Kind, subsystem, endpoint string) (*Param, error) {
	p := &Param{
		set:       set,
		name:      name,
		kind:      kind,
		index:     -1,
		subsystem: subsystem,
		endpoint:  endpoint,
		remote:    endpoint != "",
		timeout:   DefaultTimeout,
	}

	// write-only parameters are never read back, so their type can only
	// come from the Store representation.
	if mode, ok := p.subsystemMode(); ok {
		p.access = mode
	}

	if !p.remote || p.access == WriteOnly {
		typ, ok := typeFor(kind)
		if !ok {
			return nil, errors.Wrapf(ErrInvalidType, "param %q: invalid store kind %v", name, kind)
		}

		p.typ = typ
	}

	if err := p.bind(); err != nil {
		return nil, err
	}

	return p, nil
}

// newWithType creates a parameter from its REST type.
func newWithType(set *Set, name string, typ Type, subsystem, endpoint string, arraySize int, strict bool) (*Param, error) {
	kind, ok := kindFor(typ)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidType, "param %q: invalid REST type %v", name, typ)
	}

	p := &Param{
		set:       set,
		name:      name,
		kind:      kind,
		index:     -1,
		subsystem: subsystem,
		endpoint:  endpoint,
		remote:    endpoint != "",
		typ:       typ,
		arraySize: arraySize,
		strict:    strict,
		timeout:   DefaultTimeout,
	}

	if mode, ok := p.subsystemMode(); ok {
		p.access = mode
	}

	if typ == TypeCommand {
		p.access = WriteOnly
	}

	if err := p.bind(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Param) subsystemMode() (AccessMode, bool) {
	if !p.remote || p.set.api == nil {
		return ReadOnly, false
	}

	return p.set.api.LookupAccessMode(p.subsystem)
}

// bind attaches the parameter to its Store entry, creating it if needed.
// A Store entry can only be bound to one Param.
func (p *Param) bind() error {
	store := p.set.store

	if index, ok := store.Find(p.name); ok {
		if other := p.set.ByIndex(index); other != nil {
			return errors.Wrapf(ErrAlreadyBound, "param %q is already bound to %q", p.name, other.endpoint)
		}

		if store.Kind(index) != p.kind {
			return errors.Wrapf(ErrKindMismatch, "param %q", p.name)
		}

		log.Trace().Str("Param", p.name).Msg("param: binding to existing store entry")
		p.index = index
		return nil
	}

	log.Trace().Str("Param", p.name).Stringer("Kind", p.kind).Msg("param: creating store entry")

	index, err := store.Create(p.name, p.kind)
	if err != nil {
		return errors.Wrapf(err, "param %q: failed to create store entry", p.name)
	}

	p.index = index

	for address := 0; address < p.arraySize; address++ {
		switch p.kind {
		case KindInt:
			err = store.SetInt(address, index, 0)
		case KindFloat:
			err = store.SetFloat(address, index, 0)
		case KindString:
			err = store.SetString(address, index, "")
		}

		if err != nil {
			return errors.Wrapf(err, "param %q: failed to initialise element %d", p.name, address)
		}
	}

	return nil
}

func (p *Param) Name() string { return p.name }
func (p *Param) Endpoint() string { return p.endpoint }
func (p *Param) Subsystem() string { return p.subsystem }
func (p *Param) Index() int { return p.index }
func (p *Param) Kind() Kind { return p.kind }
func (p *Param) Remote() bool { return p.remote }
func (p *Param) ArraySize() int { return p.arraySize }

func (p *Param) Type() Type {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.typ
}

func (p *Param) AccessMode() AccessMode {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.access
}

func (p *Param) Limits() (min, max Limit) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.min, p.max
}

func (p *Param) EnumValues() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.enumValues...)
}

func (p *Param) Initialised() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.initialised
}

// SetCommand marks the parameter as a write-only command.
func (p *Param) SetCommand() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.typ = TypeCommand
	p.access = WriteOnly
}

// SetStrict makes the parameter learn its limits and critical values from
// the device. It takes effect on the next initialisation.
func (p *Param) SetStrict() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.strict = true
}

// SetEpsilon makes PutFloat skip writes closer than epsilon to the stored value.
func (p *Param) SetEpsilon(epsilon float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.epsilon = epsilon
}

func (p *Param) SetTimeout(timeout time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.timeout = timeout
}

// SetEnumValues overrides the enum values advertised by the device.
func (p *Param) SetEnumValues(values []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.enumValues = append([]string(nil), values...)
	p.customEnum = true
}

// IsCritical reports whether value is one of the critical values
// advertised by the device. Only strict parameters learn critical values.
func (p *Param) IsCritical(value string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, v := range p.criticalValues {
		if v == value {
			return true
		}
	}

	return false
}

func (p *Param) String() string {
	return fmt.Sprintf("param[name=%q, endpoint=%q]", p.name, p.subsystem+p.endpoint)
}

// initialise learns the parameter metadata from a device reply. Callers
// must hold p.mu.
func (p *Param) initialise(doc reply) error {
	schema := p.set.schema
	p.initialised = false

	if mode, ok := p.set.api.LookupAccessMode(p.subsystem); ok {
		p.access = mode
	} else if mode, err := p.parseAccessMode(doc); err == nil {
		p.access = mode
	} else {
		p.access = ReadOnly
	}

	if p.typ == TypeUninit {
		typ, err := p.parseType(doc)
		if err != nil {
			return errors.Wrapf(err, "param %q: unable to parse parameter type", p.endpoint)
		}

		p.typ = typ
	}

	if p.typ == TypeEnum && !p.customEnum {
		p.enumValues = doc.array(schema.EnumValues)

		if len(p.enumValues) == 0 {
			return errors.Wrapf(ErrInvalidReply, "param %q: unable to parse enum values", p.endpoint)
		}
	}

	if p.strict {
		p.criticalValues = doc.array(schema.CriticalValues)

		if p.typ == TypeInt || p.typ == TypeUint || p.typ == TypeDouble {
			var err error

			if p.min, err = p.parseLimit(doc, schema.Min); err != nil {
				return errors.Wrapf(err, "param %q: unable to parse min limit", p.endpoint)
			}

			if p.max, err = p.parseLimit(doc, schema.Max); err != nil {
				return errors.Wrapf(err, "param %q: unable to parse max limit", p.endpoint)
			}
		}
	}

	p.initialised = true

	log.Debug().
		Str("Param", p.name).
		Stringer("Type", p.typ).
		Stringer("AccessMode", p.access).
		Strs("EnumValues", p.enumValues).
		Msg("param: initialised from device reply")

	return nil
}

func (p *Param) parseType(doc reply) (Type, error) {
	schema := p.set.schema

	typeStr, ok := doc.str(schema.Type)
	if !ok {
		return TypeUninit, errors.Wrapf(ErrInvalidReply, "unable to find %q field", schema.Type)
	}

	if _, ok := doc[schema.EnumValues]; ok {
		typeStr = "enum"
	}

	if mode, ok := doc.str(schema.AccessMode); ok && len(mode) > 0 && mode[0] == 'w' {
		typeStr = "command"
	}

	typ, ok := typeFromWire(typeStr)
	if !ok {
		return TypeUninit, errors.Wrapf(ErrInvalidType, "unrecognized value type %q", typeStr)
	}

	return typ, nil
}

func (p *Param) parseAccessMode(doc reply) (AccessMode, error) {
	mode, ok := doc.str(p.set.schema.AccessMode)
	if !ok {
		return ReadOnly, errors.Wrap(ErrInvalidReply, "no access mode")
	}

	return ParseAccessMode(mode)
}

func (p *Param) parseLimit(doc reply, key string) (Limit, error) {
	raw, ok := doc.str(key)
	if !ok {
		return Limit{}, nil
	}

	typeStr, ok := doc.str(p.set.schema.Type)
	if !ok || typeStr == "" {
		return Limit{}, errors.Wrapf(ErrInvalidReply, "failed to find %q", p.set.schema.Type)
	}

	switch typeStr[0] {
	case 'i', 'u':
		v, err := parseInt(raw)
		if err != nil {
			return Limit{}, err
		}

		return Limit{Exists: true, Int: v, Float: float64(v)}, nil
	case 'f':
		v, err := parseFloat(raw)
		if err != nil {
			return Limit{}, err
		}

		return Limit{Exists: true, Int: int(v), Float: v}, nil
	}

	return Limit{Exists: true}, nil
}

// reply is a decoded JSON object sent by the device.
type reply map[string]json.RawMessage

func decodeReply(b []byte) (reply, error) {
	var doc reply

	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrapf(ErrInvalidReply, "unable to parse json response: %v [%s]", err, b)
	}

	return doc, nil
}

// str returns the raw text of key, with quotes removed for strings.
func (r reply) str(key string) (string, bool) {
	raw, ok := r[key]
	if !ok {
		return "", false
	}

	return rawString(raw), true
}

func (r reply) array(key string) []string {
	raw, ok := r[key]
	if !ok {
		return nil
	}

	return rawArray(raw)
}

func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)

	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}

	return string(raw)
}

// rawArray returns the elements of a JSON array, or a single element slice
// for a JSON string.
func rawArray(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)

	if len(raw) == 0 {
		return nil
	}

	switch raw[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil
		}

		out := make([]string, len(elems))
		for i, e := range elems {
			out[i] = rawString(e)
		}

		return out
	case '"':
		return []string{rawString(raw)}
	}

	return nil
}

func parseBool(raw string) (bool, error) {
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	return false, errors.Wrapf(ErrInvalidValue, "couldn't parse value %q as boolean", raw)
}

// parseInt accepts integers and truncates decimals, as devices sometimes
// report integer parameters as 3.0.
func parseInt(raw string) (int, error) {
	if v, err := strconv.Atoi(raw); err == nil {
		return v, nil
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidValue, "couldn't parse value %q as integer", raw)
	}

	return int(f), nil
}

func parseFloat(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidValue, "couldn't parse value %q as double", raw)
	}

	return v, nil
}
