package param

import (
	"context"
	stderrors "errors"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/robertof/go-restclient-exporter/jsondict"
)

// fetchReply reads the parameter from the device and initialises it from
// the reply if needed. ok is false when the parameter cannot be read
// (write-only) and the caller should fall back to the stored value.
func (p *Param) fetchReply(ctx context.Context) (doc reply, ok bool, err error) {
	if !p.remote {
		return nil, false, errors.Wrapf(ErrLocal, "param %q: can't fetch local parameter", p.name)
	}

	p.mu.Lock()
	access, timeout := p.access, p.timeout
	p.mu.Unlock()

	if access == WriteOnly {
		return nil, false, nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	buf, err := p.set.api.Get(ctx, p.subsystem, p.endpoint)
	if err != nil {
		return nil, false, errors.Wrapf(err, "param %q: request failed", p.endpoint)
	}

	doc, err = decodeReply(buf)
	if err != nil {
		return nil, false, errors.Wrapf(err, "param %q", p.endpoint)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialised {
		if err := p.initialise(doc); err != nil {
			return nil, false, errors.Wrapf(err, "unable to initialise param from response [%s]", buf)
		}
	}

	return doc, true, nil
}

func (p *Param) valueKey() string {
	if key := p.set.schema.Value; key != "" {
		return key
	}

	return p.endpoint
}

func (p *Param) fetchRaw(ctx context.Context) (string, bool, error) {
	doc, ok, err := p.fetchReply(ctx)
	if err != nil || !ok {
		return "", ok, err
	}

	raw, found := doc.str(p.valueKey())
	if !found {
		return "", false, errors.Wrapf(ErrInvalidReply, "param %q: unable to find %q json field",
			p.endpoint, p.valueKey())
	}

	log.Trace().Str("Param", p.name).Str("RawValue", raw).Msg("param: fetched value")

	return raw, true, nil
}

func (p *Param) fetchRawArray(ctx context.Context) ([]string, bool, error) {
	doc, ok, err := p.fetchReply(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}

	raws := doc.array(p.valueKey())
	if len(raws) == 0 {
		return nil, false, errors.Wrapf(ErrInvalidReply, "param %q: unable to parse raw value array",
			p.endpoint)
	}

	return raws, true, nil
}

func (p *Param) readable() bool {
	return p.remote && p.Type() != TypeCommand
}

// FetchBool reads a bool or two-valued enum parameter from the device.
func (p *Param) FetchBool(ctx context.Context) (bool, error) {
	if !p.readable() {
		return p.GetBool(0)
	}

	raw, ok, err := p.fetchRaw(ctx)
	if err != nil {
		return false, err
	}

	if !ok {
		return p.GetBool(0)
	}

	v, err := p.parseBoolValue(raw)
	if err != nil {
		return false, err
	}

	return v, p.storeInt(0, boolToInt(v))
}

// FetchInt reads an int, uint, bool or enum parameter from the device. Enum
// values are returned as indices.
func (p *Param) FetchInt(ctx context.Context) (int, error) {
	if !p.readable() {
		return p.GetInt(0)
	}

	raw, ok, err := p.fetchRaw(ctx)
	if err != nil {
		return 0, err
	}

	if !ok {
		return p.GetInt(0)
	}

	v, err := p.parseIntValue(raw)
	if err != nil {
		return 0, err
	}

	return v, p.storeInt(0, v)
}

func (p *Param) FetchFloat(ctx context.Context) (float64, error) {
	if !p.readable() {
		return p.GetFloat(0)
	}

	if typ := p.Type(); typ != TypeDouble && typ != TypeUninit {
		return 0, errors.Wrapf(ErrUnexpectedType, "param %q: %v", p.name, typ)
	}

	raw, ok, err := p.fetchRaw(ctx)
	if err != nil {
		return 0, err
	}

	if !ok {
		return p.GetFloat(0)
	}

	v, err := parseFloat(raw)
	if err != nil {
		return 0, err
	}

	return v, p.storeFloat(0, v)
}

func (p *Param) FetchString(ctx context.Context) (string, error) {
	if !p.readable() {
		return p.GetString(0)
	}

	if typ := p.Type(); typ != TypeString && typ != TypeEnum && typ != TypeUninit {
		return "", errors.Wrapf(ErrUnexpectedType, "param %q: %v", p.name, typ)
	}

	raw, ok, err := p.fetchRaw(ctx)
	if err != nil {
		return "", err
	}

	if !ok {
		return p.GetString(0)
	}

	return raw, p.storeString(0, raw)
}

// fetchElems reads an array parameter and stores every element. The
// returned slice of errors has one entry per element.
func fetchElems[T any](
	ctx context.Context,
	p *Param,
	parse func(string) (T, error),
	store func(int, T) error,
	get func(int) (T, error),
) ([]T, []error) {
	values := make([]T, p.arraySize)
	errs := make([]error, p.arraySize)

	if !p.readable() {
		for i := range values {
			values[i], errs[i] = get(i)
		}

		return values, errs
	}

	raws, ok, err := p.fetchRawArray(ctx)
	if err != nil {
		for i := range errs {
			errs[i] = err
		}

		return values, errs
	}

	if !ok {
		for i := range values {
			values[i], errs[i] = get(i)
		}

		return values, errs
	}

	for i := range values {
		if i >= len(raws) {
			errs[i] = errors.Wrapf(ErrInvalidReply, "param %q: missing element %d", p.endpoint, i)
			continue
		}

		v, err := parse(raws[i])
		if err != nil {
			errs[i] = err
			continue
		}

		values[i] = v
		errs[i] = store(i, v)
	}

	return values, errs
}

func (p *Param) FetchBools(ctx context.Context) ([]bool, error) {
	values, errs := fetchElems(ctx, p, p.parseBoolValue,
		func(address int, v bool) error { return p.storeInt(address, boolToInt(v)) },
		p.GetBool)

	return values, stderrors.Join(errs...)
}

func (p *Param) FetchInts(ctx context.Context) ([]int, error) {
	values, errs := fetchElems(ctx, p, p.parseIntValue, p.storeInt, p.GetInt)

	return values, stderrors.Join(errs...)
}

func (p *Param) FetchFloats(ctx context.Context) ([]float64, error) {
	if typ := p.Type(); p.readable() && typ != TypeDouble && typ != TypeUninit {
		return make([]float64, p.arraySize), errors.Wrapf(ErrUnexpectedType, "param %q: %v", p.name, typ)
	}

	values, errs := fetchElems(ctx, p, parseFloat, p.storeFloat, p.GetFloat)

	return values, stderrors.Join(errs...)
}

func (p *Param) FetchStrings(ctx context.Context) ([]string, error) {
	if typ := p.Type(); p.readable() && typ != TypeString && typ != TypeEnum && typ != TypeUninit {
		return make([]string, p.arraySize), errors.Wrapf(ErrUnexpectedType, "param %q: %v", p.name, typ)
	}

	values, errs := fetchElems(ctx, p, func(s string) (string, error) { return s, nil },
		p.storeString, p.GetString)

	return values, stderrors.Join(errs...)
}

// Fetch refreshes the stored value from the device using the parameter's
// Store representation and updates its connected status.
func (p *Param) Fetch(ctx context.Context) error {
	store := p.set.store

	if p.arraySize > 0 {
		var errs []error

		switch p.kind {
		case KindInt:
			_, errs = fetchElems(ctx, p, p.parseIntValue, p.storeInt, p.GetInt)
		case KindFloat:
			_, errs = fetchElems(ctx, p, parseFloat, p.storeFloat, p.GetFloat)
		case KindString:
			_, errs = fetchElems(ctx, p, func(s string) (string, error) { return s, nil },
				p.storeString, p.GetString)
		}

		for address, err := range errs {
			if serr := store.SetConnected(address, p.index, err == nil); serr != nil {
				errs = append(errs, serr)
			}
		}

		return stderrors.Join(errs...)
	}

	var err error

	switch p.kind {
	case KindInt:
		_, err = p.FetchInt(ctx)
	case KindFloat:
		_, err = p.FetchFloat(ctx)
	case KindString:
		_, err = p.FetchString(ctx)
	}

	if serr := store.SetConnected(0, p.index, err == nil); serr != nil && err == nil {
		err = serr
	}

	return err
}

func (p *Param) parseBoolValue(raw string) (bool, error) {
	switch typ := p.Type(); typ {
	case TypeBool:
		return parseBool(raw)
	case TypeEnum:
		enum := p.EnumValues()

		if len(enum) != 2 {
			return false, errors.Wrapf(ErrUnexpectedType, "param %q: can't fetch non-binary enum as bool", p.name)
		}

		index, err := p.enumIndex(raw)
		if err != nil {
			return false, err
		}

		return index != 0, nil
	default:
		return false, errors.Wrapf(ErrUnexpectedType, "param %q: %v", p.name, typ)
	}
}

func (p *Param) parseIntValue(raw string) (int, error) {
	switch typ := p.Type(); typ {
	case TypeEnum:
		return p.enumIndex(raw)
	case TypeBool:
		v, err := parseBool(raw)
		return boolToInt(v), err
	case TypeInt, TypeUint:
		return parseInt(raw)
	default:
		return 0, errors.Wrapf(ErrUnexpectedType, "param %q: %v", p.name, typ)
	}
}

func (p *Param) enumIndex(value string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, v := range p.enumValues {
		if v == value {
			return i, nil
		}
	}

	return -1, errors.Wrapf(ErrUnknownEnum, "param %q: can't find index of value %q", p.name, value)
}

func (p *Param) enumValue(index int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= len(p.enumValues) {
		return "", errors.Wrapf(ErrUnknownEnum, "param %q: enum index %d out of range", p.name, index)
	}

	return p.enumValues[index], nil
}

// storeInt writes an integer to the Store, converting it to the parameter's
// Store representation.
func (p *Param) storeInt(address, v int) error {
	store := p.set.store

	switch p.kind {
	case KindInt:
		return store.SetInt(address, p.index, v)
	case KindFloat:
		return store.SetFloat(address, p.index, float64(v))
	case KindString:
		if p.Type() == TypeEnum {
			s, err := p.enumValue(v)
			if err != nil {
				return err
			}

			return store.SetString(address, p.index, s)
		}

		return store.SetString(address, p.index, strconv.Itoa(v))
	}

	return errors.Wrapf(ErrKindMismatch, "param %q", p.name)
}

func (p *Param) storeFloat(address int, v float64) error {
	store := p.set.store

	switch p.kind {
	case KindFloat:
		return store.SetFloat(address, p.index, v)
	case KindInt:
		return store.SetInt(address, p.index, int(v))
	case KindString:
		return store.SetString(address, p.index, jsondict.FormatFloat(v))
	}

	return errors.Wrapf(ErrKindMismatch, "param %q", p.name)
}

func (p *Param) storeString(address int, v string) error {
	store := p.set.store

	switch p.kind {
	case KindString:
		return store.SetString(address, p.index, v)
	case KindInt:
		var (
			i   int
			err error
		)

		if p.Type() == TypeEnum {
			i, err = p.enumIndex(v)
		} else {
			i, err = parseInt(v)
		}

		if err != nil {
			return err
		}

		return store.SetInt(address, p.index, i)
	case KindFloat:
		f, err := parseFloat(v)
		if err != nil {
			return err
		}

		return store.SetFloat(address, p.index, f)
	}

	return errors.Wrapf(ErrKindMismatch, "param %q", p.name)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
