package param

import (
	"bytes"
	"context"
	"math"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/robertof/go-restclient-exporter/jsondict"
)

// Put* methods write a value to the device (for remote parameters) and, if
// that succeeds, to the Store. index addresses an element of an array
// parameter; pass -1 for scalar parameters.

func address(index int) int {
	if index < 0 {
		return 0
	}

	return index
}

func (p *Param) ensureInitialised(ctx context.Context) error {
	if p.Initialised() {
		return nil
	}

	if err := p.Fetch(ctx); err != nil {
		return errors.Wrapf(err, "param %q: initial fetch failed", p.name)
	}

	return nil
}

func (p *Param) PutBool(ctx context.Context, value bool, index int) error {
	log.Trace().Str("Param", p.name).Bool("Value", value).Int("Index", index).Msg("param: put")

	if !p.remote {
		return p.storeInt(address(index), boolToInt(value))
	}

	if err := p.ensureInitialised(ctx); err != nil {
		return err
	}

	var raw string

	switch typ := p.Type(); typ {
	case TypeBool, TypeCommand:
		raw = strconv.FormatBool(value)
	case TypeEnum:
		enum := p.EnumValues()

		if len(enum) != 2 {
			return errors.Wrapf(ErrUnexpectedType, "param %q: can't put bool to non-binary enum", p.name)
		}

		raw = jsondict.Quote(enum[boolToInt(value)])
	default:
		return errors.Wrapf(ErrUnexpectedType, "param %q: can't put bool to %v", p.name, typ)
	}

	if err := p.basePut(ctx, raw, index); err != nil {
		return err
	}

	return p.storeInt(address(index), boolToInt(value))
}

// PutInt writes an integer, clamping it to the limits advertised by the
// device. Enum parameters take the enum index.
func (p *Param) PutInt(ctx context.Context, value int, index int) error {
	log.Trace().Str("Param", p.name).Int("Value", value).Int("Index", index).Msg("param: put")

	if p.remote {
		if err := p.ensureInitialised(ctx); err != nil {
			return err
		}

		typ := p.Type()

		switch typ {
		case TypeBool, TypeInt, TypeUint, TypeEnum, TypeCommand:
		default:
			return errors.Wrapf(ErrUnexpectedType, "param %q: expected bool, int, uint or enum, got %v",
				p.name, typ)
		}

		min, max := p.Limits()

		if min.Exists && value < min.Int {
			log.Warn().Str("Param", p.name).Int("Value", value).Int("Min", min.Int).Msg("param: clamped to min")
			value = min.Int
		}

		if max.Exists && value > max.Int {
			log.Warn().Str("Param", p.name).Int("Value", value).Int("Max", max.Int).Msg("param: clamped to max")
			value = max.Int
		}

		// negative values can't be written to an unsigned parameter
		if typ == TypeUint && value < 0 {
			value = 0
		}

		var raw string

		switch typ {
		case TypeBool:
			raw = strconv.FormatBool(value != 0)
		case TypeEnum:
			s, err := p.enumValue(value)
			if err != nil {
				return err
			}

			raw = jsondict.Quote(s)
		default:
			raw = strconv.Itoa(value)
		}

		if err := p.basePut(ctx, raw, index); err != nil {
			return errors.Wrapf(err, "param %q: underlying put failed", p.name)
		}
	}

	return p.storeInt(address(index), value)
}

// PutFloat writes a float, clamping it to the limits advertised by the
// device. Writes within epsilon of the stored value are skipped.
func (p *Param) PutFloat(ctx context.Context, value float64, index int) error {
	log.Trace().Str("Param", p.name).Float64("Value", value).Int("Index", index).Msg("param: put")

	p.mu.Lock()
	epsilon := p.epsilon
	p.mu.Unlock()

	if epsilon != 0 {
		if current, err := p.GetFloat(address(index)); err == nil && math.Abs(current-value) < epsilon {
			return nil
		}
	}

	if p.remote {
		if err := p.ensureInitialised(ctx); err != nil {
			return err
		}

		if typ := p.Type(); typ != TypeDouble {
			return errors.Wrapf(ErrUnexpectedType, "param %q: can't put float to %v", p.name, typ)
		}

		min, max := p.Limits()

		if min.Exists && value < min.Float {
			value = min.Float
			log.Warn().Str("Param", p.name).Float64("Value", value).Msg("param: clamped to min")
		}

		if max.Exists && value > max.Float {
			value = max.Float
			log.Warn().Str("Param", p.name).Float64("Value", value).Msg("param: clamped to max")
		}

		if err := p.basePut(ctx, jsondict.FormatFloat(value), index); err != nil {
			return err
		}
	}

	return p.storeFloat(address(index), value)
}

// PutString writes a string or enum value.
func (p *Param) PutString(ctx context.Context, value string, index int) error {
	log.Trace().Str("Param", p.name).Str("Value", value).Int("Index", index).Msg("param: put")

	if !p.remote {
		return p.storeString(address(index), value)
	}

	if err := p.ensureInitialised(ctx); err != nil {
		return err
	}

	switch typ := p.Type(); typ {
	case TypeString:
	case TypeEnum:
		if _, err := p.enumIndex(value); err != nil {
			return err
		}
	default:
		return errors.Wrapf(ErrUnexpectedType, "param %q: can't put string to %v", p.name, typ)
	}

	if err := p.basePut(ctx, jsondict.Quote(value), index); err != nil {
		return err
	}

	return p.storeString(address(index), value)
}

// basePut sends rawValue to the device. The device may answer with the list
// of parameters the write changed, which are then re-fetched.
func (p *Param) basePut(ctx context.Context, rawValue string, index int) error {
	p.mu.Lock()
	access, timeout := p.access, p.timeout
	p.mu.Unlock()

	if access == ReadOnly {
		return errors.Wrapf(ErrReadOnly, "param %q: can't write to read-only parameter", p.name)
	}

	endpoint := p.endpoint
	if index >= 0 {
		endpoint += "/" + strconv.Itoa(index)
	}

	putCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		putCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	reply, err := p.set.api.Put(putCtx, p.subsystem, endpoint, rawValue)
	if err != nil {
		return errors.Wrapf(err, "param %q: put failed", p.name)
	}

	reply = bytes.TrimSpace(reply)
	if len(reply) == 0 {
		return nil
	}

	if !json.Valid(reply) {
		return errors.Wrapf(ErrInvalidReply, "param %q: unable to parse json response [%s]", p.endpoint, reply)
	}

	if changed := rawArray(reply); len(changed) > 0 {
		log.Debug().Str("Param", p.name).Strs("Changed", changed).Msg("param: refreshing parameters changed by put")

		if err := p.set.FetchParams(ctx, changed); err != nil {
			log.Warn().Err(err).Str("Param", p.name).Msg("param: failed to refresh changed parameters")
		}
	}

	return nil
}
