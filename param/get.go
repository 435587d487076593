package param

import (
	"github.com/pkg/errors"
)

// GetBool returns the stored value at address as a bool.
func (p *Param) GetBool(address int) (bool, error) {
	switch {
	case p.kind == KindInt:
		v, err := p.set.store.Int(address, p.index)
		return v != 0, err
	case p.kind == KindString && len(p.EnumValues()) == 2:
		v, err := p.GetInt(address)
		return v != 0, err
	}

	return false, errors.Wrapf(ErrUnexpectedType, "param %q: can't read %v as bool", p.name, p.kind)
}

// GetInt returns the stored value at address as an int. String enums are
// returned as indices.
func (p *Param) GetInt(address int) (int, error) {
	switch {
	case p.kind == KindInt:
		return p.set.store.Int(address, p.index)
	case p.kind == KindString && len(p.EnumValues()) > 0:
		s, err := p.set.store.String(address, p.index)
		if err != nil {
			return 0, err
		}

		return p.enumIndex(s)
	}

	return 0, errors.Wrapf(ErrUnexpectedType, "param %q: can't read %v as int", p.name, p.kind)
}

func (p *Param) GetFloat(address int) (float64, error) {
	return p.set.store.Float(address, p.index)
}

// GetString returns the stored value at address as a string. Integer enums
// are returned as their enum value.
func (p *Param) GetString(address int) (string, error) {
	if p.Type() == TypeEnum && p.kind == KindInt {
		index, err := p.set.store.Int(address, p.index)
		if err != nil {
			return "", err
		}

		return p.enumValue(index)
	}

	return p.set.store.String(address, p.index)
}

func getElems[T any](p *Param, get func(int) (T, error)) ([]T, error) {
	values := make([]T, p.arraySize)

	for i := range values {
		v, err := get(i)
		if err != nil {
			return values, err
		}

		values[i] = v
	}

	return values, nil
}

func (p *Param) GetBools() ([]bool, error) { return getElems(p, p.GetBool) }
func (p *Param) GetInts() ([]int, error) { return getElems(p, p.GetInt) }
func (p *Param) GetFloats() ([]float64, error) { return getElems(p, p.GetFloat) }
func (p *Param) GetStrings() ([]string, error) { return getElems(p, p.GetString) }

// Connected reports whether the last fetch of the element at address succeeded.
func (p *Param) Connected(address int) bool {
	return p.set.store.Connected(address, p.index)
}
