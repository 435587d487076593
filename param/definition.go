package param

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Definition describes a parameter in the device configuration file. Either
// Type or Kind must be set: a Type fixes the REST type up front, a Kind
// only fixes the Store representation and lets the device report its type.
type Definition struct {
	Name      string        `yaml:"name"`
	Type      Type          `yaml:"type"`
	Kind      Kind          `yaml:"kind"`
	Subsystem string        `yaml:"subsystem"`
	Endpoint  string        `yaml:"endpoint"`
	ArraySize int           `yaml:"array_size"`
	Strict    bool          `yaml:"strict"`
	Enum      []string      `yaml:"enum"`
	Epsilon   float64       `yaml:"epsilon"`
	Command   bool          `yaml:"command"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Create builds a parameter from def and adds it to the config map under
// its endpoint.
func (s *Set) Create(def Definition) (*Param, error) {
	if def.Name == "" {
		return nil, errors.Wrap(ErrInvalidType, "parameter definition without name")
	}

	var (
		p   *Param
		err error
	)

	switch {
	case def.Type != TypeUninit:
		p, err = s.CreateWithType(def.Name, def.Type, def.Subsystem, def.Endpoint, def.ArraySize, def.Strict)
	case def.Kind != KindUndefined:
		if def.ArraySize > 0 {
			return nil, errors.Wrapf(ErrInvalidType, "param %q: array parameters need a type", def.Name)
		}

		p, err = s.CreateWithKind(def.Name, def.Kind, def.Subsystem, def.Endpoint)
	default:
		return nil, errors.Wrapf(ErrInvalidType, "param %q: one of type or kind is required", def.Name)
	}

	if err != nil {
		return nil, err
	}

	if def.Strict {
		p.SetStrict()
	}

	if len(def.Enum) > 0 {
		p.SetEnumValues(def.Enum)
	}

	if def.Epsilon != 0 {
		p.SetEpsilon(def.Epsilon)
	}

	if def.Command {
		p.SetCommand()
	}

	if def.Timeout > 0 {
		p.SetTimeout(def.Timeout)
	}

	s.AddToConfigMap(def.Endpoint, p)

	return p, nil
}

// CreateAll creates every definition, stopping at the first failure.
func (s *Set) CreateAll(defs []Definition) ([]*Param, error) {
	params := make([]*Param, 0, len(defs))

	for _, def := range defs {
		p, err := s.Create(def)
		if err != nil {
			return params, err
		}

		params = append(params, p)
	}

	return params, nil
}

type definitionFile struct {
	Params []Definition `yaml:"params"`
}

// ReadDefinitions decodes a YAML document holding a top-level "params" list.
func ReadDefinitions(r io.Reader) ([]Definition, error) {
	var f definitionFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "decode parameter definitions")
	}

	return f.Params, nil
}

func LoadDefinitions(path string) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open parameter definitions")
	}
	defer f.Close()

	return ReadDefinitions(f)
}
