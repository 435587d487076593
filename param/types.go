package param

import (
	"fmt"
	"strings"
)

// Type is the value type a REST parameter carries on the device.
type Type uint8

const (
	TypeUninit Type = iota
	TypeBool
	TypeInt
	TypeUint
	TypeDouble
	TypeString
	TypeEnum
	TypeCommand
)

var typeNames = map[Type]string{
	TypeUninit:  "uninit",
	TypeBool:    "bool",
	TypeInt:     "int",
	TypeUint:    "uint",
	TypeDouble:  "float",
	TypeString:  "string",
	TypeEnum:    "enum",
	TypeCommand: "command",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("Type(%d)", uint8(t))
}

// typeFromWire maps a device "value_type" to a Type. Devices are only
// consistent about the first letter (float/f32/float64, int/i32, ...).
func typeFromWire(s string) (Type, bool) {
	if s == "" {
		return TypeUninit, false
	}

	switch s[0] {
	case 's':
		return TypeString, true
	case 'f':
		return TypeDouble, true
	case 'b':
		return TypeBool, true
	case 'u':
		return TypeUint, true
	case 'i':
		return TypeInt, true
	case 'e':
		return TypeEnum, true
	case 'c':
		return TypeCommand, true
	}

	return TypeUninit, false
}

func (t *Type) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))

	switch s {
	case "", "uninit":
		*t = TypeUninit
		return nil
	case "double":
		*t = TypeDouble
		return nil
	}

	for typ, name := range typeNames {
		if name == s {
			*t = typ
			return nil
		}
	}

	return fmt.Errorf("unknown parameter type %q", s)
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// AccessMode tells whether a parameter may be read, written or both.
type AccessMode uint8

const (
	ReadOnly AccessMode = iota
	ReadWrite
	WriteOnly
)

func (a AccessMode) String() string {
	switch a {
	case ReadOnly:
		return "r"
	case ReadWrite:
		return "rw"
	case WriteOnly:
		return "w"
	default:
		return fmt.Sprintf("AccessMode(%d)", uint8(a))
	}
}

// ParseAccessMode parses the wire representation ("r", "rw" or "w").
func ParseAccessMode(s string) (AccessMode, error) {
	switch s {
	case "r":
		return ReadOnly, nil
	case "rw":
		return ReadWrite, nil
	case "w":
		return WriteOnly, nil
	}

	return ReadOnly, fmt.Errorf("%w: %q", ErrInvalidAccessMode, s)
}

func (a *AccessMode) UnmarshalText(text []byte) error {
	mode, err := ParseAccessMode(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}

	*a = mode
	return nil
}

// Limit is an optional min or max bound advertised by the device. Int and
// Float always hold the same bound.
type Limit struct {
	Exists bool
	Int    int
	Float  float64
}

func (l Limit) String() string {
	if !l.Exists {
		return "none"
	}

	return fmt.Sprintf("%g", l.Float)
}

// Kind is the representation used for a parameter in the local Store.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "undefined"
	}
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "":
		*k = KindUndefined
	case "int":
		*k = KindInt
	case "float", "double":
		*k = KindFloat
	case "string":
		*k = KindString
	default:
		return fmt.Errorf("unknown store kind %q", text)
	}

	return nil
}

// kindFor returns the Store representation for a REST type.
func kindFor(t Type) (Kind, bool) {
	switch t {
	case TypeInt, TypeUint, TypeBool, TypeEnum, TypeCommand:
		return KindInt, true
	case TypeDouble:
		return KindFloat, true
	case TypeString:
		return KindString, true
	}

	return KindUndefined, false
}

// typeFor returns the REST type assumed for a local parameter of kind k.
func typeFor(k Kind) (Type, bool) {
	switch k {
	case KindInt:
		return TypeInt, true
	case KindFloat:
		return TypeDouble, true
	case KindString:
		return TypeString, true
	}

	return TypeUninit, false
}
