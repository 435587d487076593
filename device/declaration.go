package device

import (
  "errors"
  "fmt"
  "strings"
)

var (
  ErrEmptyName = errors.New("device declaration has an empty name")
  ErrNoLibFiles = errors.New("auto-instantiated device declaration has no library files")
  ErrEmptyLibFile = errors.New("device declaration has an empty library file name")
)

// Declaration is the record a build host reads to support a device type:
// the device name, the libraries to link for it, and whether the host
// should create an instance without being asked to.
//
// A Declaration is immutable once built; use NewDeclaration.
type Declaration struct {
  name string
  libFiles []string
  autoInstantiate bool
}

func NewDeclaration(name string, libFiles []string, autoInstantiate bool) (Declaration, error) {
  if strings.TrimSpace(name) == "" {
    return Declaration{}, ErrEmptyName
  }

  if autoInstantiate && len(libFiles) == 0 {
    return Declaration{}, fmt.Errorf("%w: %q", ErrNoLibFiles, name)
  }

  for i, lib := range libFiles {
    if strings.TrimSpace(lib) == "" {
      return Declaration{}, fmt.Errorf("%w: %q (entry %d)", ErrEmptyLibFile, name, i)
    }
  }

  return Declaration{
    name: name,
    libFiles: append([]string(nil), libFiles...),
    autoInstantiate: autoInstantiate,
  }, nil
}

// MustDeclaration is like NewDeclaration but panics on invalid input. It is
// meant for package-level declarations.
func MustDeclaration(name string, libFiles []string, autoInstantiate bool) Declaration {
  d, err := NewDeclaration(name, libFiles, autoInstantiate)
  if err != nil {
    panic(err)
  }

  return d
}

func (d Declaration) Name() string {
  return d.name
}

// LibFileList returns the library files in link order. The returned slice
// is a copy.
func (d Declaration) LibFileList() []string {
  return append([]string(nil), d.libFiles...)
}

func (d Declaration) AutoInstantiate() bool {
  return d.autoInstantiate
}

func (d Declaration) IsZero() bool {
  return d.name == ""
}

func (d Declaration) Equal(o Declaration) bool {
  if d.name != o.name || d.autoInstantiate != o.autoInstantiate || len(d.libFiles) != len(o.libFiles) {
    return false
  }

  for i := range d.libFiles {
    if d.libFiles[i] != o.libFiles[i] {
      return false
    }
  }

  return true
}

func (d Declaration) String() string {
  return fmt.Sprintf("%s[libs=%v, auto=%v]", d.name, d.libFiles, d.autoInstantiate)
}
