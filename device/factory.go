package device

type Factory interface {
	FromSpec(spec Spec) (Device, error)
}

type FactoryDocs interface {
	Help() string
}

// FromSpec builds a device of the registered type called name.
func (r *Registry) FromSpec(name string, spec Spec) (Device, error) {
	e, ok := r.Lookup(name)
	if !ok || e.Factory == nil {
		return nil, ErrUnknownDevice
	}

	return e.Factory.FromSpec(spec)
}
