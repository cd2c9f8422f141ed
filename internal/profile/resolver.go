package profile

// Resolver expands profiles from a fixed catalog.
type Resolver struct {
	catalog Catalog
}

// NewResolver creates a resolver over catalog.
func NewResolver(catalog Catalog) *Resolver {
	if catalog == nil {
		catalog = Catalog{}
	}
	return &Resolver{catalog: catalog}
}

// Get returns the named profile.
func (r *Resolver) Get(name string) (Profile, error) {
	p, ok := r.catalog[name]
	if !ok {
		return Profile{}, &UnknownProfileError{Name: name, Known: r.catalog.Names()}
	}
	return p, nil
}

// Resolve returns the task names of the named profile: every uses.before
// profile expanded in order, then the profile's own tasks, then every
// uses.after profile expanded in order. Expansion is recursive. Names may
// repeat; deduplication belongs to the task registry.
func (r *Resolver) Resolve(name string) ([]string, error) {
	var out []string
	if err := r.expand(name, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// expand appends the tasks of name to out. stack holds the profiles being
// expanded above this one.
func (r *Resolver) expand(name string, stack []string, out *[]string) error {
	for i, s := range stack {
		if s == name {
			path := append(append([]string{}, stack[i:]...), name)
			return &CyclicProfileError{Path: path}
		}
	}

	p, err := r.Get(name)
	if err != nil {
		return err
	}

	stack = append(stack, name)
	for _, before := range p.Uses.Before {
		if err := r.expand(before, stack, out); err != nil {
			return err
		}
	}
	*out = append(*out, p.Tasks...)
	for _, after := range p.Uses.After {
		if err := r.expand(after, stack, out); err != nil {
			return err
		}
	}
	return nil
}
