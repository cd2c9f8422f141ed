package task

// Registry is the ordered set of tasks for a single run. The first request
// for a name wins; later requests for the same name are ignored.
type Registry struct {
	catalog Catalog
	tasks   []*Task
	index   map[string]int
}

// NewRegistry creates an empty registry backed by catalog.
func NewRegistry(catalog Catalog) *Registry {
	if catalog == nil {
		catalog = Catalog{}
	}
	return &Registry{
		catalog: catalog,
		tasks:   make([]*Task, 0),
		index:   make(map[string]int),
	}
}

// Add registers the named task. It fails with *UnknownTaskError when the
// catalog has no such task and is a no-op when the task is already present.
func (r *Registry) Add(name string) error {
	if _, ok := r.index[name]; ok {
		return nil
	}
	def, ok := r.catalog[name]
	if !ok {
		return &UnknownTaskError{Name: name, Known: r.catalog.Names()}
	}
	r.index[name] = len(r.tasks)
	r.tasks = append(r.tasks, New(name, def))
	return nil
}

// AddAll registers names in order, stopping at the first error.
func (r *Registry) AddAll(names []string) error {
	for _, name := range names {
		if err := r.Add(name); err != nil {
			return err
		}
	}
	return nil
}

// Tasks returns the registered tasks in first-seen order.
func (r *Registry) Tasks() []*Task {
	out := make([]*Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

// Get returns the registered task with the given name.
func (r *Registry) Get(name string) (*Task, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.tasks[i], true
}

// Names returns the registered task names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.tasks))
	for i, t := range r.tasks {
		names[i] = t.Name
	}
	return names
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	return len(r.tasks)
}
