package ast

// Module is one parsed source file. The parser fills Classes and
// Functions as the declarations are recognized; Imported holds registry
// indices of the modules this one imports.
type Module struct {
	Name       string
	Dir        string
	Statements []Stmt
	Imported   []int
	Classes    map[string]*ClassStmt
	Functions  map[string]*FunctionStmt
}

// NewModule creates an empty module with the given name and directory.
func NewModule(name, dir string) *Module {
	return &Module{
		Name:      name,
		Dir:       dir,
		Classes:   make(map[string]*ClassStmt),
		Functions: make(map[string]*FunctionStmt),
	}
}

// ModuleEntry pairs a module with its recorded import depth: the
// maximum length of any import chain the module was reached through.
type ModuleEntry struct {
	Module *Module
	Depth  int
}

// Registry is the append-only list of parsed modules. Modules are
// referenced by index; indices stay stable as the registry grows.
// Module names are unique within the registry.
type Registry struct {
	entries []ModuleEntry
	loading map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{loading: make(map[string]bool)}
}

// Len returns the number of registered modules.
func (r *Registry) Len() int { return len(r.entries) }

// Add appends a module at the given depth and returns its index.
func (r *Registry) Add(m *Module, depth int) int {
	r.entries = append(r.entries, ModuleEntry{Module: m, Depth: depth})
	return len(r.entries) - 1
}

// Module returns the module at index i.
func (r *Registry) Module(i int) *Module { return r.entries[i].Module }

// Depth returns the recorded depth of the module at index i.
func (r *Registry) Depth(i int) int { return r.entries[i].Depth }

// Find returns the index of the module with the given name.
func (r *Registry) Find(name string) (int, bool) {
	for i := range r.entries {
		if r.entries[i].Module.Name == name {
			return i, true
		}
	}
	return 0, false
}

// RaiseDepth raises the recorded depth of module i to depth and
// propagates the increase through its transitive imports. Updates that
// do not increase a depth are skipped, and a module already on the
// current propagation path is not entered again, which bounds the
// recursion even when the import graph has cycles.
func (r *Registry) RaiseDepth(i, depth int) {
	onPath := make(map[int]bool)
	var raise func(i, depth int)
	raise = func(i, depth int) {
		if onPath[i] || r.entries[i].Depth >= depth {
			return
		}
		r.entries[i].Depth = depth
		onPath[i] = true
		for _, imp := range r.entries[i].Module.Imported {
			raise(imp, depth+1)
		}
		delete(onPath, i)
	}
	raise(i, depth)
}

// BeginLoad marks a module name as being parsed; it returns false if
// the module is already in progress, which indicates an import cycle.
func (r *Registry) BeginLoad(name string) bool {
	if r.loading[name] {
		return false
	}
	r.loading[name] = true
	return true
}

// EndLoad clears the in-progress mark for name.
func (r *Registry) EndLoad(name string) {
	delete(r.loading, name)
}
