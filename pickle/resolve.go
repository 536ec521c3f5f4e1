package pickle

import (
	"fmt"
	"strings"
	"sync"
)

// Importer is the single boundary between the machine and the host's type
// universe. GLOBAL, STACK_GLOBAL, EXT*, INST and OBJ resolve symbols through
// it.
type Importer interface {
	// ImportModule resolves a module name to a module handle.
	ImportModule(name string) (any, error)

	// Lookup resolves qualname inside a previously imported module.
	// Dotted qualnames are only valid for proto >= 4.
	Lookup(module any, qualname string, proto int) (any, error)
}

// symbolicImporter resolves every (module, name) pair to a Class symbol.
//
// This keeps decoding of untrusted streams safe: nothing is ever executed,
// the class reference is just data.
type symbolicImporter struct{}

func (symbolicImporter) ImportModule(name string) (any, error) {
	return name, nil
}

func (symbolicImporter) Lookup(module any, qualname string, proto int) (any, error) {
	return Class{Module: module.(string), Name: qualname}, nil
}

// SymbolicImporter returns the importer the machine uses by default: all
// symbols resolve to Class values and construction stays symbolic.
func SymbolicImporter() Importer { return symbolicImporter{} }

// Registry is an importer backed by an explicit table of registered values.
//
// Hosts register concrete classes and callables per (module, name); a lookup
// that misses the table is a resolution error, matching an import or
// attribute failure.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]map[string]any
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]map[string]any)}
}

// Register associates value with (module, name).
func (r *Registry) Register(module, name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attrs := r.modules[module]
	if attrs == nil {
		attrs = make(map[string]any)
		r.modules[module] = attrs
	}
	attrs[name] = value
}

type registryModule struct {
	name  string
	attrs map[string]any
}

func (r *Registry) ImportModule(name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attrs, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("no module named %q", name)
	}
	return &registryModule{name: name, attrs: attrs}, nil
}

func (r *Registry) Lookup(module any, qualname string, proto int) (any, error) {
	mod, ok := module.(*registryModule)
	if !ok {
		return nil, fmt.Errorf("not a registry module: %T", module)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if v, ok := mod.attrs[qualname]; ok {
		if proto < 4 && strings.Contains(qualname, ".") {
			return nil, fmt.Errorf("can't get attribute %q on module %q", qualname, mod.name)
		}
		return v, nil
	}
	if strings.Contains(qualname, "<locals>") {
		return nil, fmt.Errorf("can't get local attribute %q on module %q", qualname, mod.name)
	}
	return nil, fmt.Errorf("can't get attribute %q on module %q", qualname, mod.name)
}

// Capabilities a resolved value may implement. The machine treats the value
// as opaque; these are the only calls it ever makes into it.

// Callable is invoked by REDUCE and by the constructor path of INST/OBJ.
type Callable interface {
	Call(args Tuple) (any, error)
}

// Newable is the allocator path used by NEWOBJ (and by INST/OBJ when no
// constructor call is required).
type Newable interface {
	New(args Tuple) (any, error)
}

// NewableEx is the keyword-aware allocator used by NEWOBJ_EX.
type NewableEx interface {
	NewEx(args Tuple, kw Dict) (any, error)
}

// StateSetter lets an instance restore its own state during BUILD, like
// __setstate__ does.
type StateSetter interface {
	SetState(state any) error
}

// InitArgser marks classes whose instances must always be built through the
// constructor call, like classes carrying __getinitargs__.
type InitArgser interface {
	InitArgs() Tuple
}

// Appender receives items from APPEND/APPENDS when the target is not a
// List.
type Appender interface {
	Append(v any)
}

// ItemSetter receives pairs from SETITEM/SETITEMS when the target is not a
// Dict.
type ItemSetter interface {
	Set(key, value any)
}

// ItemAdder receives members from ADDITEMS when the target is not a Set.
type ItemAdder interface {
	Add(item any)
}

// ---- extension registry ----

// extension codes alias (module, name) pairs; the registry is process-wide
// and append-only.
var extRegistry = struct {
	mu sync.RWMutex
	m  map[int]Class
}{m: make(map[int]Class)}

// RegisterExtension maps an extension code to (module, name) for the EXT1/
// EXT2/EXT4 opcodes. Codes must be positive.
func RegisterExtension(code int, module, name string) {
	if code <= 0 {
		panic("pickle: extension code must be positive")
	}
	extRegistry.mu.Lock()
	defer extRegistry.mu.Unlock()
	extRegistry.m[code] = Class{Module: module, Name: name}
}

func lookupExtension(code int) (Class, bool) {
	extRegistry.mu.RLock()
	defer extRegistry.mu.RUnlock()
	c, ok := extRegistry.m[code]
	return c, ok
}

// ExtCache caches resolved extension values by code.
//
// The default cache is shared by all machines in the process; tests inject a
// private one through Config.ExtCache for isolation.
type ExtCache struct {
	mu sync.Mutex
	m  map[int]any
}

// NewExtCache returns an empty cache.
func NewExtCache() *ExtCache {
	return &ExtCache{m: make(map[int]any)}
}

func (c *ExtCache) get(code int) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[code]
	return v, ok
}

func (c *ExtCache) put(code int, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[code] = v
}

var defaultExtCache = NewExtCache()
