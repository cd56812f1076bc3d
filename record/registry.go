package record

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var globalRegistry = &Registry{
	byTable: make(map[string]*ModelInfo),
	byType:  make(map[reflect.Type]*ModelInfo),
}

// Registry maps entity struct types to their schema descriptors. Lookups
// register unknown types on first use, so explicit registration is only
// needed to surface schema errors early or to resolve types by table name.
type Registry struct {
	mu      sync.RWMutex
	byTable map[string]*ModelInfo
	byType  map[reflect.Type]*ModelInfo
}

// Register adds T to the global registry.
func Register[T any]() error {
	_, err := RegisterType(reflect.TypeFor[T]())
	return err
}

// MustRegister is like Register but panics on error. It is meant for
// program initialization.
func MustRegister[T any]() {
	if err := Register[T](); err != nil {
		panic(err)
	}
}

// RegisterType adds t to the global registry and returns its descriptor.
// Registering a type twice returns the existing descriptor.
func RegisterType(t reflect.Type) (*ModelInfo, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if info, ok := LookupType(t); ok {
		return info, nil
	}

	info, err := ExtractModelInfo(t)
	if err != nil {
		return nil, fmt.Errorf("registering %s: %w", t.Name(), err)
	}

	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	if existing, ok := globalRegistry.byType[t]; ok {
		return existing, nil
	}
	if existing, ok := globalRegistry.byTable[info.Table]; ok {
		return nil, &SchemaError{TypeName: t.Name(),
			Message: fmt.Sprintf("table %q already registered to %s", info.Table, existing.GoType)}
	}
	globalRegistry.byTable[info.Table] = info
	globalRegistry.byType[t] = info
	return info, nil
}

// Lookup returns the descriptor registered for a table.
func Lookup(table string) (*ModelInfo, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	info, ok := globalRegistry.byTable[table]
	return info, ok
}

// LookupTable is like Lookup but returns a NotRegisteredError when the
// table is unknown.
func LookupTable(table string) (*ModelInfo, error) {
	info, ok := Lookup(table)
	if !ok {
		return nil, &NotRegisteredError{TypeName: table}
	}
	return info, nil
}

// LookupType returns the descriptor registered for t without registering it.
func LookupType(t reflect.Type) (*ModelInfo, bool) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	info, ok := globalRegistry.byType[t]
	return info, ok
}

// ModelOf returns the descriptor for T, registering it on first use.
func ModelOf[T any]() (*ModelInfo, error) {
	return RegisterType(reflect.TypeFor[T]())
}

// RegisteredTypes returns every registered descriptor ordered by table name.
func RegisteredTypes() []*ModelInfo {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	result := make([]*ModelInfo, 0, len(globalRegistry.byType))
	for _, info := range globalRegistry.byType {
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Table < result[j].Table })
	return result
}

// ClearRegistry removes every registered type. It is intended for tests.
func ClearRegistry() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.byTable = make(map[string]*ModelInfo)
	globalRegistry.byType = make(map[reflect.Type]*ModelInfo)
}
