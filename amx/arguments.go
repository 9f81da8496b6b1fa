package amx

import "fmt"

// ValueKind tags the closed set of value types that cross the native-call
// boundary.
type ValueKind int

const (
	KindInteger ValueKind = iota
	KindFloat
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	}
	return fmt.Sprintf("ValueKind(%d)", int(k))
}

// Value is one tagged argument value.
type Value struct {
	Kind    ValueKind
	Integer int64
	Float   float64
	Str     string
}

// Arguments is a named, type-tagged value container used to marshal
// parameters across the native-call boundary and to build event payloads.
// Keys are unique; insertion order is preserved so event shapes can
// materialize fields deterministically.
type Arguments struct {
	names  []string
	values map[string]Value
}

// NewArguments creates an empty container.
func NewArguments() *Arguments {
	return &Arguments{values: make(map[string]Value)}
}

func (a *Arguments) add(name string, v Value) {
	if _, ok := a.values[name]; !ok {
		a.names = append(a.names, name)
	}
	a.values[name] = v
}

// AddInteger stores an integer value under name.
func (a *Arguments) AddInteger(name string, value int64) {
	a.add(name, Value{Kind: KindInteger, Integer: value})
}

// AddFloat stores a float value under name.
func (a *Arguments) AddFloat(name string, value float64) {
	a.add(name, Value{Kind: KindFloat, Float: value})
}

// AddString stores a string value under name.
func (a *Arguments) AddString(name, value string) {
	a.add(name, Value{Kind: KindString, Str: value})
}

// GetInteger returns the integer stored under name, or 0.
func (a *Arguments) GetInteger(name string) int64 {
	return a.values[name].Integer
}

// GetFloat returns the float stored under name, or 0.
func (a *Arguments) GetFloat(name string) float64 {
	return a.values[name].Float
}

// GetString returns the string stored under name, or "".
func (a *Arguments) GetString(name string) string {
	return a.values[name].Str
}

// Get returns the tagged value stored under name.
func (a *Arguments) Get(name string) (Value, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Names returns the keys in insertion order.
func (a *Arguments) Names() []string {
	return a.names
}

// Len returns the number of stored values.
func (a *Arguments) Len() int {
	return len(a.values)
}

// Clear removes all stored values.
func (a *Arguments) Clear() {
	a.names = a.names[:0]
	a.values = make(map[string]Value)
}
