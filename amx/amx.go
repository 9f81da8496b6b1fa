// Package amx models the host virtual machine's native-call ABI: 32-bit
// cells, a declared table of named natives, an unpacked string heap and the
// single dispatch entry every native call flows through.
package amx

import (
	"fmt"
	"math"
)

// Cell is the host VM's machine word. Integers are stored directly, floats
// as their IEEE-754 bit pattern, strings and arrays as heap addresses.
type Cell int32

// CellFromFloat encodes a float into a cell.
func CellFromFloat(f float32) Cell {
	return Cell(math.Float32bits(f))
}

// Float decodes the cell as a float.
func (c Cell) Float() float32 {
	return math.Float32frombits(uint32(c))
}

// NativeFunc is the implementation of a native. params follows the host
// convention: params[0] holds the argument byte count (4 bytes per cell),
// params[1:] the argument cells.
type NativeFunc func(m *AMX, params []Cell) Cell

// Native is one entry of the host's declared native table. Fn may be nil
// while the host is still initializing; it is resolved lazily via
// ResolveNative before the first real call.
type Native struct {
	Name      string
	Signature string
	Fn        NativeFunc
}

// DispatchFunc is the native-dispatch entry point. Every call to any native
// goes through the machine's current dispatch function, which makes it the
// single point an Intercept can be installed over.
type DispatchFunc func(m *AMX, n *Native, params []Cell) (Cell, error)

// AMX is an in-process stand-in for the host VM: the native table, the cell
// heap used for string and array passing, and the dispatch entry. It is only
// ever touched from the tick thread.
type AMX struct {
	natives []*Native
	byName  map[string]*Native

	// heap[0] is reserved so that address 0 can mean "no address".
	heap []Cell

	dispatch  DispatchFunc
	intercept *Intercept
}

// New creates an empty machine with the default dispatch path installed.
func New() *AMX {
	m := &AMX{
		byName: make(map[string]*Native),
		heap:   make([]Cell, 1),
	}
	m.dispatch = callNative
	return m
}

// callNative is the original, un-intercepted dispatch path.
func callNative(m *AMX, n *Native, params []Cell) (Cell, error) {
	if n.Fn == nil {
		return 0, fmt.Errorf("amx: native %q has no implementation", n.Name)
	}
	return n.Fn(m, params), nil
}

// DeclareNative adds a native to the table. The implementation may be nil
// when the host has not finished resolving its module addresses yet.
func (m *AMX) DeclareNative(name, signature string, fn NativeFunc) (*Native, error) {
	if _, ok := m.byName[name]; ok {
		return nil, fmt.Errorf("amx: native %q already declared", name)
	}
	n := &Native{Name: name, Signature: signature, Fn: fn}
	m.natives = append(m.natives, n)
	m.byName[name] = n
	return n, nil
}

// ResolveNative fills in the implementation of a previously declared native.
func (m *AMX) ResolveNative(name string, fn NativeFunc) error {
	n, ok := m.byName[name]
	if !ok {
		return fmt.Errorf("amx: cannot resolve undeclared native %q", name)
	}
	n.Fn = fn
	return nil
}

// FindNative looks up a native by name. Returns nil when not declared.
func (m *AMX) FindNative(name string) *Native {
	return m.byName[name]
}

// Natives returns the declared native table in declaration order.
func (m *AMX) Natives() []*Native {
	return m.natives
}

// Call invokes a named native through the current dispatch entry, which is
// how the host VM itself issues native calls.
func (m *AMX) Call(name string, params []Cell) (Cell, error) {
	n := m.byName[name]
	if n == nil {
		return 0, fmt.Errorf("amx: unknown native %q", name)
	}
	return m.dispatch(m, n, params)
}

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

// HeapMark returns the current allocation frontier, for later Release.
func (m *AMX) HeapMark() Cell {
	return Cell(len(m.heap))
}

// Release frees every allocation made since mark was taken.
func (m *AMX) Release(mark Cell) {
	if int(mark) >= 1 && int(mark) <= len(m.heap) {
		m.heap = m.heap[:mark]
	}
}

// Allot reserves n zeroed cells and returns their address.
func (m *AMX) Allot(n int) (Cell, error) {
	if n < 0 {
		return 0, fmt.Errorf("amx: cannot allot %d cells", n)
	}
	addr := Cell(len(m.heap))
	m.heap = append(m.heap, make([]Cell, n)...)
	return addr, nil
}

// ReadCell reads one heap cell.
func (m *AMX) ReadCell(addr Cell) (Cell, error) {
	if addr < 1 || int(addr) >= len(m.heap) {
		return 0, fmt.Errorf("amx: cell read out of bounds at %d", addr)
	}
	return m.heap[addr], nil
}

// WriteCell writes one heap cell.
func (m *AMX) WriteCell(addr, value Cell) error {
	if addr < 1 || int(addr) >= len(m.heap) {
		return fmt.Errorf("amx: cell write out of bounds at %d", addr)
	}
	m.heap[addr] = value
	return nil
}

// AllotString copies s onto the heap in unpacked form (one character per
// cell, zero terminated) and returns its address.
func (m *AMX) AllotString(s string) (Cell, error) {
	addr, err := m.Allot(len(s) + 1)
	if err != nil {
		return 0, err
	}
	for i := 0; i < len(s); i++ {
		m.heap[int(addr)+i] = Cell(s[i])
	}
	return addr, nil
}

// ReadString reads an unpacked, zero-terminated string from the heap.
func (m *AMX) ReadString(addr Cell) (string, error) {
	if addr < 1 || int(addr) >= len(m.heap) {
		return "", fmt.Errorf("amx: string read out of bounds at %d", addr)
	}
	var buf []byte
	for i := int(addr); i < len(m.heap); i++ {
		c := m.heap[i]
		if c == 0 {
			return string(buf), nil
		}
		buf = append(buf, byte(c))
	}
	return "", fmt.Errorf("amx: unterminated string at %d", addr)
}

// AllotArray copies the cells onto the heap and returns their address.
func (m *AMX) AllotArray(cells []Cell) (Cell, error) {
	addr, err := m.Allot(len(cells))
	if err != nil {
		return 0, err
	}
	copy(m.heap[addr:], cells)
	return addr, nil
}

// ReadArray reads n cells starting at addr.
func (m *AMX) ReadArray(addr Cell, n int) ([]Cell, error) {
	if addr < 1 || int(addr)+n > len(m.heap) {
		return nil, fmt.Errorf("amx: array read out of bounds at %d+%d", addr, n)
	}
	out := make([]Cell, n)
	copy(out, m.heap[addr:int(addr)+n])
	return out, nil
}

// ParamFrame builds a raw parameter frame from argument cells, prepending
// the byte-count cell the host convention requires.
func ParamFrame(args ...Cell) []Cell {
	frame := make([]Cell, 0, len(args)+1)
	frame = append(frame, Cell(len(args)*4))
	return append(frame, args...)
}
