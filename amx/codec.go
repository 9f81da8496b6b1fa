package amx

import (
	"fmt"
	"strconv"
)

// Signature tags. A signature is a fixed-order string of single-character
// type tags that must match exactly what the host passes at call time.
//
//	i  integer by value
//	f  float by value
//	s  string (heap address of an unpacked, zero-terminated string)
//	a  integer array; consumes two script arguments when encoding
//	   (the values and nothing else; the cell count travels in the frame
//	   as the immediately following `i` tag, which the caller supplies)
//	I  integer out-parameter (reference cell, read back after the call)
//	F  float out-parameter
//	S  string out-parameter; consumes one integer script argument giving
//	   the buffer capacity in cells
type Tag byte

const (
	TagInteger    Tag = 'i'
	TagFloat      Tag = 'f'
	TagString     Tag = 's'
	TagArray      Tag = 'a'
	TagIntegerRef Tag = 'I'
	TagFloatRef   Tag = 'F'
	TagStringRef  Tag = 'S'
)

// ParseSignature validates a signature string and returns its tags.
func ParseSignature(signature string) ([]Tag, error) {
	tags := make([]Tag, 0, len(signature))
	for i := 0; i < len(signature); i++ {
		switch t := Tag(signature[i]); t {
		case TagInteger, TagFloat, TagString, TagArray,
			TagIntegerRef, TagFloatRef, TagStringRef:
			tags = append(tags, t)
		default:
			return nil, fmt.Errorf("amx: invalid signature tag %q in %q", string(signature[i]), signature)
		}
	}
	return tags, nil
}

// DecodeArgs decodes a raw parameter frame against a signature into an
// Arguments container. names assigns a key per tag; when nil, positional
// keys arg0..argN are used. The frame is read, never modified or consumed,
// so a caller that decides to forward still presents the pristine call.
//
// Only value tags are decodable: a native that declares reference or array
// parameters cannot be satisfied from script code.
func DecodeArgs(m *AMX, signature string, params []Cell, names []string) (*Arguments, error) {
	tags, err := ParseSignature(signature)
	if err != nil {
		return nil, err
	}
	if names != nil && len(names) != len(tags) {
		return nil, fmt.Errorf("amx: %d names given for %d-tag signature %q", len(names), len(tags), signature)
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("amx: empty parameter frame")
	}
	if got, want := int(params[0])/4, len(tags); got != want {
		return nil, fmt.Errorf("amx: frame carries %d cells but signature %q expects %d", got, signature, want)
	}
	if len(params) < len(tags)+1 {
		return nil, fmt.Errorf("amx: truncated parameter frame for signature %q", signature)
	}

	args := NewArguments()
	for i, tag := range tags {
		name := "arg" + strconv.Itoa(i)
		if names != nil {
			name = names[i]
		}
		cell := params[i+1]
		switch tag {
		case TagInteger:
			args.AddInteger(name, int64(cell))
		case TagFloat:
			args.AddFloat(name, float64(cell.Float()))
		case TagString:
			s, err := m.ReadString(cell)
			if err != nil {
				return nil, fmt.Errorf("amx: decoding %s: %w", name, err)
			}
			args.AddString(name, s)
		default:
			return nil, fmt.Errorf("amx: tag %q is not decodable from a native frame", string(tag))
		}
	}
	return args, nil
}

// OutParam records the heap location of a reference parameter so its value
// can be read back after the call completes.
type OutParam struct {
	Tag  Tag
	Addr Cell
	Size int // cell capacity, string refs only
}

// EncodedCall is a fully marshaled outbound native call. Release must be
// called once the call has completed and out-params have been read, to free
// the heap space the encoding claimed.
type EncodedCall struct {
	Params []Cell
	Outs   []OutParam

	machine *AMX
	mark    Cell
}

// Release frees the heap allocations made while encoding.
func (c *EncodedCall) Release() {
	c.machine.Release(c.mark)
}

// EncodeCall marshals script-provided argument values into the host's raw
// call form. args holds one entry per input-consuming tag: int64 for i,
// float64 for f, string for s, []Cell for a, int64 capacity for S; I and F
// consume nothing. Arity or type mismatches fail before anything is called.
func EncodeCall(m *AMX, signature string, args []interface{}) (*EncodedCall, error) {
	tags, err := ParseSignature(signature)
	if err != nil {
		return nil, err
	}

	call := &EncodedCall{machine: m, mark: m.HeapMark()}
	cells := make([]Cell, 0, len(tags))

	next := 0
	take := func() (interface{}, error) {
		if next >= len(args) {
			return nil, fmt.Errorf("amx: signature %q needs more arguments than the %d provided", signature, len(args))
		}
		v := args[next]
		next++
		return v, nil
	}

	fail := func(err error) (*EncodedCall, error) {
		call.Release()
		return nil, err
	}

	for i, tag := range tags {
		switch tag {
		case TagInteger:
			v, err := take()
			if err != nil {
				return fail(err)
			}
			n, ok := v.(int64)
			if !ok {
				return fail(fmt.Errorf("amx: argument %d: expected an integer for tag %q", i+1, string(tag)))
			}
			cells = append(cells, Cell(n))

		case TagFloat:
			v, err := take()
			if err != nil {
				return fail(err)
			}
			f, ok := v.(float64)
			if !ok {
				return fail(fmt.Errorf("amx: argument %d: expected a float for tag %q", i+1, string(tag)))
			}
			cells = append(cells, CellFromFloat(float32(f)))

		case TagString:
			v, err := take()
			if err != nil {
				return fail(err)
			}
			s, ok := v.(string)
			if !ok {
				return fail(fmt.Errorf("amx: argument %d: expected a string for tag %q", i+1, string(tag)))
			}
			addr, err := m.AllotString(s)
			if err != nil {
				return fail(err)
			}
			cells = append(cells, addr)

		case TagArray:
			v, err := take()
			if err != nil {
				return fail(err)
			}
			arr, ok := v.([]Cell)
			if !ok {
				return fail(fmt.Errorf("amx: argument %d: expected an array for tag %q", i+1, string(tag)))
			}
			addr, err := m.AllotArray(arr)
			if err != nil {
				return fail(err)
			}
			cells = append(cells, addr)

		case TagIntegerRef, TagFloatRef:
			addr, err := m.Allot(1)
			if err != nil {
				return fail(err)
			}
			cells = append(cells, addr)
			call.Outs = append(call.Outs, OutParam{Tag: tag, Addr: addr, Size: 1})

		case TagStringRef:
			v, err := take()
			if err != nil {
				return fail(err)
			}
			capacity, ok := v.(int64)
			if !ok || capacity <= 0 {
				return fail(fmt.Errorf("amx: argument %d: expected a positive capacity for tag %q", i+1, string(tag)))
			}
			addr, err := m.Allot(int(capacity))
			if err != nil {
				return fail(err)
			}
			cells = append(cells, addr)
			call.Outs = append(call.Outs, OutParam{Tag: tag, Addr: addr, Size: int(capacity)})
		}
	}

	if next != len(args) {
		return fail(fmt.Errorf("amx: signature %q consumed %d of %d arguments", signature, next, len(args)))
	}

	call.Params = ParamFrame(cells...)
	return call, nil
}

// ReadOut reads back the value of an out-parameter after the call.
func ReadOut(m *AMX, out OutParam) (Value, error) {
	switch out.Tag {
	case TagIntegerRef:
		c, err := m.ReadCell(out.Addr)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindInteger, Integer: int64(c)}, nil
	case TagFloatRef:
		c, err := m.ReadCell(out.Addr)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindFloat, Float: float64(c.Float())}, nil
	case TagStringRef:
		s, err := m.ReadString(out.Addr)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindString, Str: s}, nil
	}
	return Value{}, fmt.Errorf("amx: tag %q is not an out-parameter", string(out.Tag))
}
