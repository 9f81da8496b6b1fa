package amx

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Signature parsing
// ---------------------------------------------------------------------------

func TestParseSignature(t *testing.T) {
	tags, err := ParseSignature("ifsaIFS")
	if err != nil {
		t.Fatalf("ParseSignature: %v", err)
	}
	want := []Tag{TagInteger, TagFloat, TagString, TagArray, TagIntegerRef, TagFloatRef, TagStringRef}
	if len(tags) != len(want) {
		t.Fatalf("len(tags) = %d, want %d", len(tags), len(want))
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("tags[%d] = %q, want %q", i, string(tags[i]), string(want[i]))
		}
	}
}

func TestParseSignatureRejectsUnknownTag(t *testing.T) {
	if _, err := ParseSignature("ixf"); err == nil {
		t.Error("ParseSignature accepted an unknown tag")
	}
}

// ---------------------------------------------------------------------------
// Frame decoding
// ---------------------------------------------------------------------------

func TestDecodeArgsRoundTrip(t *testing.T) {
	m := New()

	addr, err := m.AllotString("Sunrise Auto")
	if err != nil {
		t.Fatalf("AllotString: %v", err)
	}
	params := ParamFrame(42, CellFromFloat(13.5), addr)

	args, err := DecodeArgs(m, "ifs", params, []string{"playerid", "health", "vehicle"})
	if err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}

	if got := args.GetInteger("playerid"); got != 42 {
		t.Errorf("playerid = %d, want 42", got)
	}
	if got := args.GetFloat("health"); got != 13.5 {
		t.Errorf("health = %v, want 13.5", got)
	}
	if got := args.GetString("vehicle"); got != "Sunrise Auto" {
		t.Errorf("vehicle = %q, want %q", got, "Sunrise Auto")
	}
}

func TestDecodeArgsPositionalNames(t *testing.T) {
	m := New()

	args, err := DecodeArgs(m, "ii", ParamFrame(1, 2), nil)
	if err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}
	if got := args.GetInteger("arg0"); got != 1 {
		t.Errorf("arg0 = %d, want 1", got)
	}
	if got := args.GetInteger("arg1"); got != 2 {
		t.Errorf("arg1 = %d, want 2", got)
	}
}

func TestDecodeArgsArityMismatchFailsFast(t *testing.T) {
	m := New()

	// Frame carries two cells, signature expects three.
	if _, err := DecodeArgs(m, "iii", ParamFrame(1, 2), nil); err == nil {
		t.Error("DecodeArgs accepted a short frame")
	}
}

func TestDecodeArgsDoesNotConsumeFrame(t *testing.T) {
	m := New()

	addr, err := m.AllotString("pristine")
	if err != nil {
		t.Fatalf("AllotString: %v", err)
	}
	params := ParamFrame(7, addr)
	before := make([]Cell, len(params))
	copy(before, params)

	if _, err := DecodeArgs(m, "is", params, nil); err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}
	for i := range params {
		if params[i] != before[i] {
			t.Fatalf("params[%d] changed from %d to %d", i, before[i], params[i])
		}
	}
	if s, _ := m.ReadString(addr); s != "pristine" {
		t.Errorf("heap string changed to %q", s)
	}
}

// ---------------------------------------------------------------------------
// Call encoding
// ---------------------------------------------------------------------------

func TestEncodeCallScalars(t *testing.T) {
	m := New()

	call, err := EncodeCall(m, "ifs", []interface{}{int64(9), float64(2.25), "message"})
	if err != nil {
		t.Fatalf("EncodeCall: %v", err)
	}
	defer call.Release()

	if got := int(call.Params[0]); got != 12 {
		t.Errorf("byte count = %d, want 12", got)
	}
	if call.Params[1] != 9 {
		t.Errorf("cell 1 = %d, want 9", call.Params[1])
	}
	if call.Params[2].Float() != 2.25 {
		t.Errorf("cell 2 = %v, want 2.25", call.Params[2].Float())
	}
	if s, err := m.ReadString(call.Params[3]); err != nil || s != "message" {
		t.Errorf("cell 3 string = %q (%v), want %q", s, err, "message")
	}
}

func TestEncodeCallOutParams(t *testing.T) {
	m := New()

	call, err := EncodeCall(m, "iIFS", []interface{}{int64(3), int64(64)})
	if err != nil {
		t.Fatalf("EncodeCall: %v", err)
	}
	defer call.Release()

	if len(call.Outs) != 3 {
		t.Fatalf("len(Outs) = %d, want 3", len(call.Outs))
	}

	// Simulate the native writing its results.
	if err := m.WriteCell(call.Outs[0].Addr, 1000); err != nil {
		t.Fatalf("WriteCell: %v", err)
	}
	if err := m.WriteCell(call.Outs[1].Addr, CellFromFloat(0.5)); err != nil {
		t.Fatalf("WriteCell: %v", err)
	}
	for i, ch := range "ok" {
		if err := m.WriteCell(call.Outs[2].Addr+Cell(i), Cell(ch)); err != nil {
			t.Fatalf("WriteCell: %v", err)
		}
	}

	v, err := ReadOut(m, call.Outs[0])
	if err != nil || v.Integer != 1000 {
		t.Errorf("out 0 = %+v (%v), want integer 1000", v, err)
	}
	v, err = ReadOut(m, call.Outs[1])
	if err != nil || v.Float != 0.5 {
		t.Errorf("out 1 = %+v (%v), want float 0.5", v, err)
	}
	v, err = ReadOut(m, call.Outs[2])
	if err != nil || v.Str != "ok" {
		t.Errorf("out 2 = %+v (%v), want string %q", v, err, "ok")
	}
}

func TestEncodeCallArityMismatch(t *testing.T) {
	m := New()
	mark := m.HeapMark()

	if _, err := EncodeCall(m, "ii", []interface{}{int64(1)}); err == nil {
		t.Error("EncodeCall accepted too few arguments")
	}
	if _, err := EncodeCall(m, "i", []interface{}{int64(1), int64(2)}); err == nil {
		t.Error("EncodeCall accepted too many arguments")
	}
	if _, err := EncodeCall(m, "s", []interface{}{int64(1)}); err == nil {
		t.Error("EncodeCall accepted a type mismatch")
	}
	if got := m.HeapMark(); got != mark {
		t.Errorf("failed encodes leaked heap: frontier %d, want %d", got, mark)
	}
}

func TestEncodeCallReleaseFreesHeap(t *testing.T) {
	m := New()
	mark := m.HeapMark()

	call, err := EncodeCall(m, "ss", []interface{}{"a", strings.Repeat("b", 100)})
	if err != nil {
		t.Fatalf("EncodeCall: %v", err)
	}
	call.Release()

	if got := m.HeapMark(); got != mark {
		t.Errorf("heap frontier after release = %d, want %d", got, mark)
	}
}

// ---------------------------------------------------------------------------
// Arguments
// ---------------------------------------------------------------------------

func TestArgumentsInsertionOrder(t *testing.T) {
	args := NewArguments()
	args.AddInteger("playerid", 1)
	args.AddString("name", "Gunther")
	args.AddFloat("health", 99.5)
	args.AddInteger("playerid", 2) // overwrite keeps position

	names := args.Names()
	want := []string{"playerid", "name", "health"}
	if len(names) != len(want) {
		t.Fatalf("len(names) = %d, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if got := args.GetInteger("playerid"); got != 2 {
		t.Errorf("playerid = %d, want 2", got)
	}
	if args.Len() != 3 {
		t.Errorf("Len = %d, want 3", args.Len())
	}
}
