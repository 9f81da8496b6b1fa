package amx

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Native table
// ---------------------------------------------------------------------------

func TestDeclareAndCallNative(t *testing.T) {
	m := New()

	_, err := m.DeclareNative("AddIntegers", "ii", func(m *AMX, params []Cell) Cell {
		return params[1] + params[2]
	})
	if err != nil {
		t.Fatalf("DeclareNative: %v", err)
	}

	result, err := m.Call("AddIntegers", ParamFrame(3, 4))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != 7 {
		t.Errorf("result = %d, want 7", result)
	}
}

func TestDeclareNativeTwiceFails(t *testing.T) {
	m := New()

	if _, err := m.DeclareNative("GetTickCount", "", nil); err != nil {
		t.Fatalf("first declaration: %v", err)
	}
	if _, err := m.DeclareNative("GetTickCount", "", nil); err == nil {
		t.Error("second declaration succeeded, want error")
	}
}

func TestCallUnknownNative(t *testing.T) {
	m := New()

	if _, err := m.Call("NoSuchNative", ParamFrame()); err == nil {
		t.Error("Call succeeded for unknown native, want error")
	}
}

func TestCallUnresolvedNative(t *testing.T) {
	m := New()

	// Declared during host init, implementation resolved later.
	if _, err := m.DeclareNative("SendClientMessage", "iis", nil); err != nil {
		t.Fatalf("DeclareNative: %v", err)
	}
	if _, err := m.Call("SendClientMessage", ParamFrame(0, 0, 0)); err == nil {
		t.Error("Call of unresolved native succeeded, want error")
	}

	if err := m.ResolveNative("SendClientMessage", func(m *AMX, params []Cell) Cell {
		return 1
	}); err != nil {
		t.Fatalf("ResolveNative: %v", err)
	}
	result, err := m.Call("SendClientMessage", ParamFrame(0, 0, 0))
	if err != nil {
		t.Fatalf("Call after resolve: %v", err)
	}
	if result != 1 {
		t.Errorf("result = %d, want 1", result)
	}
}

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

func TestHeapStringRoundTrip(t *testing.T) {
	m := New()

	addr, err := m.AllotString("Las Venturas")
	if err != nil {
		t.Fatalf("AllotString: %v", err)
	}
	if addr == 0 {
		t.Fatal("AllotString returned the reserved nil address")
	}

	s, err := m.ReadString(addr)
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if s != "Las Venturas" {
		t.Errorf("ReadString = %q, want %q", s, "Las Venturas")
	}
}

func TestHeapMarkRelease(t *testing.T) {
	m := New()

	mark := m.HeapMark()
	if _, err := m.AllotString("temporary"); err != nil {
		t.Fatalf("AllotString: %v", err)
	}
	m.Release(mark)

	if got := m.HeapMark(); got != mark {
		t.Errorf("heap frontier after release = %d, want %d", got, mark)
	}
}

func TestHeapBoundsChecked(t *testing.T) {
	m := New()

	if _, err := m.ReadCell(0); err == nil {
		t.Error("ReadCell(0) succeeded, want bounds error")
	}
	if _, err := m.ReadCell(1024); err == nil {
		t.Error("ReadCell past the frontier succeeded, want bounds error")
	}
	if err := m.WriteCell(0, 1); err == nil {
		t.Error("WriteCell(0) succeeded, want bounds error")
	}
	if _, err := m.ReadString(512); err == nil {
		t.Error("ReadString past the frontier succeeded, want bounds error")
	}
}

func TestFloatCellRoundTrip(t *testing.T) {
	for _, f := range []float32{0, 1, -1, 0.5, 1234.25, -0.0078125} {
		if got := CellFromFloat(f).Float(); got != f {
			t.Errorf("CellFromFloat(%v).Float() = %v", f, got)
		}
	}
}
