package registers

import "testing"

func TestX0AlwaysZero(t *testing.T) {
	var f File
	f.Set(0, 0xdeadbeef)
	if got := f.Get(0); got != 0 {
		t.Fatalf("x0 = 0x%x, want 0", got)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	var f File
	f.Set(5, 0x1122334455667788)
	if got := f.Get(5); got != 0x1122334455667788 {
		t.Fatalf("x5 = 0x%x, want 0x1122334455667788", got)
	}
}

func TestFloat32NaNBoxing(t *testing.T) {
	var f File
	f.SetFloat32(1, 3.5)
	if raw := f.F[1] >> 32; raw != 0xffffffff {
		t.Fatalf("upper half = 0x%x, want all ones (NaN-boxed)", raw)
	}
	if got := f.GetFloat32(1); got != 3.5 {
		t.Fatalf("GetFloat32 = %v, want 3.5", got)
	}
}

func TestFloat64RoundTrip(t *testing.T) {
	var f File
	f.SetFloat64(2, 1.25)
	if got := f.GetFloat64(2); got != 1.25 {
		t.Fatalf("GetFloat64 = %v, want 1.25", got)
	}
}

func TestReset(t *testing.T) {
	var f File
	f.Set(3, 42)
	f.PC = 0x1000
	f.Reset()
	if f.Get(3) != 0 || f.PC != 0 {
		t.Fatalf("Reset did not clear state: x3=%d pc=0x%x", f.Get(3), f.PC)
	}
}
