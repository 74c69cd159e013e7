package iface

import "testing"

func TestAcquireLookupRelease(t *testing.T) {
	p := NewPool(2)
	hw := [6]byte{0x02, 0x00, 0x00, 0x11, 0x22, 0x33}
	rec, err := p.Acquire("eth0", hw)
	if err != nil {
		t.Fatal(err)
	}
	if rec.XIDBase != 0x11223300 {
		t.Errorf("xid base = %#x, want 0x11223300", rec.XIDBase)
	}

	got, ok := p.Lookup("eth0")
	if !ok || got != rec {
		t.Fatalf("lookup mismatch: got=%v ok=%v", got, ok)
	}

	p.Release(rec)
	if _, ok := p.Lookup("eth0"); ok {
		t.Error("expected record gone after release")
	}
}

func TestAcquireDuplicateFails(t *testing.T) {
	p := NewPool(2)
	hw := [6]byte{1, 2, 3, 4, 5, 6}
	if _, err := p.Acquire("eth0", hw); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Acquire("eth0", hw); err != ErrInterfaceInvalid {
		t.Fatalf("expected ErrInterfaceInvalid, got %v", err)
	}
}

func TestAcquirePoolExhausted(t *testing.T) {
	p := NewPool(1)
	hw := [6]byte{1, 2, 3, 4, 5, 6}
	if _, err := p.Acquire("eth0", hw); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Acquire("eth1", hw); err != ErrPoolEmpty {
		t.Fatalf("expected ErrPoolEmpty, got %v", err)
	}
}

func TestNextXIDMonotonic(t *testing.T) {
	p := NewPool(1)
	rec, _ := p.Acquire("eth0", [6]byte{1, 2, 3, 4, 5, 6})
	a := rec.NextXID()
	b := rec.NextXID()
	if b <= a {
		t.Errorf("xid did not strictly increase: %d -> %d", a, b)
	}
}

func TestStatusAndLastErrorAtomic(t *testing.T) {
	p := NewPool(1)
	rec, _ := p.Acquire("eth0", [6]byte{1, 2, 3, 4, 5, 6})
	rec.SetStatus(StatusCfgd)
	rec.SetLastError(ErrNAKReceived)
	if rec.Status() != StatusCfgd {
		t.Errorf("status = %v, want CFGD", rec.Status())
	}
	if rec.LastError() != ErrNAKReceived {
		t.Errorf("last error = %v, want NAK_RECEIVED", rec.LastError())
	}
}

func TestHasConfiguredAddress(t *testing.T) {
	cases := map[Status]bool{
		StatusCfgd:          true,
		StatusCfgdNoTimer:   true,
		StatusCfgdLocalLink: true,
		StatusNone:          false,
		StatusFailed:        false,
		StatusInProgress:    false,
	}
	for status, want := range cases {
		if got := HasConfiguredAddress(status); got != want {
			t.Errorf("HasConfiguredAddress(%v) = %v, want %v", status, got, want)
		}
	}
}
