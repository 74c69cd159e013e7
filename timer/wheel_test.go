package timer

import (
	"testing"

	"github.com/soypat/dhcpc/cmdqueue"
)

func TestArmAndExpire(t *testing.T) {
	w := NewWheel(4)
	h, err := w.Arm(2, cmdqueue.Command{IfID: "eth0", Kind: cmdqueue.KindT1Expired})
	if err != nil {
		t.Fatal(err)
	}
	if h == NoHandle {
		t.Fatal("expected valid handle")
	}

	var fired []cmdqueue.Command
	post := func(c cmdqueue.Command) error { fired = append(fired, c); return nil }

	w.Tick(post)
	if len(fired) != 0 {
		t.Fatalf("should not fire yet, got %v", fired)
	}
	w.Tick(post)
	if len(fired) != 1 || fired[0].Kind != cmdqueue.KindT1Expired {
		t.Fatalf("expected T1_EXPIRED to fire, got %v", fired)
	}
	if w.Len() != 0 {
		t.Errorf("wheel should be empty after firing, len=%d", w.Len())
	}
}

func TestCancelIsNoopAfterFire(t *testing.T) {
	w := NewWheel(2)
	h, _ := w.Arm(1, cmdqueue.Command{IfID: "eth0", Kind: cmdqueue.KindLeaseExpired})
	w.Tick(func(cmdqueue.Command) error { return nil })
	w.Cancel(h) // must not panic nor double-free
	w.Cancel(NoHandle)
}

func TestMultipleEntriesSameTickOrder(t *testing.T) {
	w := NewWheel(4)
	w.Arm(1, cmdqueue.Command{IfID: "a", Kind: cmdqueue.KindT1Expired})
	w.Arm(1, cmdqueue.Command{IfID: "b", Kind: cmdqueue.KindT1Expired})

	var fired []cmdqueue.Command
	w.Tick(func(c cmdqueue.Command) error { fired = append(fired, c); return nil })
	if len(fired) != 2 {
		t.Fatalf("expected both entries to fire, got %d", len(fired))
	}
}

func TestStopRemovesOwnedTimer(t *testing.T) {
	w := NewWheel(4)
	h, _ := w.Arm(100, cmdqueue.Command{IfID: "eth0", Kind: cmdqueue.KindT1Expired})
	w.Cancel(h)
	if w.Len() != 0 {
		t.Errorf("expected wheel empty after cancel, len=%d", w.Len())
	}
}
