package probe

import (
	"errors"
	"testing"
	"time"
)

type fakeARP struct {
	probeErr      error
	lookupHW      [6]byte
	lookupFound   bool
	lookupErr     error
	probeCalls    int
	gratCalls     int
}

func (f *fakeARP) Probe(ifID string, target [4]byte) error { f.probeCalls++; return f.probeErr }
func (f *fakeARP) CacheLookup(ifID string, target [4]byte) ([6]byte, bool, error) {
	return f.lookupHW, f.lookupFound, f.lookupErr
}
func (f *fakeARP) Gratuitous(ifID string, addr [4]byte) error { f.gratCalls++; return nil }

type fakeSleeper struct{ slept time.Duration }

func (f *fakeSleeper) Sleep(d time.Duration) { f.slept += d }

func TestProbeFree(t *testing.T) {
	arp := &fakeARP{lookupFound: false}
	sl := &fakeSleeper{}
	p := &Prober{ARP: arp, Sleeper: sl}
	if got := p.Probe("eth0", [4]byte{192, 0, 2, 50}, time.Second); got != Free {
		t.Errorf("got %v, want FREE", got)
	}
	if sl.slept != time.Second {
		t.Errorf("slept %v, want 1s", sl.slept)
	}
}

func TestProbeUsed(t *testing.T) {
	arp := &fakeARP{lookupFound: true}
	p := &Prober{ARP: arp, Sleeper: &fakeSleeper{}}
	if got := p.Probe("eth0", [4]byte{192, 0, 2, 50}, time.Second); got != Used {
		t.Errorf("got %v, want USED", got)
	}
}

func TestProbeInconclusiveOnError(t *testing.T) {
	arp := &fakeARP{probeErr: errors.New("no arp visibility")}
	p := &Prober{ARP: arp, Sleeper: &fakeSleeper{}}
	if got := p.Probe("eth0", [4]byte{192, 0, 2, 50}, time.Second); got != Inconclusive {
		t.Errorf("got %v, want INCONCLUSIVE", got)
	}

	arp2 := &fakeARP{lookupErr: errors.New("cache error")}
	p2 := &Prober{ARP: arp2, Sleeper: &fakeSleeper{}}
	if got := p2.Probe("eth0", [4]byte{192, 0, 2, 50}, time.Second); got != Inconclusive {
		t.Errorf("got %v, want INCONCLUSIVE", got)
	}
}
