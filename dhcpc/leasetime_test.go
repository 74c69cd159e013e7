package dhcpc

import (
	"testing"

	"github.com/soypat/dhcpc/iface"
)

func TestComputeLeaseTimes(t *testing.T) {
	tests := []struct {
		name                 string
		lease, t1, t2        uint32
		t1Present, t2Present bool
		elapsed              uint32
		want                 LeaseTimes
	}{
		{
			name:  "defaults derived from lease",
			lease: 600, elapsed: 0,
			want: LeaseTimes{LeaseSecs: 600, T1Secs: 300, T2Secs: 525},
		},
		{
			name:  "explicit T1 and T2 from ack",
			lease: 600, t1: 300, t1Present: true, t2: 525, t2Present: true,
			want: LeaseTimes{LeaseSecs: 600, T1Secs: 300, T2Secs: 525},
		},
		{
			name:  "elapsed negotiation subtracted from each",
			lease: 600, elapsed: 10,
			want: LeaseTimes{LeaseSecs: 590, T1Secs: 290, T2Secs: 515},
		},
		{
			name:  "elapsed exceeding a timer floors it at zero",
			lease: 600, t1: 5, t1Present: true, t2: 525, t2Present: true, elapsed: 10,
			want: LeaseTimes{LeaseSecs: 590, T1Secs: 0, T2Secs: 515},
		},
		{
			name:  "infinite lease arms nothing",
			lease: iface.Infinite, elapsed: 42,
			want: LeaseTimes{Infinite: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeLeaseTimes(tt.lease, tt.t1, tt.t1Present, tt.t2, tt.t2Present, tt.elapsed)
			if got != tt.want {
				t.Errorf("computeLeaseTimes() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// The derived timers must keep their protocol ordering regardless of the
// lease duration the server hands out.
func TestComputeLeaseTimesOrdering(t *testing.T) {
	for _, lease := range []uint32{1, 60, 600, 3600, 86400, 1 << 30} {
		lt := computeLeaseTimes(lease, 0, false, 0, false, 0)
		if lt.T1Secs > lt.T2Secs || lt.T2Secs > lt.LeaseSecs {
			t.Errorf("lease=%d: want T1 <= T2 <= lease, got T1=%d T2=%d lease=%d",
				lease, lt.T1Secs, lt.T2Secs, lt.LeaseSecs)
		}
	}
}
