// Package timer implements the lease timer wheel: a singly-linked
// list of active countdown entries walked once per second, posting an
// owner Command to the cmdqueue when an entry's countdown reaches zero.
package timer

import (
	"sync"

	"github.com/soypat/dhcpc/cmdqueue"
)

// Handle is an index-based reference to a wheel entry, handed to the
// owning interface record for later cancellation. An index instead of a
// pointer keeps the record and the wheel free of cyclic references.
type Handle int

// NoHandle marks the absence of an armed timer.
const NoHandle Handle = -1

type entry struct {
	countdown uint32
	owner     cmdqueue.Command
	active    bool
	next      int // index of next active entry, or -1
}

// Wheel holds a fixed-size slab of entries, a free list and a singly
// linked list of active entries. Entries are never heap-allocated
// individually.
type Wheel struct {
	mu      sync.Mutex
	entries []entry
	free    []int
	headIdx int // head of the active list, or -1
}

// NewWheel preallocates room for capacity simultaneously armed timers.
// In practice that is the interface-pool size, since at most one timer
// is armed per interface.
func NewWheel(capacity int) *Wheel {
	w := &Wheel{
		entries: make([]entry, capacity),
		free:    make([]int, capacity),
		headIdx: -1,
	}
	for i := range w.free {
		w.free[i] = capacity - 1 - i
	}
	return w
}

// Arm schedules owner to be posted to the command queue in countdownSecs
// seconds. It returns NoHandle and an error if the wheel's slab is
// exhausted.
func (w *Wheel) Arm(countdownSecs uint32, owner cmdqueue.Command) (Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.free) == 0 {
		return NoHandle, cmdqueue.ErrQueueFull // pool exhaustion, same resource-error family
	}
	idx := w.free[len(w.free)-1]
	w.free = w.free[:len(w.free)-1]

	w.entries[idx] = entry{
		countdown: countdownSecs,
		owner:     owner,
		active:    true,
		next:      w.headIdx,
	}
	w.headIdx = idx
	return Handle(idx), nil
}

// Cancel removes the entry referenced by h from the wheel and frees its
// slot. It is a safe no-op when h is NoHandle or already fired.
func (w *Wheel) Cancel(h Handle) {
	if h == NoHandle {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := int(h)
	if idx < 0 || idx >= len(w.entries) || !w.entries[idx].active {
		return
	}
	w.unlink(idx)
	w.entries[idx] = entry{}
	w.free = append(w.free, idx)
}

// unlink removes idx from the active singly-linked list. Callers must
// hold w.mu.
func (w *Wheel) unlink(idx int) {
	if w.headIdx == idx {
		w.headIdx = w.entries[idx].next
		return
	}
	for cur := w.headIdx; cur != -1; cur = w.entries[cur].next {
		if w.entries[cur].next == idx {
			w.entries[cur].next = w.entries[idx].next
			return
		}
	}
}

// Tick decrements every active entry's countdown by one; entries reaching
// zero are unlinked, freed, and their owner Command is posted via post.
// If two timers expire on the same tick they are posted in list order,
// which is most-recently-armed first since Arm links new entries at the
// head; callers must not rely on this ordering across interfaces.
func (w *Wheel) Tick(post func(cmdqueue.Command) error) {
	w.mu.Lock()
	var expired []cmdqueue.Command
	cur := w.headIdx
	for cur != -1 {
		next := w.entries[cur].next
		if w.entries[cur].countdown > 1 {
			w.entries[cur].countdown--
		} else {
			expired = append(expired, w.entries[cur].owner)
			w.unlink(cur)
			w.entries[cur] = entry{}
			w.free = append(w.free, cur)
		}
		cur = next
	}
	w.mu.Unlock()

	for _, cmd := range expired {
		post(cmd)
	}
}

// Len reports the number of currently armed entries.
func (w *Wheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for cur := w.headIdx; cur != -1; cur = w.entries[cur].next {
		n++
	}
	return n
}
