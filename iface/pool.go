package iface

import "sync"

// Pool is the process-wide set of interface records, fixed in size at
// configuration time. It uses a slab of preallocated Records plus an
// index-based free list: no Record is ever heap-allocated individually,
// and handles are small integers rather than pointers.
//
// Record field mutation is serialized by the dispatcher's own global
// mutex; Pool does not re-lock around that. The id→slot index itself,
// however, is guarded by a dedicated RWMutex so that a status read's
// Lookup never races the Go map with a concurrent Acquire/Release;
// status/last-error on the returned Record remain the atomics that make
// the read itself lock-free.
type Pool struct {
	mu      sync.RWMutex
	records []Record
	free    []int // indices of unused slots, LIFO
	byIfID  map[string]int
}

// NewPool preallocates a slab able to hold maxIfaces concurrent
// interface records.
func NewPool(maxIfaces int) *Pool {
	p := &Pool{
		records: make([]Record, maxIfaces),
		free:    make([]int, maxIfaces),
		byIfID:  make(map[string]int, maxIfaces),
	}
	for i := range p.free {
		p.free[i] = maxIfaces - 1 - i
	}
	return p
}

// Acquire allocates a new Record for ifID, seeded with hwAddr. It fails
// with ErrInterfaceInvalid if ifID is already managed, or ErrPoolEmpty if
// the slab is exhausted.
func (p *Pool) Acquire(ifID string, hwAddr [6]byte) (*Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byIfID[ifID]; exists {
		return nil, ErrInterfaceInvalid
	}
	if len(p.free) == 0 {
		return nil, ErrPoolEmpty
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	rec := &p.records[idx]
	*rec = Record{
		IfID:        ifID,
		HWAddr:      hwAddr,
		State:       StateNone,
		XIDBase:     xidBaseFromHWAddr(hwAddr),
		TimerHandle: NoHandle,
		handle:      idx,
	}
	rec.SetStatus(StatusNone)
	rec.SetLastError(ErrNone)
	p.byIfID[ifID] = idx
	return rec, nil
}

// Lookup returns the Record for ifID, if one is currently acquired. Safe
// to call concurrently with Acquire/Release from another goroutine;
// this is the entry point status reads use without holding the
// dispatcher's global mutex.
func (p *Pool) Lookup(ifID string) (*Record, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx, ok := p.byIfID[ifID]
	if !ok {
		return nil, false
	}
	return &p.records[idx], true
}

// Release frees rec back to the pool. This is the only way a Record
// leaves the active set; it is terminal.
func (p *Pool) Release(rec *Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := rec.handle
	delete(p.byIfID, rec.IfID)
	p.records[idx] = Record{}
	p.free = append(p.free, idx)
}

// Len reports the number of currently acquired records.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byIfID)
}
