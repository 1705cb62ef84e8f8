package plugin

import "sync"

// Ledger is the per-module record of already-processed data values. It is
// append-only and lives for the module instance's run; nothing persists it.
type Ledger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// CheckAndRecord marks datum as seen and reports whether this call was the
// first to do so. Check and record are one atomic step, so a slow lookup
// cannot race a duplicate arrival into double processing.
func (l *Ledger) CheckAndRecord(datum string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[datum]; ok {
		return false
	}
	l.seen[datum] = struct{}{}
	return true
}

// Seen reports whether datum was already recorded.
func (l *Ledger) Seen(datum string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[datum]
	return ok
}

// Len returns the number of recorded data values.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
