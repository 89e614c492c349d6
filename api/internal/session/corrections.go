package session

import (
	"sync"

	"voiceshield/api/internal/detect/types"
)

const DefaultMaxCorrections = 20

// CorrectionLog keeps the most recent corrections in insertion order. When
// full, the oldest entry is evicted; Total keeps counting.
type CorrectionLog struct {
	mu    sync.RWMutex
	buf   []types.Correction
	start int
	size  int
	total int
}

func NewCorrectionLog(capacity int) *CorrectionLog {
	if capacity <= 0 {
		capacity = DefaultMaxCorrections
	}
	return &CorrectionLog{buf: make([]types.Correction, capacity)}
}

func (l *CorrectionLog) Append(c types.Correction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := (l.start + l.size) % len(l.buf)
	l.buf[idx] = c
	if l.size < len(l.buf) {
		l.size++
	} else {
		l.start = (l.start + 1) % len(l.buf)
	}
	l.total++
}

// Snapshot returns a copy, oldest first.
func (l *CorrectionLog) Snapshot() []types.Correction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Correction, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.start+i)%len(l.buf)]
	}
	return out
}

func (l *CorrectionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Total counts every correction ever appended, evicted ones included.
func (l *CorrectionLog) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

func (l *CorrectionLog) Cap() int { return len(l.buf) }
