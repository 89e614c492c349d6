package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"voiceshield/api/internal/observe"
)

type Options struct {
	MaxCorrections int
	TTL            time.Duration
	DefaultLLM     string
	Metrics        *observe.Metrics
}

// Store is the in-process session registry. Nothing survives a restart.
type Store struct {
	det  Detector
	opts Options
	m    sync.Map // id -> *Session
}

func NewStore(det Detector, opts Options) *Store {
	if opts.MaxCorrections <= 0 {
		opts.MaxCorrections = DefaultMaxCorrections
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	return &Store{det: det, opts: opts}
}

// Create registers a fresh session under a random UUID.
func (s *Store) Create(llm string) *Session {
	if llm == "" {
		llm = s.opts.DefaultLLM
	}
	sess := newSession(uuid.NewString(), llm, s.det, s.opts.MaxCorrections, s.opts.Metrics)
	s.m.Store(sess.ID, sess)
	return sess
}

func (s *Store) Get(id string) (*Session, bool) {
	if v, ok := s.m.Load(id); ok {
		return v.(*Session), true
	}
	return nil, false
}

// GetOrCreate is used by surfaces with their own stable key, such as a chat ID.
func (s *Store) GetOrCreate(id, llm string) *Session {
	if v, ok := s.m.Load(id); ok {
		return v.(*Session)
	}
	if llm == "" {
		llm = s.opts.DefaultLLM
	}
	v, _ := s.m.LoadOrStore(id, newSession(id, llm, s.det, s.opts.MaxCorrections, s.opts.Metrics))
	return v.(*Session)
}

// Resolve returns the session for id, or a new one when id is empty.
// ok is false when a non-empty id is unknown.
func (s *Store) Resolve(id, llm string) (*Session, bool) {
	if id == "" {
		return s.Create(llm), true
	}
	return s.Get(id)
}

func (s *Store) Delete(id string) { s.m.Delete(id) }

func (s *Store) Len() int {
	n := 0
	s.m.Range(func(_, _ any) bool { n++; return true })
	return n
}

// Sweep drops sessions idle longer than the TTL. A session with a call in
// flight is never dropped.
func (s *Store) Sweep(now time.Time) int {
	removed := 0
	s.m.Range(func(k, v any) bool {
		sess := v.(*Session)
		if now.Sub(sess.idleSince()) < s.opts.TTL {
			return true
		}
		if !sess.guard.TryAcquire(1) {
			return true
		}
		s.m.Delete(k)
		sess.guard.Release(1)
		removed++
		return true
	})
	return removed
}

// Run sweeps periodically until ctx is done.
func (s *Store) Run(ctx context.Context) {
	every := s.opts.TTL / 4
	if every < time.Minute {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Sweep(now); n > 0 {
				log.Printf("session sweep removed=%d remaining=%d", n, s.Len())
			}
		}
	}
}
