// Package session implements the in-memory registry of live roleplay
// sessions. The store is the only shared resource across connections:
// Mutate is the sole write path and holds a per-session exclusive lock, so
// turn sequences and phase state stay mutually consistent for every observer
// while mutations on different sessions proceed independently.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/dealdojo/backend/internal/model/roleplay"
	"github.com/dealdojo/backend/internal/storage"
)

var (
	// ErrInvalidSessionState flags an operation against a missing session or
	// one that is no longer active.
	ErrInvalidSessionState = errors.New("invalid session state")
	// ErrSessionExists flags a Create against an id already registered.
	ErrSessionExists = errors.New("session already exists")
	// ErrDraining rejects new sessions during shutdown.
	ErrDraining = errors.New("session store is draining")
)

type entry struct {
	mu      sync.Mutex
	session *roleplay.Session
}

// Store is the authoritative registry of active sessions, with asynchronous
// write-through to the durable record store after every mutation.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	records  storage.RecordStore
	draining bool
}

// NewStore returns an empty Store writing through to records.
func NewStore(records storage.RecordStore) *Store {
	return &Store{
		entries: make(map[string]*entry),
		records: records,
	}
}

// Create registers a session. Fails when the id is taken or the store is
// draining.
func (s *Store) Create(sess *roleplay.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draining {
		return ErrDraining
	}
	if _, ok := s.entries[sess.ID]; ok {
		return ErrSessionExists
	}
	s.entries[sess.ID] = &entry{session: sess}
	return nil
}

// Get returns a snapshot of the session, including ended sessions that have
// not yet been evicted.
func (s *Store) Get(id string) (roleplay.Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return roleplay.Session{}, ErrInvalidSessionState
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

// Mutate applies fn to the session while holding its exclusive lock. At most
// one mutation runs per session id at a time; the lock is released on every
// exit path. Fails with ErrInvalidSessionState when the session is missing or
// not active, and discards fn's changes when fn returns an error. On success
// the new snapshot is written through to the record store asynchronously.
func (s *Store) Mutate(id string, fn func(*roleplay.Session) error) (roleplay.Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return roleplay.Session{}, ErrInvalidSessionState
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status != roleplay.StatusActive {
		return roleplay.Session{}, ErrInvalidSessionState
	}

	// fn mutates a scratch copy so a failed mutation leaves nothing behind,
	// not even a partially appended turn.
	scratch := e.session.Clone()
	if err := fn(&scratch); err != nil {
		return roleplay.Session{}, err
	}
	*e.session = scratch

	snapshot := e.session.Clone()
	go s.persist(snapshot)
	return snapshot, nil
}

// Remove evicts a session from the registry. Evicting an unknown id is a
// no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// ExpireAbandoned flips every active session whose grace deadline has passed
// to abandoned and returns their snapshots for evaluation handoff.
func (s *Store) ExpireAbandoned(now time.Time) []roleplay.Session {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var expired []roleplay.Session
	for _, e := range entries {
		e.mu.Lock()
		sess := e.session
		if sess.Status == roleplay.StatusActive && !sess.ResumeBy.IsZero() && now.After(sess.ResumeBy) {
			sess.Status = roleplay.StatusAbandoned
			sess.LastActivityAt = now.UTC()
			snapshot := sess.Clone()
			expired = append(expired, snapshot)
			go s.persist(snapshot)
		}
		e.mu.Unlock()
	}
	return expired
}

// Drain rejects new sessions and flushes every live session to the record
// store synchronously. Called once at shutdown.
func (s *Store) Drain(ctx context.Context) {
	s.mu.Lock()
	s.draining = true
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		snapshot := e.session.Clone()
		e.mu.Unlock()
		if err := s.records.SaveSession(ctx, snapshot); err != nil {
			log.Printf("[session] drain flush failed session=%s: %v", snapshot.ID, err)
		}
	}
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *Store) persist(snapshot roleplay.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.records.SaveSession(ctx, snapshot); err != nil {
		log.Printf("[session] write-through failed session=%s: %v", snapshot.ID, err)
	}
}
