package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/robfig/cron/v3"

	"recurcal/internal/configurator"
	appLog "recurcal/internal/log"
)

var ErrNotFound = errors.New("session not found")

// Session is one browser's configurator. The configurator itself is
// single-threaded, so every access goes through Do.
type Session struct {
	ID      string
	Created time.Time

	mu       sync.Mutex
	cfg      *configurator.Configurator
	lastSeen time.Time
	conns    int
	now      func() time.Time
}

// Do runs fn with exclusive access to the configurator.
func (s *Session) Do(fn func(c *configurator.Configurator)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
	fn(s.cfg)
}

// LastSeen is the time of the latest Do, Touch, Attach or detach.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Attach marks a live connection (a websocket) on the session. Sweep never
// drops an attached session. The returned func detaches; the idle clock
// restarts from that moment.
func (s *Session) Attach() (detach func()) {
	s.mu.Lock()
	s.conns++
	s.lastSeen = s.now()
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.conns--
			s.lastSeen = s.now()
			s.mu.Unlock()
		})
	}
}

// Touch records activity without running anything.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

func (s *Session) idleBefore(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns == 0 && s.lastSeen.Before(cutoff)
}

// Options configures a Store.
type Options struct {
	// MaxSessions bounds the store; the least recently used session is
	// dropped when a new one would exceed it.
	MaxSessions int
	// IdleTTL is how long an untouched session survives a sweep.
	IdleTTL time.Duration
	// Factory builds the configurator for a new session.
	Factory func() *configurator.Configurator
	// Now overrides time.Now, for tests.
	Now func() time.Time
}

// Store keeps live sessions in memory.
type Store struct {
	cache   *lru.Cache[string, *Session]
	ttl     time.Duration
	factory func() *configurator.Configurator
	now     func() time.Time
}

func NewStore(opts Options) (*Store, error) {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1024
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	if opts.Factory == nil {
		return nil, errors.New("session: factory is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cache, err := lru.NewWithEvict[string, *Session](opts.MaxSessions, func(id string, _ *Session) {
		appLog.Debug("session evicted", "id", id)
	})
	if err != nil {
		return nil, err
	}
	return &Store{
		cache:   cache,
		ttl:     opts.IdleTTL,
		factory: opts.Factory,
		now:     opts.Now,
	}, nil
}

// Create mounts a new configurator under a fresh ID.
func (s *Store) Create() *Session {
	now := s.now()
	sess := &Session{
		ID:       uuid.NewString(),
		Created:  now,
		cfg:      s.factory(),
		lastSeen: now,
		now:      s.now,
	}
	s.cache.Add(sess.ID, sess)
	appLog.Info("session created", "id", sess.ID, "active", s.cache.Len())
	return sess
}

func (s *Store) Get(id string) (*Session, error) {
	sess, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *Store) Delete(id string) bool {
	return s.cache.Remove(id)
}

func (s *Store) Len() int {
	return s.cache.Len()
}

// Sweep drops unattached sessions idle for longer than the TTL and returns
// how many were removed.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for _, id := range s.cache.Keys() {
		sess, ok := s.cache.Peek(id)
		if !ok {
			continue
		}
		if sess.idleBefore(cutoff) {
			s.cache.Remove(id)
			removed++
		}
	}
	if removed > 0 {
		appLog.Info("session sweep", "removed", removed, "active", s.cache.Len())
	}
	return removed
}

// StartSweeper runs Sweep on a cron schedule ("@every 5m", "*/10 * * * *").
// The returned cron must be stopped by the caller.
func (s *Store) StartSweeper(spec string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.Sweep() }); err != nil {
		return nil, err
	}
	c.Start()
	appLog.Info("session sweeper started", "schedule", spec, "idle_ttl", s.ttl.String())
	return c, nil
}
