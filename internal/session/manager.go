// Package session tracks connected clients and the player each one drives.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"legato/internal/player"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Opener returns the storage that holds owner's player state.
type Opener func(owner string) (player.Storage, error)

// Config controls session lifetime and the players sessions get.
type Config struct {
	// Timeout expires sessions idle for longer; zero keeps them forever.
	Timeout      time.Duration
	TickInterval time.Duration
	ServerClock  bool
	// DefaultVolume is the volume of new and reset players; nil means
	// player.DefaultVolume and zero starts them muted.
	DefaultVolume *int
	CommandRate   float64
	CommandBurst  int
}

// Session is one connected client.
type Session struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner"`
	UserAgent  string    `json:"userAgent"`
	IPAddress  string    `json:"ipAddress"`
	DeviceName string    `json:"deviceName"`
	CreatedAt  time.Time `json:"createdAt"`

	lastActivity time.Time
	limiter      *rate.Limiter
	player       *sharedPlayer
	done         chan struct{}
}

// Player returns the player this session controls.
func (s *Session) Player() *player.Context {
	return s.player.ctx
}

// Done is closed once the session is removed, expired or the manager closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Allow reports whether the session may issue another command now.
func (s *Session) Allow() bool {
	return s.limiter.Allow()
}

// sharedPlayer is the player of one owner. Sessions of the same owner drive
// the same player so they never overwrite each other's persisted state.
type sharedPlayer struct {
	ctx    *player.Context
	cancel context.CancelFunc
	refs   int
}

// Manager owns sessions and their players.
type Manager struct {
	mutex    sync.RWMutex
	sessions map[string]*Session
	players  map[string]*sharedPlayer

	open   Opener
	cfg    Config
	logger logrus.FieldLogger
	now    func() time.Time

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewManager creates a manager. Call Start to expire idle sessions.
func NewManager(open Opener, cfg Config, logger logrus.FieldLogger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.CommandRate <= 0 {
		cfg.CommandRate = float64(rate.Inf)
	}
	cfg.CommandBurst = max(cfg.CommandBurst, 1)

	return &Manager{
		sessions: make(map[string]*Session),
		players:  make(map[string]*sharedPlayer),
		open:     open,
		cfg:      cfg,
		logger:   logger.WithField("component", "sessions"),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// Start runs the expiry loop until ctx is done or Close is called.
func (m *Manager) Start(ctx context.Context) {
	if m.cfg.Timeout <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(max(m.cfg.Timeout/2, time.Second))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.Expire()
			}
		}
	}()
}

// Create opens a session for owner, attaching it to owner's player and
// starting that player if this is its first session.
func (m *Manager) Create(owner, userAgent, ipAddress, deviceName string) (*Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	shared, ok := m.players[owner]
	if !ok {
		var err error
		if shared, err = m.startPlayer(owner); err != nil {
			return nil, err
		}
		m.players[owner] = shared
	}
	shared.refs++

	now := m.now()
	s := &Session{
		ID:           uuid.NewString(),
		Owner:        owner,
		UserAgent:    userAgent,
		IPAddress:    ipAddress,
		DeviceName:   deviceName,
		CreatedAt:    now,
		lastActivity: now,
		limiter:      rate.NewLimiter(rate.Limit(m.cfg.CommandRate), m.cfg.CommandBurst),
		player:       shared,
		done:         make(chan struct{}),
	}
	m.sessions[s.ID] = s

	m.logger.WithFields(logrus.Fields{
		"session": s.ID,
		"owner":   owner,
		"device":  deviceName,
	}).Info("Session created")
	return s, nil
}

func (m *Manager) startPlayer(owner string) (*sharedPlayer, error) {
	storage, err := m.open(owner)
	if err != nil {
		return nil, err
	}
	defaults := player.DefaultState()
	if m.cfg.DefaultVolume != nil {
		defaults.Volume = *m.cfg.DefaultVolume
	}

	opts := player.Options{
		Storage:      storage,
		Defaults:     &defaults,
		TickInterval: m.cfg.TickInterval,
		Logger:       m.logger.WithField("owner", owner),
	}
	if m.cfg.ServerClock {
		opts.Driver = player.NewEstimatingDriver()
	}

	ctx, cancel := context.WithCancel(context.Background())
	pc := player.NewContext(ctx, opts)
	return &sharedPlayer{ctx: pc, cancel: cancel}, nil
}

// Get returns a live session and marks it active.
func (m *Manager) Get(id string) (*Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s, ok := m.sessions[id]
	if !ok || m.expiredLocked(s, m.now()) {
		return nil, ErrNotFound
	}
	s.lastActivity = m.now()
	return s, nil
}

// Sessions returns the live sessions ordered by creation time.
func (m *Manager) Sessions() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	now := m.now()
	live := lo.Filter(lo.Values(m.sessions), func(s *Session, _ int) bool {
		return !m.expiredLocked(s, now)
	})
	sort.Slice(live, func(i, j int) bool { return live[i].CreatedAt.Before(live[j].CreatedAt) })
	return live
}

// Reset restores the defaults on the session's player.
func (m *Manager) Reset(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.Player().Store.Reset()
	return nil
}

// Remove ends a session. The player is closed with its last session.
func (m *Manager) Remove(id string) error {
	m.mutex.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mutex.Unlock()
		return ErrNotFound
	}
	closing := m.detachLocked(s)
	m.mutex.Unlock()

	m.logger.WithField("session", id).Info("Session removed")
	return closePlayer(closing)
}

// Expire removes every idle session and returns how many were removed.
func (m *Manager) Expire() int {
	m.mutex.Lock()
	now := m.now()
	var closing []*sharedPlayer
	expired := 0
	for _, s := range m.sessions {
		if !m.expiredLocked(s, now) {
			continue
		}
		expired++
		if p := m.detachLocked(s); p != nil {
			closing = append(closing, p)
		}
		m.logger.WithField("session", s.ID).Info("Session expired")
	}
	m.mutex.Unlock()

	for _, p := range closing {
		if err := closePlayer(p); err != nil {
			m.logger.WithError(err).Warn("Failed to close expired player")
		}
	}
	return expired
}

// Close ends every session and stops the expiry loop.
func (m *Manager) Close() error {
	m.once.Do(func() { close(m.stop) })
	m.wg.Wait()

	m.mutex.Lock()
	players := lo.Values(m.players)
	for _, s := range m.sessions {
		close(s.done)
	}
	m.sessions = make(map[string]*Session)
	m.players = make(map[string]*sharedPlayer)
	m.mutex.Unlock()

	var errs []error
	for _, p := range players {
		errs = append(errs, closePlayer(p))
	}
	return errors.Join(errs...)
}

func (m *Manager) expiredLocked(s *Session, now time.Time) bool {
	return m.cfg.Timeout > 0 && now.Sub(s.lastActivity) > m.cfg.Timeout
}

// detachLocked drops s and returns its player if no session uses it anymore.
func (m *Manager) detachLocked(s *Session) *sharedPlayer {
	delete(m.sessions, s.ID)
	close(s.done)
	s.player.refs--
	if s.player.refs > 0 {
		return nil
	}
	delete(m.players, s.Owner)
	return s.player
}

func closePlayer(p *sharedPlayer) error {
	if p == nil {
		return nil
	}
	err := p.ctx.Close()
	p.cancel()
	return err
}
