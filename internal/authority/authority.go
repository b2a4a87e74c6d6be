package authority

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mindhaven/immerse/internal/domain"
	"github.com/mindhaven/immerse/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const sweepTimeout = 10 * time.Second

// Config tunes session lifecycle behavior.
type Config struct {
	// SessionTimeout is the idle window after which a session expires.
	SessionTimeout time.Duration
	// MaxConcurrentSessions caps active sessions per user. Hitting the cap
	// evicts the least-recently-active session rather than rejecting.
	MaxConcurrentSessions int
	// TerminationGrace keeps terminated records readable (as
	// recently-terminated) before the sweeper removes them.
	TerminationGrace time.Duration
	// SweepInterval is the cadence of the background validity sweep.
	SweepInterval time.Duration
}

// SecurityLevelFunc derives a session's security level from the caller's
// profile. The identity provider owns profiles; the engine only records the
// derived level.
type SecurityLevelFunc func(userID string) domain.SecurityLevel

// Authority owns session and device records. All mutation goes through its
// public methods; callers only ever see snapshots.
type Authority struct {
	sessions domain.SessionStore
	devices  domain.DeviceStore
	clock    clockwork.Clock
	cfg      Config
	level    SecurityLevelFunc

	// admission serializes eviction-then-create per user so two concurrent
	// Authenticate calls cannot both observe room under the cap.
	admissionMu sync.Mutex
	admission   map[string]*sync.Mutex

	// deviceReg collapses concurrent first-time registrations of one device.
	deviceReg singleflight.Group

	// recordMu guards records. Each session's mutex serializes whole-record
	// read-modify-write against the store: an activity refresh must not erase
	// a concurrent permission grant, and termination stays exactly-once
	// between Validate, the sweeper and explicit Terminate calls.
	recordMu sync.Mutex
	records  map[uuid.UUID]*sync.Mutex

	hooksMu sync.Mutex
	hooks   []func(sessionID uuid.UUID)

	sweepStopCh chan struct{}
	stopOnce    sync.Once
}

// Option configures an Authority.
type Option func(*Authority)

// WithSecurityLevel overrides the default security level derivation.
func WithSecurityLevel(fn SecurityLevelFunc) Option {
	return func(a *Authority) { a.level = fn }
}

// New creates an Authority and starts its background validity sweep.
// Non-positive tunables fall back to safe defaults.
func New(sessions domain.SessionStore, devices domain.DeviceStore, clock clockwork.Clock, cfg Config, opts ...Option) *Authority {
	if cfg.MaxConcurrentSessions <= 0 {
		cfg.MaxConcurrentSessions = 1
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	a := &Authority{
		sessions:    sessions,
		devices:     devices,
		clock:       clock,
		cfg:         cfg,
		level:       func(string) domain.SecurityLevel { return domain.SecurityStandard },
		admission:   make(map[string]*sync.Mutex),
		records:     make(map[uuid.UUID]*sync.Mutex),
		sweepStopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.startSweep()
	return a
}

// OnTerminate registers a cleanup hook invoked once per terminated session.
// Hooks run synchronously inside termination.
func (a *Authority) OnTerminate(fn func(sessionID uuid.UUID)) {
	a.hooksMu.Lock()
	a.hooks = append(a.hooks, fn)
	a.hooksMu.Unlock()
}

// Authenticate registers the device if unseen, admits the user under the
// concurrency cap (evicting the least-recently-active session if needed) and
// issues a new session with the default permission set.
func (a *Authority) Authenticate(ctx context.Context, userID, deviceID string) (*domain.Session, error) {
	if userID == "" || deviceID == "" {
		return nil, fmt.Errorf("%w: user and device ids are required", domain.ErrNotAuthenticated)
	}

	if err := a.registerDevice(ctx, deviceID); err != nil {
		return nil, fmt.Errorf("%w: device registration failed: %v", domain.ErrNotAuthenticated, err)
	}

	lock := a.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	active, err := a.activeSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNotAuthenticated, err)
	}

	for len(active) >= a.cfg.MaxConcurrentSessions {
		victim := oldestSession(active)
		if err := a.terminate(ctx, victim.ID); err != nil {
			return nil, fmt.Errorf("%w: eviction failed: %v", domain.ErrNotAuthenticated, err)
		}
		metrics.AuthorityEvictionsTotal.Inc()
		slog.Info("Evicted session at concurrency cap",
			"session_id", victim.ID.String(),
			"user_id", userID,
			"device_id", victim.DeviceID)
		active = removeSession(active, victim.ID)
	}

	now := a.clock.Now()
	session := &domain.Session{
		ID:            uuid.New(),
		UserID:        userID,
		DeviceID:      deviceID,
		StartTime:     now,
		LastActivity:  now,
		Active:        true,
		Permissions:   defaultPermissions(),
		SecurityLevel: a.level(userID),
	}
	if err := a.sessions.Put(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNotAuthenticated, err)
	}

	metrics.AuthoritySessionsActive.Inc()
	slog.Info("Session created",
		"session_id", session.ID.String(),
		"user_id", userID,
		"device_id", deviceID,
		"security_level", string(session.SecurityLevel))
	return session.Clone(), nil
}

// Validate reports whether the session is alive, refreshing its activity
// timestamp on success. A session found idle beyond the timeout is terminated
// here rather than waiting for the sweep.
func (a *Authority) Validate(ctx context.Context, sessionID uuid.UUID) bool {
	lock := a.sessionLock(sessionID)
	lock.Lock()

	session, err := a.sessions.Get(ctx, sessionID)
	if err != nil || session == nil || !session.Active {
		lock.Unlock()
		return false
	}

	if a.clock.Since(session.LastActivity) > a.cfg.SessionTimeout {
		// terminate re-acquires the session lock.
		lock.Unlock()
		if err := a.terminate(ctx, sessionID); err != nil {
			slog.Error("Failed to terminate expired session", "session_id", sessionID.String(), "error", err)
		}
		metrics.AuthorityExpirationsTotal.Inc()
		return false
	}

	session.LastActivity = a.clock.Now()
	if err := a.sessions.Put(ctx, session); err != nil {
		slog.Error("Failed to refresh session activity", "session_id", sessionID.String(), "error", err)
	}
	lock.Unlock()
	return true
}

// Touch records activity without a full validity check. High-frequency
// callers (render loops) use this when they already know the session is live.
func (a *Authority) Touch(ctx context.Context, sessionID uuid.UUID) {
	lock := a.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := a.sessions.Get(ctx, sessionID)
	if err != nil || session == nil || !session.Active {
		return
	}
	session.LastActivity = a.clock.Now()
	if err := a.sessions.Put(ctx, session); err != nil {
		slog.Error("Failed to touch session", "session_id", sessionID.String(), "error", err)
	}
}

// HasPermission reports whether the session currently holds the permission.
// Expiry is lazy: the check that discovers a lapsed TTL flips the grant off.
func (a *Authority) HasPermission(ctx context.Context, sessionID uuid.UUID, permission domain.PermissionType) bool {
	lock := a.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := a.sessions.Get(ctx, sessionID)
	if err != nil || session == nil || !session.Active {
		metrics.PermissionDenialsTotal.WithLabelValues(string(permission)).Inc()
		return false
	}

	grant, ok := session.Permissions[permission]
	if !ok || !grant.Granted {
		metrics.PermissionDenialsTotal.WithLabelValues(string(permission)).Inc()
		return false
	}

	if !grant.ExpiresAt.IsZero() && !a.clock.Now().Before(grant.ExpiresAt) {
		grant.Granted = false
		session.Permissions[permission] = grant
		if err := a.sessions.Put(ctx, session); err != nil {
			slog.Error("Failed to persist permission expiry", "session_id", sessionID.String(), "error", err)
		}
		metrics.PermissionDenialsTotal.WithLabelValues(string(permission)).Inc()
		return false
	}

	return true
}

// GrantPermission upserts a grant. A zero ttl means the grant never expires.
// Repeated grants are idempotent and simply overwrite the expiry.
func (a *Authority) GrantPermission(ctx context.Context, sessionID uuid.UUID, permission domain.PermissionType, ttl time.Duration) bool {
	lock := a.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := a.sessions.Get(ctx, sessionID)
	if err != nil || session == nil || !session.Active {
		return false
	}

	grant := domain.Permission{Type: permission, Granted: true}
	if ttl > 0 {
		grant.ExpiresAt = a.clock.Now().Add(ttl)
	}
	session.Permissions[permission] = grant
	if err := a.sessions.Put(ctx, session); err != nil {
		slog.Error("Failed to persist permission grant", "session_id", sessionID.String(), "error", err)
		return false
	}

	slog.Info("Permission granted",
		"session_id", sessionID.String(),
		"permission", string(permission),
		"ttl", ttl.String())
	return true
}

// Terminate marks the session inactive and runs cleanup hooks. The record
// stays readable as recently-terminated until the sweep removes it after the
// configured grace window.
func (a *Authority) Terminate(ctx context.Context, sessionID uuid.UUID) error {
	return a.terminate(ctx, sessionID)
}

// Lookup returns a snapshot of the session together with its lifecycle
// status. Reads during the grace window see recently-terminated, not
// not-found.
func (a *Authority) Lookup(ctx context.Context, sessionID uuid.UUID) (*domain.Session, domain.SessionStatus) {
	session, err := a.sessions.Get(ctx, sessionID)
	if err != nil || session == nil {
		return nil, domain.SessionMissing
	}
	if !session.Active {
		return session.Clone(), domain.SessionRecentlyTerminated
	}
	return session.Clone(), domain.SessionActive
}

// Stop halts the background sweep. Session records are left as-is.
func (a *Authority) Stop() {
	a.stopOnce.Do(func() {
		close(a.sweepStopCh)
	})
}

func (a *Authority) terminate(ctx context.Context, sessionID uuid.UUID) error {
	lock := a.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return domain.ErrSessionNotFound
	}
	if !session.Active {
		// Already terminated, hooks have run.
		return nil
	}

	session.Active = false
	session.TerminatedAt = a.clock.Now()
	if err := a.sessions.Put(ctx, session); err != nil {
		return err
	}
	metrics.AuthoritySessionsActive.Dec()

	a.hooksMu.Lock()
	hooks := make([]func(uuid.UUID), len(a.hooks))
	copy(hooks, a.hooks)
	a.hooksMu.Unlock()
	for _, hook := range hooks {
		hook(sessionID)
	}

	slog.Info("Session terminated", "session_id", sessionID.String(), "user_id", session.UserID)
	return nil
}

func (a *Authority) registerDevice(ctx context.Context, deviceID string) error {
	_, err, _ := a.deviceReg.Do(deviceID, func() (any, error) {
		device, err := a.devices.Get(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		now := a.clock.Now()
		if device == nil {
			device = &domain.Device{
				ID:          deviceID,
				DisplayName: deviceID,
				Kind:        deviceKindFor(deviceID),
			}
		}
		device.Connected = true
		device.LastSeen = now
		return nil, a.devices.Put(ctx, device)
	})
	return err
}

func (a *Authority) userLock(userID string) *sync.Mutex {
	a.admissionMu.Lock()
	defer a.admissionMu.Unlock()
	lock, ok := a.admission[userID]
	if !ok {
		lock = &sync.Mutex{}
		a.admission[userID] = lock
	}
	return lock
}

func (a *Authority) sessionLock(sessionID uuid.UUID) *sync.Mutex {
	a.recordMu.Lock()
	defer a.recordMu.Unlock()
	lock, ok := a.records[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		a.records[sessionID] = lock
	}
	return lock
}

func (a *Authority) activeSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	all, err := a.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, s := range all {
		if s.Active {
			active = append(active, s)
		}
	}
	return active, nil
}

func (a *Authority) startSweep() {
	ticker := a.clock.NewTicker(a.cfg.SweepInterval)
	go func() {
		for {
			select {
			case <-ticker.Chan():
				a.sweep()
			case <-a.sweepStopCh:
				ticker.Stop()
				return
			}
		}
	}()
	slog.Info("Session sweep started", "interval", a.cfg.SweepInterval.String())
}

// sweep expires idle sessions and removes terminated records whose grace
// window has passed.
func (a *Authority) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	ids, err := a.sessions.ListIDs(ctx)
	if err != nil {
		slog.Error("Session sweep failed to list sessions", "error", err)
		return
	}

	now := a.clock.Now()
	for _, id := range ids {
		session, err := a.sessions.Get(ctx, id)
		if err != nil || session == nil {
			continue
		}

		if session.Active {
			if now.Sub(session.LastActivity) > a.cfg.SessionTimeout {
				if err := a.terminate(ctx, id); err != nil {
					slog.Error("Sweep failed to terminate idle session", "session_id", id.String(), "error", err)
					continue
				}
				metrics.AuthorityExpirationsTotal.Inc()
			}
			continue
		}

		if now.Sub(session.TerminatedAt) >= a.cfg.TerminationGrace {
			if err := a.sessions.Delete(ctx, id); err != nil {
				slog.Error("Sweep failed to remove terminated session", "session_id", id.String(), "error", err)
				continue
			}
			a.recordMu.Lock()
			delete(a.records, id)
			a.recordMu.Unlock()
		}
	}
}

func defaultPermissions() map[domain.PermissionType]domain.Permission {
	perms := make(map[domain.PermissionType]domain.Permission, len(domain.PermissionTypes))
	for _, p := range domain.PermissionTypes {
		perms[p] = domain.Permission{Type: p, Granted: p == domain.PermissionSceneObjects}
	}
	return perms
}

// oldestSession picks the eviction victim: smallest LastActivity, ties broken
// by smallest StartTime.
func oldestSession(sessions []*domain.Session) *domain.Session {
	victim := sessions[0]
	for _, s := range sessions[1:] {
		if s.LastActivity.Before(victim.LastActivity) {
			victim = s
			continue
		}
		if s.LastActivity.Equal(victim.LastActivity) && s.StartTime.Before(victim.StartTime) {
			victim = s
		}
	}
	return victim
}

func removeSession(sessions []*domain.Session, id uuid.UUID) []*domain.Session {
	out := sessions[:0]
	for _, s := range sessions {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

func deviceKindFor(deviceID string) domain.DeviceKind {
	switch {
	case len(deviceID) >= 3 && deviceID[:3] == "hmd":
		return domain.DeviceHeadset
	case len(deviceID) >= 3 && deviceID[:3] == "mob":
		return domain.DeviceMobile
	default:
		return domain.DeviceDesktop
	}
}
