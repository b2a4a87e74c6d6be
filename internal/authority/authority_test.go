package authority

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mindhaven/immerse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthority(t *testing.T, clock clockwork.Clock, cfg Config) *Authority {
	t.Helper()
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = 30 * time.Minute
	}
	if cfg.MaxConcurrentSessions == 0 {
		cfg.MaxConcurrentSessions = 2
	}
	if cfg.TerminationGrace == 0 {
		cfg.TerminationGrace = 30 * time.Second
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Minute
	}
	a := New(NewMemorySessionStore(), NewMemoryDeviceStore(), clock, cfg)
	t.Cleanup(a.Stop)
	return a
}

func TestAuthenticate_IssuesSessionWithDefaults(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{})

	session, err := a.Authenticate(context.Background(), "user-1", "desk-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, "desk-1", session.DeviceID)
	assert.True(t, session.Active)
	assert.Equal(t, session.StartTime, session.LastActivity)
	assert.Equal(t, domain.SecurityStandard, session.SecurityLevel)

	assert.True(t, session.Permissions[domain.PermissionSceneObjects].Granted)
	assert.False(t, session.Permissions[domain.PermissionRecording].Granted)
	assert.False(t, session.Permissions[domain.PermissionSharing].Granted)
	assert.False(t, session.Permissions[domain.PermissionSharedPresence].Granted)
}

func TestAuthenticate_RejectsEmptyIdentity(t *testing.T) {
	a := newTestAuthority(t, clockwork.NewFakeClock(), Config{})

	_, err := a.Authenticate(context.Background(), "", "desk-1")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	_, err = a.Authenticate(context.Background(), "user-1", "")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestAuthenticate_EvictsOldestAtCap(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{MaxConcurrentSessions: 2})
	ctx := context.Background()

	s1, err := a.Authenticate(ctx, "user-1", "d1")
	require.NoError(t, err)
	clock.Advance(time.Second)
	s2, err := a.Authenticate(ctx, "user-1", "d2")
	require.NoError(t, err)
	clock.Advance(time.Second)
	s3, err := a.Authenticate(ctx, "user-1", "d3")
	require.NoError(t, err)

	_, status := a.Lookup(ctx, s1.ID)
	assert.Equal(t, domain.SessionRecentlyTerminated, status, "oldest session should be evicted")
	_, status = a.Lookup(ctx, s2.ID)
	assert.Equal(t, domain.SessionActive, status)
	_, status = a.Lookup(ctx, s3.ID)
	assert.Equal(t, domain.SessionActive, status)
}

func TestAuthenticate_EvictionTieBreaksOnStartTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{MaxConcurrentSessions: 2})
	ctx := context.Background()

	s1, err := a.Authenticate(ctx, "user-1", "d1")
	require.NoError(t, err)
	clock.Advance(time.Second)
	s2, err := a.Authenticate(ctx, "user-1", "d2")
	require.NoError(t, err)

	// Equalize LastActivity; StartTime still differs.
	clock.Advance(time.Second)
	a.Touch(ctx, s1.ID)
	a.Touch(ctx, s2.ID)

	clock.Advance(time.Second)
	_, err = a.Authenticate(ctx, "user-1", "d3")
	require.NoError(t, err)

	_, status := a.Lookup(ctx, s1.ID)
	assert.Equal(t, domain.SessionRecentlyTerminated, status, "earliest StartTime wins eviction on equal LastActivity")
	_, status = a.Lookup(ctx, s2.ID)
	assert.Equal(t, domain.SessionActive, status)
}

func TestAuthenticate_ConcurrentAdmissionNeverExceedsCap(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{MaxConcurrentSessions: 2})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := a.Authenticate(ctx, "user-1", "d-"+string(rune('a'+n)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	sessions, err := a.sessions.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	active := 0
	for _, s := range sessions {
		if s.Active {
			active++
		}
	}
	assert.Equal(t, 2, active)
}

func TestValidate_RefreshesActivity(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{SessionTimeout: 10 * time.Minute})
	ctx := context.Background()

	session, err := a.Authenticate(ctx, "user-1", "d1")
	require.NoError(t, err)

	// Repeated validation inside the window keeps the session alive well past
	// the original timeout horizon.
	for i := 0; i < 4; i++ {
		clock.Advance(9 * time.Minute)
		assert.True(t, a.Validate(ctx, session.ID))
	}
}

func TestValidate_TerminatesIdleSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{SessionTimeout: 10 * time.Minute})
	ctx := context.Background()

	session, err := a.Authenticate(ctx, "user-1", "d1")
	require.NoError(t, err)

	clock.Advance(10*time.Minute + time.Second)
	assert.False(t, a.Validate(ctx, session.ID))

	_, status := a.Lookup(ctx, session.ID)
	assert.Equal(t, domain.SessionRecentlyTerminated, status)
}

func TestValidate_UnknownSession(t *testing.T) {
	a := newTestAuthority(t, clockwork.NewFakeClock(), Config{})
	assert.False(t, a.Validate(context.Background(), uuid.New()))
}

func TestHasPermission_TTLExpiresLazily(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{})
	ctx := context.Background()

	session, err := a.Authenticate(ctx, "user-1", "d1")
	require.NoError(t, err)

	require.True(t, a.GrantPermission(ctx, session.ID, domain.PermissionRecording, 5*time.Second))
	assert.True(t, a.HasPermission(ctx, session.ID, domain.PermissionRecording))

	clock.Advance(6 * time.Second)
	assert.False(t, a.HasPermission(ctx, session.ID, domain.PermissionRecording))

	// The discovering check flips the grant off; a later re-grant works.
	snapshot, status := a.Lookup(ctx, session.ID)
	require.Equal(t, domain.SessionActive, status)
	assert.False(t, snapshot.Permissions[domain.PermissionRecording].Granted)

	require.True(t, a.GrantPermission(ctx, session.ID, domain.PermissionRecording, 0))
	clock.Advance(24 * time.Hour)
	a.Touch(ctx, session.ID)
	assert.True(t, a.HasPermission(ctx, session.ID, domain.PermissionRecording), "zero ttl never expires")
}

func TestGrantPermission_SurvivesConcurrentActivityRefresh(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{})
	ctx := context.Background()

	session, err := a.Authenticate(ctx, "user-1", "d1")
	require.NoError(t, err)

	// Hammer the whole-record activity refreshes that the render loop drives
	// while grants land; a grant reported as successful must stay visible.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			a.Validate(ctx, session.ID)
			a.Touch(ctx, session.ID)
		}
	}()

	for i := 0; i < 200; i++ {
		require.True(t, a.GrantPermission(ctx, session.ID, domain.PermissionRecording, time.Hour))
		assert.True(t, a.HasPermission(ctx, session.ID, domain.PermissionRecording),
			"grant must survive a concurrent activity refresh")
	}
	<-done
}

func TestNew_ClampsNonPositiveConcurrencyCap(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := New(NewMemorySessionStore(), NewMemoryDeviceStore(), clock, Config{
		SessionTimeout:        30 * time.Minute,
		MaxConcurrentSessions: -1,
		TerminationGrace:      30 * time.Second,
	})
	t.Cleanup(a.Stop)
	ctx := context.Background()

	s1, err := a.Authenticate(ctx, "user-1", "d1")
	require.NoError(t, err, "a non-positive cap must not panic admission")
	s2, err := a.Authenticate(ctx, "user-1", "d2")
	require.NoError(t, err)

	_, status := a.Lookup(ctx, s1.ID)
	assert.Equal(t, domain.SessionRecentlyTerminated, status, "clamped cap admits one session at a time")
	_, status = a.Lookup(ctx, s2.ID)
	assert.Equal(t, domain.SessionActive, status)
}

func TestHasPermission_FalseAtExactExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{})
	ctx := context.Background()

	session, err := a.Authenticate(ctx, "user-1", "d1")
	require.NoError(t, err)
	require.True(t, a.GrantPermission(ctx, session.ID, domain.PermissionSharing, 5*time.Second))

	clock.Advance(5*time.Second - time.Millisecond)
	assert.True(t, a.HasPermission(ctx, session.ID, domain.PermissionSharing))

	clock.Advance(time.Millisecond)
	assert.False(t, a.HasPermission(ctx, session.ID, domain.PermissionSharing), "expiry boundary is exclusive")
}

func TestHasPermission_DeniedForInactiveSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{})
	ctx := context.Background()

	session, err := a.Authenticate(ctx, "user-1", "d1")
	require.NoError(t, err)
	require.NoError(t, a.Terminate(ctx, session.ID))

	assert.False(t, a.HasPermission(ctx, session.ID, domain.PermissionSceneObjects))
}

func TestTerminate_HooksRunExactlyOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{})
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	a.OnTerminate(func(uuid.UUID) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	session, err := a.Authenticate(ctx, "user-1", "d1")
	require.NoError(t, err)

	require.NoError(t, a.Terminate(ctx, session.ID))
	require.NoError(t, a.Terminate(ctx, session.ID))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestSweep_RemovesRecordsAfterGrace(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{TerminationGrace: 30 * time.Second})
	ctx := context.Background()

	session, err := a.Authenticate(ctx, "user-1", "d1")
	require.NoError(t, err)
	require.NoError(t, a.Terminate(ctx, session.ID))

	// Inside the grace window the record is still visible.
	clock.Advance(10 * time.Second)
	a.sweep()
	_, status := a.Lookup(ctx, session.ID)
	assert.Equal(t, domain.SessionRecentlyTerminated, status)

	clock.Advance(25 * time.Second)
	a.sweep()
	_, status = a.Lookup(ctx, session.ID)
	assert.Equal(t, domain.SessionMissing, status)
}

func TestSweep_ExpiresIdleSessions(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{SessionTimeout: 10 * time.Minute})
	ctx := context.Background()

	idle, err := a.Authenticate(ctx, "user-1", "d1")
	require.NoError(t, err)
	busy, err := a.Authenticate(ctx, "user-2", "d2")
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	a.Touch(ctx, busy.ID)
	clock.Advance(2 * time.Minute)
	a.sweep()

	_, status := a.Lookup(ctx, idle.ID)
	assert.Equal(t, domain.SessionRecentlyTerminated, status)
	_, status = a.Lookup(ctx, busy.ID)
	assert.Equal(t, domain.SessionActive, status)
}

func TestSweep_RunsOnTicker(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{SessionTimeout: time.Minute, SweepInterval: time.Minute})
	ctx := context.Background()

	session, err := a.Authenticate(ctx, "user-1", "d1")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	assert.Eventually(t, func() bool {
		_, status := a.Lookup(ctx, session.ID)
		return status == domain.SessionRecentlyTerminated
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRegisterDevice_KindDerivedFromID(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{})
	ctx := context.Background()

	_, err := a.Authenticate(ctx, "user-1", "hmd-quest")
	require.NoError(t, err)
	_, err = a.Authenticate(ctx, "user-2", "mob-pixel")
	require.NoError(t, err)
	_, err = a.Authenticate(ctx, "user-3", "laptop")
	require.NoError(t, err)

	headset, err := a.devices.Get(ctx, "hmd-quest")
	require.NoError(t, err)
	require.NotNil(t, headset)
	assert.Equal(t, domain.DeviceHeadset, headset.Kind)
	assert.True(t, headset.Connected)

	mobile, err := a.devices.Get(ctx, "mob-pixel")
	require.NoError(t, err)
	require.NotNil(t, mobile)
	assert.Equal(t, domain.DeviceMobile, mobile.Kind)

	desktop, err := a.devices.Get(ctx, "laptop")
	require.NoError(t, err)
	require.NotNil(t, desktop)
	assert.Equal(t, domain.DeviceDesktop, desktop.Kind)
}

func TestLookup_ReturnsSnapshot(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAuthority(t, clock, Config{})
	ctx := context.Background()

	session, err := a.Authenticate(ctx, "user-1", "d1")
	require.NoError(t, err)

	snapshot, _ := a.Lookup(ctx, session.ID)
	snapshot.Permissions[domain.PermissionRecording] = domain.Permission{Type: domain.PermissionRecording, Granted: true}

	assert.False(t, a.HasPermission(ctx, session.ID, domain.PermissionRecording),
		"mutating a lookup snapshot must not affect stored state")
}
