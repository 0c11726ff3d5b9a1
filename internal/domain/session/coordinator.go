package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fidulabs/chatlab/internal/infrastructure/logging"
	"github.com/fidulabs/chatlab/internal/infrastructure/monitoring"
	"github.com/fidulabs/chatlab/internal/providers/identity"
	"github.com/fidulabs/chatlab/internal/shared/types"
)

// ErrNoProvider is returned when an operation requires an identity
// provider and none has been registered. This is a configuration
// error and is never retried internally.
var ErrNoProvider = errors.New("no identity provider registered")

// DefaultDebounceWindow is the minimum interval between two effective
// restoration checks.
const DefaultDebounceWindow = 2 * time.Second

// Bridge is the one-way projection of coordinator state into the UI's
// observable store. The coordinator writes it synchronously on every
// transition into or out of the authenticated state, before returning
// control to its caller.
type Bridge interface {
	SetAuthStatus(types.AuthStatus)
}

type opKind string

const (
	opInitialize      opKind = "initialize"
	opCheckAndRestore opKind = "check_and_restore"
)

// flight is the shared in-flight result handle for one operation kind.
// Concurrent callers of the same kind wait on done and observe the
// same outcome as the caller that started the work.
type flight struct {
	done     chan struct{}
	gen      uint64
	restored bool
	err      error
}

// notification captures a bridge/subscriber update computed inside a
// critical section and delivered after it.
type notification struct {
	event  *types.EventKind
	status types.AuthStatus
}

type subscription struct {
	id uint64
	cb func(types.AuthStatus)
}

// Coordinator owns the authoritative session state. All UI lifecycle
// entry points (app boot, visibility regained, explicit login, OAuth
// callback) funnel through it; none call an identity provider
// directly. State is mutated only inside the coordinator's own
// critical sections.
type Coordinator struct {
	mu sync.Mutex

	provider         identity.Provider
	identityOptional bool
	initialized      bool

	state         types.SessionState
	flights       map[opKind]*flight
	lastCompleted map[opKind]time.Time
	lastResult    map[opKind]bool
	generation    map[opKind]uint64

	subs      map[types.EventKind][]subscription
	nextSubID uint64

	bridge  Bridge
	logger  *logging.Logger
	metrics *monitoring.Metrics

	debounce time.Duration
	now      func() time.Time
}

// New creates a session coordinator. The identity provider is
// registered separately once the storage mode is known.
func New(bridge Bridge, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		state:         types.SessionState{Status: types.StatusUnauthenticated},
		flights:       make(map[opKind]*flight),
		lastCompleted: make(map[opKind]time.Time),
		lastResult:    make(map[opKind]bool),
		generation:    map[opKind]uint64{opInitialize: 0, opCheckAndRestore: 0},
		subs:          make(map[types.EventKind][]subscription),
		bridge:        bridge,
		logger:        logger,
		debounce:      DefaultDebounceWindow,
		now:           time.Now,
	}
}

// WithMetrics adds metrics tracking to the coordinator
func (c *Coordinator) WithMetrics(metrics *monitoring.Metrics) *Coordinator {
	c.metrics = metrics
	return c
}

// WithDebounceWindow overrides the restoration-check debounce window
func (c *Coordinator) WithDebounceWindow(d time.Duration) *Coordinator {
	c.debounce = d
	return c
}

// WithOptionalIdentity marks the active storage mode as not requiring
// an identity (pure local mode), which is trivially authenticated.
func (c *Coordinator) WithOptionalIdentity() *Coordinator {
	c.identityOptional = true
	return c
}

// RegisterProvider sets the identity provider for the active storage
// mode. Must be called before Initialize unless identity is optional.
func (c *Coordinator) RegisterProvider(p identity.Provider) {
	c.mu.Lock()
	c.provider = p
	c.mu.Unlock()
}

// Initialize performs the first reconciliation with the identity
// backend. It is idempotent: callers arriving while an initialization
// is in flight share its eventual result, and callers arriving after
// completion return immediately.
func (c *Coordinator) Initialize(ctx context.Context) error {
	start := c.now()

	c.mu.Lock()
	if c.provider == nil {
		if !c.identityOptional {
			c.mu.Unlock()
			return ErrNoProvider
		}
		// Pure local mode: trivially authenticated.
		note := c.becomeAuthenticatedLocked(nil)
		c.initialized = true
		c.mu.Unlock()
		c.deliver(note)
		return nil
	}
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	if fl := c.flights[opInitialize]; fl != nil {
		c.mu.Unlock()
		c.recordJoin(opInitialize)
		<-fl.done
		return fl.err
	}

	fl := c.startFlightLocked(opInitialize)
	c.state.Status = types.StatusInitializing
	prov := c.provider
	c.mu.Unlock()

	ident, err := prov.Initialize(ctx)

	var notes []notification
	c.mu.Lock()
	if fl.gen != c.generation[opInitialize] {
		// Superseded while in flight; outcome discarded.
		fl.restored = c.state.Status == types.StatusAuthenticated
	} else {
		c.initialized = true
		c.lastCompleted[opInitialize] = c.now()
		switch {
		case err == nil && ident != nil:
			notes = append(notes, c.becomeAuthenticatedLocked(ident))
			fl.restored = true
		case err == nil || errors.Is(err, identity.ErrSessionInvalid):
			// Missing or affirmatively invalid credentials: start
			// unauthenticated without surfacing an error.
			notes = append(notes, c.becomeUnauthenticatedLocked()...)
		default:
			notes = append(notes, c.becomeUnauthenticatedLocked()...)
			fl.err = err
			c.logger.Warn("identity initialization failed", zap.Error(err))
		}
	}
	c.finishFlightLocked(opInitialize, fl)
	c.mu.Unlock()

	c.deliver(notes...)
	close(fl.done)
	c.recordOp(opInitialize, fl.restored, start)
	return fl.err
}

// CheckAndRestore verifies that a valid session is (still) present,
// restoring it when possible. Safe to call arbitrarily often: calls
// inside the debounce window reuse the last result without I/O, and
// calls overlapping an in-flight check (or initialization) share that
// operation's outcome instead of issuing a second one.
//
// A transient provider failure resolves false without destroying a
// previously authenticated session; only an affirmative session loss
// downgrades the state.
func (c *Coordinator) CheckAndRestore(ctx context.Context) (bool, error) {
	start := c.now()

	c.mu.Lock()
	if c.provider == nil {
		if !c.identityOptional {
			c.mu.Unlock()
			return false, ErrNoProvider
		}
		authed := c.state.Status == types.StatusAuthenticated
		c.mu.Unlock()
		return authed, nil
	}

	// Restoration work started by Initialize must not be promoted
	// into a second independent restoration.
	if fl := c.flights[opInitialize]; fl != nil {
		c.mu.Unlock()
		c.recordJoin(opInitialize)
		<-fl.done
		return c.GetAuthStatus().IsAuthenticated, nil
	}
	if fl := c.flights[opCheckAndRestore]; fl != nil {
		c.mu.Unlock()
		c.recordJoin(opCheckAndRestore)
		<-fl.done
		return fl.restored, nil
	}
	if last, ok := c.lastCompleted[opCheckAndRestore]; ok && c.now().Sub(last) < c.debounce {
		res := c.lastResult[opCheckAndRestore]
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.RecordDebounceHit()
		}
		return res, nil
	}

	fl := c.startFlightLocked(opCheckAndRestore)
	wasAuthenticated := c.state.Status == types.StatusAuthenticated
	c.state.Status = types.StatusRestoring
	prov := c.provider
	c.mu.Unlock()

	status, err := prov.Status(ctx)

	var notes []notification
	c.mu.Lock()
	if fl.gen != c.generation[opCheckAndRestore] {
		// Superseded while in flight; outcome discarded.
		fl.restored = c.state.Status == types.StatusAuthenticated
	} else {
		c.lastCompleted[opCheckAndRestore] = c.now()
		switch {
		case err == nil && status.IsAuthenticated:
			notes = append(notes, c.becomeAuthenticatedLocked(identityFromStatus(prov.Kind(), status)))
			fl.restored = true
		case err == nil || errors.Is(err, identity.ErrSessionInvalid):
			// Provider affirmatively reports session loss.
			notes = append(notes, c.becomeUnauthenticatedLocked()...)
		default:
			// Transient failure: not confirmed this round, but a
			// network hiccup must not look like logout.
			if wasAuthenticated {
				c.state.Status = types.StatusAuthenticated
			} else {
				c.state.Status = types.StatusUnauthenticated
			}
			c.state.LastCheckedAt = c.now()
			c.logger.Warn("restoration check failed transiently", zap.Error(err))
		}
		c.lastResult[opCheckAndRestore] = fl.restored
	}
	c.finishFlightLocked(opCheckAndRestore, fl)
	c.mu.Unlock()

	c.deliver(notes...)
	close(fl.done)
	c.recordOp(opCheckAndRestore, fl.restored, start)
	return fl.restored, nil
}

// ReAuthenticate forcibly resets to a fresh initialization, bypassing
// the debounce window. Used after an OAuth callback, where a fresh
// check is mandatory regardless of recent activity. Any still-pending
// older operation's result is discarded on arrival.
func (c *Coordinator) ReAuthenticate(ctx context.Context) error {
	c.mu.Lock()
	if c.provider == nil && !c.identityOptional {
		c.mu.Unlock()
		return ErrNoProvider
	}
	c.bumpGenerationsLocked()
	c.initialized = false
	c.state.Status = types.StatusInitializing
	c.mu.Unlock()

	return c.Initialize(ctx)
}

// ClearAuth logs out. Local state always reaches unauthenticated and
// subscribers plus the bridge observe it before ClearAuth returns; a
// remote revoke failure is logged, never surfaced.
func (c *Coordinator) ClearAuth(ctx context.Context) {
	c.mu.Lock()
	prov := c.provider
	c.mu.Unlock()

	if prov != nil {
		if err := prov.RevokeToken(ctx); err != nil {
			c.logger.Warn("remote revoke failed during logout", zap.Error(err))
		}
	}

	c.mu.Lock()
	c.bumpGenerationsLocked()
	c.initialized = false
	c.state.Status = types.StatusUnauthenticated
	c.state.Identity = nil
	c.state.LastCheckedAt = c.now()
	event := types.EventSessionLost
	note := notification{
		event:  &event,
		status: types.AuthStatus{IsAuthenticated: false},
	}
	c.mu.Unlock()

	c.deliver(note)
}

// GetAuthStatus is a pure read of the current session state; it never
// triggers I/O. A session undergoing a restoration check still reports
// authenticated until the provider affirmatively says otherwise.
func (c *Coordinator) GetAuthStatus() types.AuthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authStatusLocked()
}

// IsOperationInProgress reports whether any coordinator operation is
// in flight, letting callers await the subscriber channel instead of
// invoking a redundant operation.
func (c *Coordinator) IsOperationInProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.flights) > 0
}

// Stats returns coordinator statistics
func (c *Coordinator) Stats() types.CoordinatorStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := 0
	for _, list := range c.subs {
		subs += len(list)
	}

	stats := types.CoordinatorStats{
		Status:      c.state.Status,
		Subscribers: subs,
		InFlightOps: len(c.flights),
	}
	if !c.state.LastCheckedAt.IsZero() {
		t := c.state.LastCheckedAt
		stats.LastCheckedAt = &t
	}
	return stats
}

// startFlightLocked creates the shared in-flight handle for kind.
// Caller must hold mu and have verified no flight exists.
func (c *Coordinator) startFlightLocked(kind opKind) *flight {
	fl := &flight{
		done: make(chan struct{}),
		gen:  c.generation[kind],
	}
	c.flights[kind] = fl
	return fl
}

// finishFlightLocked clears the in-flight handle, unless a newer
// flight of the same kind has already replaced it.
func (c *Coordinator) finishFlightLocked(kind opKind, fl *flight) {
	if c.flights[kind] == fl {
		delete(c.flights, kind)
	}
}

// bumpGenerationsLocked invalidates all in-flight operations. Their
// results are discarded on arrival rather than applied.
func (c *Coordinator) bumpGenerationsLocked() {
	for k := range c.generation {
		c.generation[k]++
	}
	c.flights = make(map[opKind]*flight)
	c.lastCompleted = make(map[opKind]time.Time)
	c.lastResult = make(map[opKind]bool)
}

func (c *Coordinator) authStatusLocked() types.AuthStatus {
	authed := c.state.Status == types.StatusAuthenticated ||
		(c.state.Status == types.StatusRestoring && c.state.Identity != nil)

	status := types.AuthStatus{IsAuthenticated: authed}
	if c.state.Identity != nil {
		ident := *c.state.Identity
		status.Identity = &ident
	}
	return status
}

// becomeAuthenticatedLocked transitions into the authenticated state
// and returns the bridge/subscriber notification to deliver once the
// critical section ends. Caller must hold mu.
func (c *Coordinator) becomeAuthenticatedLocked(ident *types.Identity) notification {
	wasAuthenticated := c.state.Identity != nil
	c.state.Status = types.StatusAuthenticated
	if ident != nil {
		c.state.Identity = ident
	}
	c.state.LastCheckedAt = c.now()

	note := notification{status: c.authStatusLocked()}
	if !wasAuthenticated {
		event := types.EventSessionRestored
		note.event = &event
	}
	return note
}

// becomeUnauthenticatedLocked transitions into the unauthenticated
// state, emitting session-lost only when an identity is actually
// destroyed. Caller must hold mu.
func (c *Coordinator) becomeUnauthenticatedLocked() []notification {
	wasAuthenticated := c.state.Identity != nil
	c.state.Status = types.StatusUnauthenticated
	c.state.Identity = nil
	c.state.LastCheckedAt = c.now()

	note := notification{status: types.AuthStatus{IsAuthenticated: false}}
	if wasAuthenticated {
		event := types.EventSessionLost
		note.event = &event
	}
	return []notification{note}
}

func (c *Coordinator) recordJoin(kind opKind) {
	if c.metrics != nil {
		c.metrics.RecordSingleFlightJoin(string(kind))
	}
}

func (c *Coordinator) recordOp(kind opKind, restored bool, start time.Time) {
	if c.metrics == nil {
		return
	}
	outcome := "unauthenticated"
	if restored {
		outcome = "authenticated"
	}
	c.metrics.RecordAuthOperation(string(kind), outcome, c.now().Sub(start))
	c.metrics.SetAuthenticated(restored)
}

// identityFromStatus builds an identity record from a provider status
// report.
func identityFromStatus(kind types.ProviderKind, st types.ProviderStatus) *types.Identity {
	return &types.Identity{
		ProviderKind: kind,
		UserRef:      st.UserRef,
		DisplayName:  st.DisplayName,
		ExpiresAt:    st.ExpiresAt,
	}
}
