package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kurun/runcheck/internal/metrics"
)

// errEmptyAccessToken is reported when a refresh succeeds at the HTTP level but
// carries no token.
var errEmptyAccessToken = errors.New("refresh response has no access token")

const flightKey = "refresh"

// Manager owns the session state. It is the only writer of the credential
// store keys it uses. Store reads go to the store while it is available, so
// several processes sharing one store observe each other's logins and logouts;
// without a store the in-memory state is authoritative.
//
// Subscriber callbacks run synchronously and must not call back into the
// Manager. A Scheduler must not invoke its callback before returning.
type Manager struct {
	store     Store
	refresher Refresher
	logger    Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	schedule  Scheduler

	defaultExpiresIn time.Duration
	expiryBuffer     time.Duration
	refreshLead      time.Duration
	refreshTimeout   time.Duration
	rearmOnStartup   bool

	mu       sync.Mutex
	idle     *sync.Cond
	state    State
	gen      uint64 // bumped by login and logout
	seq      uint64 // bumped on every state commit
	timer    Timer
	timerSeq uint64
	timerAt  time.Time
	running  int
	closed   bool

	flight singleflight.Group

	subMu   sync.Mutex
	subs    map[uint64]*subscriber
	nextSub uint64
}

type subscriber struct {
	fn  func(State)
	seq uint64
}

type snapshot struct {
	seq   uint64
	state State
}

// New creates a Manager. A nil store selects a store that is never available.
// Call Init to load persisted credentials.
func New(store Store, refresher Refresher, opts ...Option) *Manager {
	if store == nil {
		store = nopStore{}
	}

	m := &Manager{
		store:            store,
		refresher:        refresher,
		logger:           nopLogger{},
		now:              time.Now,
		schedule:         afterFunc,
		defaultExpiresIn: DefaultExpiresIn,
		expiryBuffer:     DefaultExpiryBuffer,
		refreshLead:      DefaultRefreshLead,
		refreshTimeout:   DefaultRefreshTimeout,
		rearmOnStartup:   true,
		subs:             make(map[uint64]*subscriber),
	}
	m.idle = sync.NewCond(&m.mu)

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Init rehydrates the session from the store. An access token that is expired,
// lacks an expiry or lacks a readable user profile is removed together with its
// expiry and profile; the refresh token is kept.
func (m *Manager) Init() {
	m.mu.Lock()
	m.state = m.rehydrateLocked()
	if m.state.IsAuthenticated() && m.rearmOnStartup {
		m.armLocked(m.state.TokenExpiry)
	}
	snap := m.commitLocked()
	m.mu.Unlock()

	m.publish(snap)
}

func (m *Manager) rehydrateLocked() State {
	if !m.store.Available() {
		return State{}
	}

	access, _ := m.store.Get(KeyAccessToken)
	refresh, _ := m.store.Get(KeyRefreshToken)
	st := State{RefreshToken: refresh}
	if access == "" {
		return st
	}

	expiry := m.readExpiryLocked()
	user := m.readUserLocked()
	if expiry.IsZero() || m.expired(expiry) || user == nil {
		m.logger.Debug("session: stored access token is no longer usable, discarding")
		m.removeLocked(KeyAccessToken, KeyTokenExpiry, KeyUserInfo)
		return st
	}

	st.AccessToken = access
	st.TokenExpiry = expiry
	st.User = user
	return st
}

// Login stores the credentials from a login response and arms the refresh timer.
// A response without an access token is ignored.
func (m *Manager) Login(resp LoginResponse) {
	if resp.AccessToken == "" {
		m.logger.Error("session: login response has no access token, ignoring")
		return
	}

	m.mu.Lock()
	m.gen++
	st := State{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenExpiry:  m.expiryFor(resp.ExpiresIn),
		User:         resp.Profile(),
	}
	m.writeTokenLocked(st)
	m.writeUserLocked(st.User)
	if st.RefreshToken != "" {
		m.setLocked(KeyRefreshToken, st.RefreshToken)
	} else {
		m.removeLocked(KeyRefreshToken)
	}
	m.state = st
	m.armLocked(st.TokenExpiry)
	snap := m.commitLocked()
	m.mu.Unlock()

	m.metrics.RecordLogin()
	m.logger.Debug("session: logged in user %d, token expires %s", st.User.ID, st.TokenExpiry.Format(time.RFC3339))
	m.publish(snap)
}

// Logout cancels the refresh timer, removes every session key from the store
// and resets the state. Calling it with nothing to clear is a no-op.
func (m *Manager) Logout() {
	m.mu.Lock()
	changed := m.logoutLocked()
	snap := m.commitLocked()
	m.mu.Unlock()

	if changed {
		m.metrics.RecordLogout()
		m.logger.Debug("session: logged out")
		m.publish(snap)
	}
}

func (m *Manager) logoutLocked() bool {
	m.gen++
	m.disarmLocked()
	m.removeLocked(Keys...)

	changed := m.state.IsAuthenticated() || m.state.HasRefreshToken() || m.state.User != nil
	m.state = State{}
	return changed
}

// logoutIf logs out only if no login or logout happened since gen was read.
func (m *Manager) logoutIf(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	changed := m.logoutLocked()
	snap := m.commitLocked()
	m.mu.Unlock()

	if changed {
		m.metrics.RecordLogout()
		m.publish(snap)
	}
}

// RefreshAccessToken exchanges the stored refresh token for a new access token.
// Concurrent callers share a single network call and its result. On failure the
// session is logged out and false is returned. If the session was replaced while
// the call was in flight the result is discarded and the return value reports
// whether the replacing session is authenticated.
//
// ctx only bounds how long the caller waits; the shared call runs to completion
// under its own timeout so a cancelled waiter does not log everyone out.
func (m *Manager) RefreshAccessToken(ctx context.Context) bool {
	ch := m.flight.DoChan(flightKey, func() (any, error) {
		return m.refresh(), nil
	})

	select {
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok
	case <-ctx.Done():
		return false
	}
}

//nolint:gocyclo // Sequential outcome handling for one refresh round trip
func (m *Manager) refresh() bool {
	m.mu.Lock()
	gen := m.gen
	token := m.refreshTokenLocked()
	m.mu.Unlock()

	if token == "" || m.refresher == nil {
		m.logger.Error("session: no refresh token available")
		m.metrics.RecordRefresh(metrics.OutcomeFailure, 0)
		m.logoutIf(gen)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
	defer cancel()

	start := time.Now()
	resp, err := m.refresher.Refresh(ctx, token)
	elapsed := time.Since(start)
	if err == nil && (resp == nil || resp.AccessToken == "") {
		err = errEmptyAccessToken
	}

	m.mu.Lock()
	if gen != m.gen {
		authenticated := m.state.IsAuthenticated()
		m.mu.Unlock()
		m.logger.Debug("session: session changed during refresh, discarding result")
		m.metrics.RecordRefresh(metrics.OutcomeDiscarded, elapsed)
		return authenticated
	}

	if err != nil {
		changed := m.logoutLocked()
		snap := m.commitLocked()
		m.mu.Unlock()

		m.logger.Error("session: token refresh failed: %v", err)
		m.metrics.RecordRefresh(metrics.OutcomeFailure, elapsed)
		if changed {
			m.metrics.RecordLogout()
			m.publish(snap)
		}
		return false
	}

	st := m.state.clone()
	st.AccessToken = resp.AccessToken
	st.TokenExpiry = m.expiryFor(resp.ExpiresIn)
	st.User = m.userAfterRefresh(resp, st.User)
	if st.RefreshToken == "" {
		st.RefreshToken = token
	}
	if resp.RefreshToken != "" {
		st.RefreshToken = resp.RefreshToken
		m.setLocked(KeyRefreshToken, resp.RefreshToken)
	}
	m.writeTokenLocked(st)
	m.writeUserLocked(st.User)
	m.state = st
	m.armLocked(st.TokenExpiry)
	snap := m.commitLocked()
	m.mu.Unlock()

	m.metrics.RecordRefresh(metrics.OutcomeSuccess, elapsed)
	m.logger.Debug("session: token refreshed, expires %s", st.TokenExpiry.Format(time.RFC3339))
	m.publish(snap)
	return true
}

// userAfterRefresh keeps the invariant that an authenticated state has a user.
// A rehydrated session may hold only a refresh token, so the profile comes from
// the response, the current state or the token claims, in that order.
func (m *Manager) userAfterRefresh(resp *TokenResponse, current *UserProfile) *UserProfile {
	if u := resp.profile(); u != nil {
		return u
	}
	if current != nil {
		return current
	}
	if u := profileFromToken(resp.AccessToken); u != nil {
		return u
	}
	m.logger.Debug("session: refreshed token carries no identity claims")
	return &UserProfile{}
}

// CheckTokenValidity reports whether a usable access token is held. A token is
// unusable once the clock reaches its expiry minus the expiry buffer; in that
// case a refresh is started in the background and false is returned at once.
func (m *Manager) CheckTokenValidity() bool {
	m.mu.Lock()
	access, expiry := m.tokenLocked()
	if access == "" || expiry.IsZero() {
		m.mu.Unlock()
		return false
	}
	if !m.expired(expiry) {
		m.mu.Unlock()
		return true
	}
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.running++
	m.mu.Unlock()

	m.logger.Debug("session: token expired or about to expire, refreshing")
	go func() {
		defer m.done()
		m.RefreshAccessToken(context.Background())
	}()
	return false
}

// State returns a copy of the current in-memory state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// AccessToken returns the current bearer token, or "" when unauthenticated.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	access, _ := m.tokenLocked()
	return access
}

// NextRefresh returns when the armed refresh timer fires.
func (m *Manager) NextRefresh() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timerAt, !m.timerAt.IsZero()
}

// Subscribe registers fn for state changes. fn is called immediately with the
// current state and then after every transition. The returned function removes
// the subscription.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	m.mu.Lock()
	snap := snapshot{seq: m.seq, state: m.state.clone()}
	m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = &subscriber{fn: fn, seq: snap.seq}
	fn(snap.state)

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

// Wait blocks until refreshes started in the background have finished.
func (m *Manager) Wait() {
	m.mu.Lock()
	for m.running > 0 {
		m.idle.Wait()
	}
	m.mu.Unlock()
}

// Close cancels the refresh timer, stops scheduling new background refreshes
// and waits for running ones. Stored credentials are left in place.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.disarmLocked()
	for m.running > 0 {
		m.idle.Wait()
	}
	m.mu.Unlock()
}

func (m *Manager) done() {
	m.mu.Lock()
	m.running--
	if m.running == 0 {
		m.idle.Broadcast()
	}
	m.mu.Unlock()
}

// armLocked replaces any pending timer with one firing refreshLead before expiry.
// Nothing is armed when that instant has already passed.
func (m *Manager) armLocked(expiry time.Time) {
	m.disarmLocked()
	if m.closed {
		return
	}

	now := m.now()
	delay := expiry.Sub(now) - m.refreshLead
	if delay <= 0 {
		m.logger.Debug("session: token expires within the refresh lead, no timer armed")
		return
	}

	seq := m.timerSeq
	m.timerAt = now.Add(delay)
	m.timer = m.schedule(delay, func() { m.fire(seq) })
}

func (m *Manager) disarmLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
	m.timerAt = time.Time{}
}

// fire runs the scheduled refresh unless the timer was superseded.
func (m *Manager) fire(seq uint64) {
	m.mu.Lock()
	if m.closed || seq != m.timerSeq {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.timerAt = time.Time{}
	m.running++
	m.mu.Unlock()

	defer m.done()
	m.logger.Debug("session: scheduled refresh")
	m.RefreshAccessToken(context.Background())
}

func (m *Manager) commitLocked() snapshot {
	m.seq++
	return snapshot{seq: m.seq, state: m.state.clone()}
}

// publish delivers snap to subscribers that have not seen a newer state.
func (m *Manager) publish(snap snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for _, sub := range m.subs {
		if snap.seq <= sub.seq {
			continue
		}
		sub.seq = snap.seq
		sub.fn(snap.state.clone())
	}
}

func (m *Manager) expired(expiry time.Time) bool {
	return !m.now().Before(expiry.Add(-m.expiryBuffer))
}

func (m *Manager) expiryFor(expiresIn int64) time.Time {
	d := time.Duration(expiresIn) * time.Second
	if expiresIn <= 0 {
		d = m.defaultExpiresIn
	}
	return m.now().Add(d)
}

func (m *Manager) tokenLocked() (string, time.Time) {
	if !m.store.Available() {
		return m.state.AccessToken, m.state.TokenExpiry
	}
	access, _ := m.store.Get(KeyAccessToken)
	return access, m.readExpiryLocked()
}

func (m *Manager) refreshTokenLocked() string {
	if !m.store.Available() {
		return m.state.RefreshToken
	}
	token, _ := m.store.Get(KeyRefreshToken)
	return token
}

func (m *Manager) readExpiryLocked() time.Time {
	raw, ok := m.store.Get(KeyTokenExpiry)
	if !ok || raw == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.logger.Error("session: stored token expiry %q is not a number", raw)
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (m *Manager) readUserLocked() *UserProfile {
	raw, ok := m.store.Get(KeyUserInfo)
	if !ok || raw == "" {
		return nil
	}
	var u UserProfile
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		m.logger.Error("session: stored user info is corrupted: %v", err)
		return nil
	}
	return &u
}

func (m *Manager) writeTokenLocked(st State) {
	m.setLocked(KeyAccessToken, st.AccessToken)
	m.setLocked(KeyTokenExpiry, strconv.FormatInt(st.TokenExpiry.UnixMilli(), 10))
}

func (m *Manager) writeUserLocked(u *UserProfile) {
	if u == nil {
		m.removeLocked(KeyUserInfo)
		return
	}
	data, err := json.Marshal(u)
	if err != nil {
		m.logger.Error("session: encoding user info: %v", err)
		return
	}
	m.setLocked(KeyUserInfo, string(data))
}

func (m *Manager) setLocked(key, value string) {
	if !m.store.Available() {
		return
	}
	if err := m.store.Set(key, value); err != nil {
		m.logger.Error("session: storing %s: %v", key, err)
		m.metrics.RecordStoreError("set")
	}
}

func (m *Manager) removeLocked(keys ...string) {
	if !m.store.Available() {
		return
	}
	for _, key := range keys {
		if err := m.store.Remove(key); err != nil {
			m.logger.Error("session: removing %s: %v", key, err)
			m.metrics.RecordStoreError("remove")
		}
	}
}
