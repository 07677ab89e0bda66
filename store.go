package sessionkit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aification/sessionkit/api"
	"github.com/aification/sessionkit/storage"
	"github.com/aification/sessionkit/token"
)

// SessionStore holds the authenticated-user view of one execution context, derived
// from the bearer token kept in storage.
//
// Every hydration takes a sequence number when it starts; only the hydration holding
// the latest number may change the view, so overlapping triggers settle on the result
// of the one started last. SignOut takes a number too, which discards every hydration
// still in flight.
//
// SessionStore is safe for concurrent use. Build it once with New and share it.
type SessionStore struct {
	storage    storage.Storage
	watcher    storage.Watcher
	profiles   ProfileFetcher
	visibility VisibilitySource
	navigator  Navigator
	inspector  *token.Inspector
	metrics    *Metrics
	events     *eventDispatcher
	logger     *zap.Logger
	rootURL    string

	mu        sync.Mutex
	user      *User
	userToken string // token whose profile produced user
	status    Status
	seq       uint64
	subs      map[uint64]func(Snapshot)
	nextID    uint64
	closed    bool
	cancel    context.CancelFunc

	wg sync.WaitGroup
}

type hydrateOutcome uint8

// hydrateResult is what a hydration learned. tokenRead is false when it was abandoned
// before the stored token could be read.
type hydrateResult struct {
	outcome   hydrateOutcome
	user      *User
	token     string
	tokenRead bool
}

const (
	outcomeSuccess hydrateOutcome = iota
	outcomeFailure
	outcomeNoToken
	outcomeAbandoned
)

func (o hydrateOutcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeFailure:
		return "failure"
	case outcomeNoToken:
		return "no_token"
	case outcomeAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

/*
====================================
READ ACCESS
====================================
*/

// Snapshot returns the current view.
func (s *SessionStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// User returns the signed-in user, or nil.
func (s *SessionStore) User() *User {
	return s.Snapshot().User
}

// Status returns the hydration status.
func (s *SessionStore) Status() Status {
	return s.Snapshot().Status
}

// Subscribe registers fn to receive every view change. fn runs on the goroutine that
// made the change and must not block; snapshots from concurrent changes may arrive out
// of order, so compare Seq when order matters. The returned func unregisters fn.
func (s *SessionStore) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// MetricsSnapshot returns a copy of the store's counters.
func (s *SessionStore) MetricsSnapshot() MetricsSnapshot {
	if s == nil || s.metrics == nil {
		return MetricsSnapshot{
			Counters:      map[MetricID]uint64{},
			Histograms:    map[MetricID][]uint64{},
			HistogramSums: map[MetricID]time.Duration{},
		}
	}
	return s.metrics.Snapshot()
}

/*
====================================
HYDRATE
====================================
*/

// Hydrate re-derives the user from the stored token and returns the view once this call
// has settled.
//
// The canonical key is read first and the legacy key is the fallback. With no token the
// user is cleared without a network call. Otherwise the profile endpoint decides: success
// sets the user, any failure clears it and removes both keys. Failures are never
// returned; they collapse to the signed-out view.
//
// When ctx ends before the profile arrives the result is abandoned: status becomes Ready
// and the stored token is left as it was. The user survives only if it was derived from
// the token this call read; a token that changed since leaves the view signed out until
// the next hydration.
func (s *SessionStore) Hydrate(ctx context.Context) Snapshot {
	start := time.Now()
	seq := s.begin()
	s.metrics.Inc(MetricHydrateStarted)

	tok, found, err := s.readToken(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return s.settle(seq, start, hydrateResult{outcome: outcomeAbandoned})
		}
		s.logger.Warn("session: token storage read failed", zap.Uint64("seq", seq), zap.Error(err))
		return s.settle(seq, start, hydrateResult{outcome: outcomeNoToken, tokenRead: true})
	}
	if !found {
		return s.settle(seq, start, hydrateResult{outcome: outcomeNoToken, tokenRead: true})
	}

	if s.inspector != nil && s.inspector.Expired(tok) {
		s.metrics.Inc(MetricExpiredToken)
		s.logger.Debug("session: stored token expired locally", zap.Uint64("seq", seq))
		s.discardToken(ctx, seq, tok)
		return s.settle(seq, start, hydrateResult{outcome: outcomeFailure, tokenRead: true})
	}

	profile, err := s.profiles.Me(ctx, tok)
	if err != nil {
		if ctx.Err() != nil {
			return s.settle(seq, start, hydrateResult{outcome: outcomeAbandoned, token: tok, tokenRead: true})
		}
		s.logFailure(seq, err)
		s.discardToken(ctx, seq, tok)
		return s.settle(seq, start, hydrateResult{outcome: outcomeFailure, tokenRead: true})
	}

	return s.settle(seq, start, hydrateResult{
		outcome:   outcomeSuccess,
		user:      &User{Email: profile.Email, AuthMethod: profile.Auth},
		token:     tok,
		tokenRead: true,
	})
}

func (s *SessionStore) begin() uint64 {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.status = StatusLoading
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return seq
}

func (s *SessionStore) readToken(ctx context.Context) (string, bool, error) {
	v, ok, err := s.storage.Get(ctx, storage.CanonicalTokenKey)
	if err != nil {
		return "", false, err
	}
	if ok && v != "" {
		return v, true, nil
	}
	v, ok, err = s.storage.Get(ctx, storage.LegacyTokenKey)
	if err != nil {
		return "", false, err
	}
	return v, ok && v != "", nil
}

// discardToken removes both keys after a failed hydration. The removal is skipped when a
// newer hydration or sign-out has started, and when the canonical key now holds a
// different token, so a stale rejection never erases a newer sign-in.
//
// Backends implementing storage.ConditionalRemover check and remove in one step. For
// the others a sign-in landing between the Get and the Remove below is erased; the
// signed-in context notices on its next hydration.
func (s *SessionStore) discardToken(ctx context.Context, seq uint64, failed string) {
	if !s.isCurrent(seq) {
		return
	}
	if cr, ok := s.storage.(storage.ConditionalRemover); ok {
		removed, err := cr.RemoveIf(ctx, storage.CanonicalTokenKey, failed, storage.LegacyTokenKey)
		switch {
		case err != nil:
			s.logger.Warn("session: token removal failed", zap.Uint64("seq", seq), zap.Error(err))
		case !removed:
			s.logger.Debug("session: canonical token replaced, keeping storage", zap.Uint64("seq", seq))
		}
		return
	}

	current, ok, err := s.storage.Get(ctx, storage.CanonicalTokenKey)
	if err != nil {
		s.logger.Warn("session: token storage read failed", zap.Uint64("seq", seq), zap.Error(err))
		return
	}
	if ok && current != failed {
		s.logger.Debug("session: canonical token replaced, keeping storage", zap.Uint64("seq", seq))
		return
	}
	if err := s.storage.Remove(ctx, storage.CanonicalTokenKey, storage.LegacyTokenKey); err != nil {
		s.logger.Warn("session: token removal failed", zap.Uint64("seq", seq), zap.Error(err))
	}
}

func (s *SessionStore) settle(seq uint64, start time.Time, res hydrateResult) Snapshot {
	outcome, user := res.outcome, res.user

	s.mu.Lock()
	if seq != s.seq {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.metrics.Inc(MetricHydrateStale)
		s.logger.Debug("session: discarding stale hydration",
			zap.Uint64("seq", seq),
			zap.Uint64("latest", snap.Seq),
			zap.Stringer("outcome", outcome),
		)
		return snap
	}
	switch {
	case outcome != outcomeAbandoned:
		s.user, s.userToken = user, res.token
	case res.tokenRead && res.token != s.userToken:
		s.user, s.userToken = nil, ""
	}
	s.status = StatusReady
	snap := s.snapshotLocked()
	s.mu.Unlock()

	switch outcome {
	case outcomeSuccess:
		s.metrics.Inc(MetricHydrateSuccess)
	case outcomeFailure:
		s.metrics.Inc(MetricHydrateFailure)
	case outcomeNoToken:
		s.metrics.Inc(MetricHydrateNoToken)
	case outcomeAbandoned:
		s.metrics.Inc(MetricHydrateAbandoned)
	}
	s.metrics.Observe(MetricHydrateLatency, time.Since(start))

	fields := []zap.Field{
		zap.Uint64("seq", seq),
		zap.Stringer("outcome", outcome),
		zap.Duration("elapsed", time.Since(start)),
	}
	if user != nil {
		fields = append(fields, zap.String("auth", user.AuthMethod))
	}
	s.logger.Debug("session: hydrated", fields...)

	event := SessionEvent{
		EventType: EventHydrated,
		Seq:       seq,
		Success:   outcome == outcomeSuccess,
		Metadata:  map[string]string{"outcome": outcome.String()},
	}
	if user != nil {
		event.Email = user.Email
		event.AuthMethod = user.AuthMethod
	}
	s.emit(event)

	s.notify(snap)
	return snap
}

func (s *SessionStore) logFailure(seq uint64, err error) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		s.logger.Info("session: token rejected",
			zap.Uint64("seq", seq),
			zap.Int("status", apiErr.StatusCode),
		)
		return
	}
	s.logger.Warn("session: profile request failed", zap.Uint64("seq", seq), zap.Error(err))
}

/*
====================================
SIGN IN / SIGN OUT
====================================
*/

// SignIn persists tok under the canonical key, drops any legacy copy and hydrates.
// Only storage failures and an empty token are returned; a rejected token shows up as a
// signed-out snapshot.
func (s *SessionStore) SignIn(ctx context.Context, tok string) (Snapshot, error) {
	if tok == "" {
		return s.Snapshot(), ErrEmptyToken
	}
	if err := s.storage.Set(ctx, storage.CanonicalTokenKey, tok); err != nil {
		return s.Snapshot(), fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	if err := s.storage.Remove(ctx, storage.LegacyTokenKey); err != nil {
		s.logger.Warn("session: legacy token removal failed", zap.Error(err))
	}
	s.metrics.Inc(MetricSignIn)

	snap := s.Hydrate(ctx)
	event := SessionEvent{EventType: EventSignedIn, Seq: snap.Seq, Success: snap.SignedIn()}
	if snap.User != nil {
		event.Email = snap.User.Email
		event.AuthMethod = snap.User.AuthMethod
	}
	s.emit(event)
	return snap, nil
}

// SignOut removes both token keys, clears the user and navigates to the root, all before
// returning. Hydrations still in flight are discarded, including any that read the token
// before it was removed. A storage error is returned after the view has been cleared
// and the navigation issued.
func (s *SessionStore) SignOut(ctx context.Context) error {
	err := s.storage.Remove(ctx, storage.CanonicalTokenKey, storage.LegacyTokenKey)

	s.mu.Lock()
	s.seq++
	s.user = nil
	s.userToken = ""
	s.status = StatusReady
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	s.metrics.Inc(MetricSignOut)
	s.logger.Info("session: signed out", zap.Uint64("seq", snap.Seq))

	event := SessionEvent{EventType: EventSignedOut, Seq: snap.Seq, Success: err == nil}
	if err != nil {
		event.Error = err.Error()
	}
	s.emit(event)

	s.navigator.Replace(s.rootURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}

/*
====================================
EXTERNAL CHANGES
====================================
*/

// SubscribeToExternalChanges starts the passive listeners: a token-key change made by
// another execution context triggers one Hydrate, and so does every transition to
// visible. Listeners run until ctx ends or Close is called. Calling it again while the
// listeners run is a no-op.
func (s *SessionStore) SubscribeToExternalChanges(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	lctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	var (
		changes <-chan storage.Change
		visible <-chan Visibility
		err     error
	)
	if s.watcher != nil {
		if changes, err = s.watcher.Watch(lctx); err != nil {
			s.abortListeners(cancel)
			return fmt.Errorf("%w: storage: %v", ErrWatchUnavailable, err)
		}
	}
	if s.visibility != nil {
		if visible, err = s.visibility.WatchVisibility(lctx); err != nil {
			s.abortListeners(cancel)
			return fmt.Errorf("%w: visibility: %v", ErrWatchUnavailable, err)
		}
	}

	if changes != nil {
		s.wg.Add(1)
		go s.listenStorage(lctx, changes)
	}
	if visible != nil {
		s.wg.Add(1)
		go s.listenVisibility(lctx, visible)
	}
	s.logger.Debug("session: external change listeners started",
		zap.Bool("storage", changes != nil),
		zap.Bool("visibility", visible != nil),
	)
	return nil
}

func (s *SessionStore) abortListeners(cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()
}

func (s *SessionStore) listenStorage(ctx context.Context, changes <-chan storage.Change) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if !storage.IsTokenKey(change.Key) {
				continue
			}
			s.metrics.Inc(MetricStorageTrigger)
			s.logger.Debug("session: token changed in another context",
				zap.String("key", change.Key),
				zap.String("origin", change.Origin),
			)
			s.emit(SessionEvent{
				EventType: EventExternalChange,
				Success:   true,
				Metadata:  map[string]string{"key": change.Key, "origin": change.Origin},
			})
			s.Hydrate(ctx)
		}
	}
}

func (s *SessionStore) listenVisibility(ctx context.Context, visible <-chan Visibility) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-visible:
			if !ok {
				return
			}
			if v != VisibilityVisible {
				continue
			}
			s.metrics.Inc(MetricVisibilityTrigger)
			s.emit(SessionEvent{EventType: EventVisibilityChanged, Success: true})
			s.Hydrate(ctx)
		}
	}
}

// Close stops the external-change listeners, flushes queued session events and waits
// for the listeners to exit. A hydration the listeners started is abandoned. Close is
// idempotent.
func (s *SessionStore) Close() error {
	s.mu.Lock()
	s.closed = true
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	// Closing events first releases a listener blocked on a full queue.
	s.events.Close()
	s.wg.Wait()
	return nil
}

// EventsDropped returns how many session events were lost to a full queue or to a sink
// that did not drain before Close gave up.
func (s *SessionStore) EventsDropped() uint64 {
	return s.events.Dropped()
}

// EventsSuperseded returns how many hydrated or signed_out events were skipped because
// an event for a newer sequence number had already been queued.
func (s *SessionStore) EventsSuperseded() uint64 {
	return s.events.Superseded()
}

func (s *SessionStore) emit(event SessionEvent) {
	s.events.Emit(event)
}

func (s *SessionStore) isCurrent(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seq == s.seq
}

func (s *SessionStore) snapshotLocked() Snapshot {
	snap := Snapshot{Status: s.status, Seq: s.seq}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

func (s *SessionStore) notify(snap Snapshot) {
	s.mu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
