package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hiktan44/whatsappmini-sub000/internal/config"
	"github.com/hiktan44/whatsappmini-sub000/internal/model"
	"github.com/hiktan44/whatsappmini-sub000/internal/qr"
	"github.com/hiktan44/whatsappmini-sub000/internal/store"
	"github.com/hiktan44/whatsappmini-sub000/internal/waclient"
)

const sessionKeyPrefix = "wa:session:"

const eventBuffer = 256

// Orchestrator owns the per-user session state machine. All mutation of
// the session store and QR registry flows through it, serialized per user
// so that check-then-create sequences cannot race.
type Orchestrator struct {
	store    store.Store
	registry *qr.Registry
	clients  *waclient.Manager
	cfg      config.Config
	logger   zerolog.Logger
	notifier Notifier
	now      func() time.Time

	locks  keyedLocks
	events chan model.ClientEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

type Deps struct {
	Store    store.Store
	Registry *qr.Registry
	Clients  *waclient.Manager
	Config   config.Config
	Logger   zerolog.Logger
	Notifier Notifier
	// Now overrides the clock; tests use it to drive expiry.
	Now func() time.Time
}

func NewOrchestrator(deps Deps) *Orchestrator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	o := &Orchestrator{
		store:    deps.Store,
		registry: deps.Registry,
		clients:  deps.Clients,
		cfg:      deps.Config,
		logger:   deps.Logger.With().Str("component", "orchestrator").Logger(),
		notifier: deps.Notifier,
		now:      now,
		events:   make(chan model.ClientEvent, eventBuffer),
		done:     make(chan struct{}),
	}
	o.wg.Add(1)
	go o.eventLoop()
	return o
}

// Close stops event processing. Live client handles are left to their
// owners; they do not survive the process anyway.
func (o *Orchestrator) Close() {
	close(o.done)
	o.wg.Wait()
}

// Emit queues a client event for processing. This is the callback handed
// to the browser-client factory, so event handling happens off the
// client's own goroutine and in order.
func (o *Orchestrator) Emit(ev model.ClientEvent) {
	select {
	case o.events <- ev:
	case <-o.done:
	}
}

func (o *Orchestrator) eventLoop() {
	defer o.wg.Done()
	for {
		select {
		case <-o.done:
			return
		case ev := <-o.events:
			o.Apply(ev)
		}
	}
}

// Initialize starts a session for the user, or returns the existing
// record unchanged when one is already connected. Concurrent calls for
// the same user are serialized; exactly one client handle results.
func (o *Orchestrator) Initialize(ctx context.Context, userID string) (StatusResult, error) {
	unlock := o.locks.lock(userID)
	defer unlock()

	if rec, ok := o.loadRecord(ctx, userID); ok {
		if rec.Status == model.StatusConnected {
			return o.result(ctx, rec, false), nil
		}
		if rec.Status.Live() {
			if sid, live := o.clients.SessionID(userID); live && sid == rec.SessionID {
				// An attempt is already in flight with a live handle;
				// concurrent callers piggyback on it.
				return o.result(ctx, rec, true), nil
			}
			// Live status but no matching handle: leftover from a crash
			// or superseded client. Tear down and start over.
			o.clients.Destroy(userID)
		}
		if err := o.registry.Delete(ctx, rec.SessionID); err != nil {
			o.logger.Warn().Err(err).Str("userId", userID).Msg("purge stale qr entry")
		}
	}

	nowMillis := o.now().UnixMilli()
	rec := model.SessionRecord{
		SessionID:      uuid.NewString(),
		UserID:         userID,
		Status:         model.StatusInitializing,
		CreatedAt:      nowMillis,
		LastActivityAt: nowMillis,
	}
	if err := o.saveRecord(ctx, rec); err != nil {
		return StatusResult{Status: model.StatusNoSession}, err
	}

	if err := o.clients.Create(ctx, userID, rec.SessionID, o.Emit); err != nil {
		if delErr := o.store.Delete(ctx, o.recordKey(userID)); delErr != nil {
			o.logger.Warn().Err(delErr).Str("userId", userID).Msg("rollback session record")
		}
		return StatusResult{Status: model.StatusNoSession}, fmt.Errorf("%w: %v", ErrClientInit, err)
	}

	o.armInitTimeout(userID, rec.SessionID)
	o.logger.Info().Str("userId", userID).Str("sessionId", rec.SessionID).Msg("session initializing")
	return o.result(ctx, rec, false), nil
}

// armInitTimeout schedules the hard initialization deadline: a session
// still pre-QR when it fires is force-destroyed and marked expired.
func (o *Orchestrator) armInitTimeout(userID, sessionID string) {
	time.AfterFunc(o.cfg.InitTimeout, func() {
		unlock := o.locks.lock(userID)
		defer unlock()

		ctx := context.Background()
		rec, ok := o.loadRecord(ctx, userID)
		if !ok || rec.SessionID != sessionID || rec.Status != model.StatusInitializing {
			return
		}

		o.clients.DestroyIfSession(userID, sessionID)
		rec.Status = model.StatusExpired
		rec.LastActivityAt = o.now().UnixMilli()
		rec.ErrorMessage = "initialization timed out"
		if err := o.saveRecord(ctx, rec); err != nil {
			o.logger.Error().Err(err).Str("userId", userID).Msg("persist init timeout")
			return
		}
		o.logger.Warn().Str("userId", userID).Str("sessionId", sessionID).Msg("session init timed out")
		o.notify(ctx, rec)
	})
}

// Status answers a poll. A waiting_for_scan record whose QR entry has
// lapsed is flipped to expired here rather than waiting for the janitor.
func (o *Orchestrator) Status(ctx context.Context, userID, sessionID string) (StatusResult, error) {
	unlock := o.locks.lock(userID)
	defer unlock()

	rec, ok := o.loadRecord(ctx, userID)
	if !ok {
		return StatusResult{Status: model.StatusNoSession}, nil
	}
	if sessionID != "" && sessionID != rec.SessionID {
		return StatusResult{Status: model.StatusNoSession}, nil
	}

	if rec.Status == model.StatusWaitingForScan {
		entry, err := o.registry.Get(ctx, rec.SessionID)
		if err != nil {
			o.logger.Warn().Err(err).Str("userId", userID).Msg("read qr entry")
		}
		if entry == nil {
			o.clients.DestroyIfSession(userID, rec.SessionID)
			rec.Status = model.StatusExpired
			rec.LastActivityAt = o.now().UnixMilli()
			if err := o.saveRecord(ctx, rec); err != nil {
				o.logger.Error().Err(err).Str("userId", userID).Msg("persist qr expiry")
			}
			return o.result(ctx, rec, false), nil
		}
		res := o.result(ctx, rec, false)
		res.QR = entry
		return res, nil
	}

	return o.result(ctx, rec, false), nil
}

// Disconnect tears the session down unconditionally. It is accepted in
// every state and never errors: logout/destroy failures are logged and a
// missing session is a no-op.
func (o *Orchestrator) Disconnect(ctx context.Context, userID string) (StatusResult, error) {
	unlock := o.locks.lock(userID)
	defer unlock()

	if err := o.clients.Logout(ctx, userID); err != nil {
		o.logger.Warn().Err(err).Str("userId", userID).Msg("client logout")
	}
	o.clients.Destroy(userID)

	rec, ok := o.loadRecord(ctx, userID)
	if !ok {
		return StatusResult{Status: model.StatusNoSession}, nil
	}

	if err := o.registry.Delete(ctx, rec.SessionID); err != nil {
		o.logger.Warn().Err(err).Str("userId", userID).Msg("purge qr entry")
	}

	nowMillis := o.now().UnixMilli()
	rec.Status = model.StatusDisconnected
	rec.DisconnectedAt = &nowMillis
	rec.LastActivityAt = nowMillis
	if err := o.saveRecord(ctx, rec); err != nil {
		o.logger.Error().Err(err).Str("userId", userID).Msg("persist disconnect")
	}
	o.logger.Info().Str("userId", userID).Str("sessionId", rec.SessionID).Msg("session disconnected")
	o.notify(ctx, rec)
	return o.result(ctx, rec, false), nil
}

// SimulateScan forces the user's pending session to connected without a
// real handshake. Development-only; refused unless explicitly enabled.
func (o *Orchestrator) SimulateScan(ctx context.Context, userID string) (StatusResult, error) {
	if !o.cfg.SimulateScanEnabled {
		return StatusResult{Status: model.StatusNoSession}, ErrSimulateScanDisabled
	}

	unlock := o.locks.lock(userID)
	defer unlock()

	rec, ok := o.loadRecord(ctx, userID)
	if !ok {
		return StatusResult{Status: model.StatusNoSession}, nil
	}

	base := model.ClientEvent{UserID: userID, SessionID: rec.SessionID}
	auth := base
	auth.Type = model.EventAuthenticated
	o.applyLocked(ctx, auth)
	ready := base
	ready.Type = model.EventReady
	o.applyLocked(ctx, ready)

	rec, ok = o.loadRecord(ctx, userID)
	if !ok {
		return StatusResult{Status: model.StatusNoSession}, nil
	}
	return o.result(ctx, rec, false), nil
}

// Apply runs one client event through the state machine. Events are
// idempotent against the current record: anything that does not match the
// live session or arrives out of order is dropped.
func (o *Orchestrator) Apply(ev model.ClientEvent) {
	unlock := o.locks.lock(ev.UserID)
	defer unlock()
	o.applyLocked(context.Background(), ev)
}

func (o *Orchestrator) applyLocked(ctx context.Context, ev model.ClientEvent) {
	rec, ok := o.loadRecord(ctx, ev.UserID)
	if !ok || rec.SessionID != ev.SessionID {
		o.logger.Debug().Str("userId", ev.UserID).Str("sessionId", ev.SessionID).
			Str("event", string(ev.Type)).Msg("event for unknown session dropped")
		return
	}

	nowMillis := o.now().UnixMilli()
	changed := false

	switch ev.Type {
	case model.EventQRIssued:
		// Re-issue while already waiting is normal: the underlying client
		// refreshes codes before they lapse.
		if rec.Status != model.StatusInitializing && rec.Status != model.StatusWaitingForScan {
			return
		}
		png, err := qr.Render(ev.QRPayload)
		if err != nil {
			o.logger.Error().Err(err).Str("userId", ev.UserID).Msg("render qr")
			return
		}
		if _, err := o.registry.Put(ctx, rec.SessionID, ev.QRPayload, png, o.cfg.QRTTL); err != nil {
			o.logger.Error().Err(err).Str("userId", ev.UserID).Msg("store qr")
			return
		}
		rec.Status = model.StatusWaitingForScan
		changed = true

	case model.EventAuthenticated:
		if rec.Status != model.StatusWaitingForScan && rec.Status != model.StatusInitializing {
			return
		}
		rec.Status = model.StatusAuthenticated
		changed = true

	case model.EventReady:
		if rec.Status == model.StatusConnected {
			return
		}
		if !rec.Status.Live() {
			return
		}
		rec.Status = model.StatusConnected
		rec.ConnectedAt = &nowMillis
		rec.ErrorMessage = ""
		if err := o.registry.Delete(ctx, rec.SessionID); err != nil {
			o.logger.Warn().Err(err).Str("userId", ev.UserID).Msg("clear qr on connect")
		}
		changed = true

	case model.EventAuthFailed:
		if !rec.Status.Live() {
			return
		}
		rec.Status = model.StatusAuthFailed
		rec.ErrorMessage = ev.Error
		if err := o.registry.Delete(ctx, rec.SessionID); err != nil {
			o.logger.Warn().Err(err).Str("userId", ev.UserID).Msg("clear qr on auth failure")
		}
		o.clients.DestroyIfSession(ev.UserID, ev.SessionID)
		changed = true

	case model.EventDisconnected:
		if !rec.Status.Live() {
			return
		}
		rec.Status = model.StatusDisconnected
		rec.DisconnectedAt = &nowMillis
		if err := o.registry.Delete(ctx, rec.SessionID); err != nil {
			o.logger.Warn().Err(err).Str("userId", ev.UserID).Msg("clear qr on disconnect")
		}
		o.clients.DestroyIfSession(ev.UserID, ev.SessionID)
		changed = true

	default:
		o.logger.Warn().Str("event", string(ev.Type)).Msg("unknown client event")
		return
	}

	if !changed {
		return
	}

	rec.LastActivityAt = nowMillis
	if err := o.saveRecord(ctx, rec); err != nil {
		o.logger.Error().Err(err).Str("userId", ev.UserID).Str("event", string(ev.Type)).
			Msg("persist transition")
		return
	}
	o.logger.Info().Str("userId", ev.UserID).Str("sessionId", rec.SessionID).
		Str("status", string(rec.Status)).Msg("session transition")
	o.notify(ctx, rec)
}

// Counts reports the number of tracked session records and live client
// handles, for the health endpoint.
func (o *Orchestrator) Counts(ctx context.Context) (sessions, clients int) {
	keys, err := o.store.ListKeys(ctx, sessionKeyPrefix)
	if err != nil {
		o.logger.Warn().Err(err).Msg("count sessions")
	}
	return len(keys), o.clients.Count()
}

func (o *Orchestrator) recordKey(userID string) string {
	return sessionKeyPrefix + userID
}

func (o *Orchestrator) loadRecord(ctx context.Context, userID string) (model.SessionRecord, bool) {
	data, ok, err := o.store.Get(ctx, o.recordKey(userID))
	if err != nil {
		o.logger.Warn().Err(err).Str("userId", userID).Msg("read session record")
		return model.SessionRecord{}, false
	}
	if !ok {
		return model.SessionRecord{}, false
	}
	var rec model.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		o.logger.Error().Err(err).Str("userId", userID).Msg("corrupt session record dropped")
		_ = o.store.Delete(ctx, o.recordKey(userID))
		return model.SessionRecord{}, false
	}
	return rec, true
}

// saveRecord persists the record with a TTL matching its status: a
// connected session genuinely persists, anything pre-connection is
// worthless once abandoned.
func (o *Orchestrator) saveRecord(ctx context.Context, rec model.SessionRecord) error {
	ttl := o.cfg.PendingTTL
	if rec.Status == model.StatusConnected {
		ttl = o.cfg.ConnectedTTL
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	if err := o.store.Set(ctx, o.recordKey(rec.UserID), data, ttl); err != nil {
		return fmt.Errorf("store session record: %w", err)
	}
	return nil
}

func (o *Orchestrator) result(ctx context.Context, rec model.SessionRecord, includeQR bool) StatusResult {
	res := StatusResult{
		SessionID:      rec.SessionID,
		Status:         rec.Status,
		ConnectedAt:    rec.ConnectedAt,
		DisconnectedAt: rec.DisconnectedAt,
		ErrorMessage:   rec.ErrorMessage,
	}
	if includeQR && rec.Status == model.StatusWaitingForScan {
		if entry, err := o.registry.Get(ctx, rec.SessionID); err == nil {
			res.QR = entry
		}
	}
	return res
}

func (o *Orchestrator) notify(ctx context.Context, rec model.SessionRecord) {
	if o.notifier == nil {
		return
	}
	o.notifier.SessionUpdated(rec.UserID, o.result(ctx, rec, true))
}

// keyedLocks serializes operations per user id.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *keyedLocks) lock(key string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
