package session

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hiktan44/whatsappmini-sub000/internal/model"
)

// Janitor periodically evicts abandoned sessions: expired QR waits,
// initializations nobody came back for, and connected sessions idle past
// their maximum age. Each record is handled independently; one failure
// never aborts the rest of the sweep.
type Janitor struct {
	orch     *Orchestrator
	interval time.Duration
	logger   zerolog.Logger
}

func NewJanitor(orch *Orchestrator, interval time.Duration, logger zerolog.Logger) *Janitor {
	return &Janitor{
		orch:     orch,
		interval: interval,
		logger:   logger.With().Str("component", "janitor").Logger(),
	}
}

// Run blocks until ctx is cancelled, sweeping on a fixed interval.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info().Dur("interval", j.interval).Msg("janitor started")
	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("janitor stopped")
			return
		case <-ticker.C:
			swept := j.Sweep(ctx)
			if swept > 0 {
				j.logger.Info().Int("swept", swept).Msg("stale sessions evicted")
			}
		}
	}
}

// Sweep walks every session record once and returns how many it evicted.
func (j *Janitor) Sweep(ctx context.Context) int {
	keys, err := j.orch.store.ListKeys(ctx, sessionKeyPrefix)
	if err != nil {
		j.logger.Warn().Err(err).Msg("list session keys")
		return 0
	}

	swept := 0
	for _, key := range keys {
		userID := strings.TrimPrefix(key, sessionKeyPrefix)
		if j.sweepUser(ctx, userID) {
			swept++
		}
	}
	return swept
}

func (j *Janitor) sweepUser(ctx context.Context, userID string) bool {
	unlock := j.orch.locks.lock(userID)
	defer unlock()

	rec, ok := j.orch.loadRecord(ctx, userID)
	if !ok {
		// Raced with a disconnect or TTL eviction; nothing to do.
		return false
	}

	maxAge := j.orch.cfg.PendingMaxAge
	if rec.Status == model.StatusConnected {
		maxAge = j.orch.cfg.ConnectedMaxAge
	}
	age := time.Duration(j.orch.now().UnixMilli()-rec.LastActivityAt) * time.Millisecond
	if age <= maxAge {
		return false
	}

	j.orch.clients.DestroyIfSession(userID, rec.SessionID)
	if err := j.orch.registry.Delete(ctx, rec.SessionID); err != nil {
		j.logger.Warn().Err(err).Str("userId", userID).Msg("delete qr entry")
	}
	if err := j.orch.store.Delete(ctx, j.orch.recordKey(userID)); err != nil {
		j.logger.Warn().Err(err).Str("userId", userID).Msg("delete session record")
		return false
	}
	j.logger.Info().Str("userId", userID).Str("sessionId", rec.SessionID).
		Str("status", string(rec.Status)).Dur("age", age).Msg("stale session evicted")
	return true
}
