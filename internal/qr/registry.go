// Package qr holds the short-lived registry of pending QR codes and the
// payload-to-image rendering.
package qr

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/hiktan44/whatsappmini-sub000/internal/model"
	"github.com/hiktan44/whatsappmini-sub000/internal/store"
)

const keyPrefix = "wa:qr:"

const imageSize = 256

// Render encodes a scan payload into a PNG image.
func Render(payload string) ([]byte, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, imageSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr payload: %w", err)
	}
	return png, nil
}

// Registry caches one pending QREntry per session id. Entries past their
// ExpiresAt are treated as absent even before the backing store drops
// them, so callers never observe a stale code.
type Registry struct {
	store store.Store
	now   func() time.Time
}

func NewRegistry(st store.Store) *Registry {
	return NewRegistryWithNow(st, time.Now)
}

func NewRegistryWithNow(st store.Store, now func() time.Time) *Registry {
	return &Registry{store: st, now: now}
}

func (r *Registry) Put(ctx context.Context, sessionID, payload string, png []byte, ttl time.Duration) (model.QREntry, error) {
	now := r.now()
	entry := model.QREntry{
		SessionID: sessionID,
		Payload:   payload,
		ImagePNG:  png,
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return model.QREntry{}, fmt.Errorf("marshal qr entry: %w", err)
	}
	if err := r.store.Set(ctx, keyPrefix+sessionID, data, ttl); err != nil {
		return model.QREntry{}, fmt.Errorf("store qr entry: %w", err)
	}
	return entry, nil
}

// Get returns the pending entry for a session, or nil if there is none or
// it has expired.
func (r *Registry) Get(ctx context.Context, sessionID string) (*model.QREntry, error) {
	data, ok, err := r.store.Get(ctx, keyPrefix+sessionID)
	if err != nil {
		return nil, fmt.Errorf("read qr entry: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var entry model.QREntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode qr entry: %w", err)
	}
	if r.now().UnixMilli() > entry.ExpiresAt {
		_ = r.store.Delete(ctx, keyPrefix+sessionID)
		return nil, nil
	}
	return &entry, nil
}

func (r *Registry) Delete(ctx context.Context, sessionID string) error {
	return r.store.Delete(ctx, keyPrefix+sessionID)
}
