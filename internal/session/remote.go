package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hiktan44/whatsappmini-sub000/internal/auth"
)

// errPeerUnavailable marks failures that mean the peer could not answer
// at all, as opposed to a peer that answered with a rejection.
var errPeerUnavailable = errors.New("peer unavailable")

// Delegate forwards session operations to a peer instance that shares the
// master secret, minting a token for the acting user per request. When
// the peer is unreachable the call is served by the local fallback
// instead of failing.
type Delegate struct {
	baseURL  string
	client   *http.Client
	tokenCfg auth.TokenConfig
	fallback Service
	logger   zerolog.Logger
}

func NewDelegate(baseURL string, tokenCfg auth.TokenConfig, fallback Service, logger zerolog.Logger) *Delegate {
	return &Delegate{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
		tokenCfg: tokenCfg,
		fallback: fallback,
		logger:   logger.With().Str("component", "delegate").Logger(),
	}
}

func (d *Delegate) Initialize(ctx context.Context, userID string) (StatusResult, error) {
	res, err := d.post(ctx, userID, "/v1/initialize-session", map[string]any{})
	if errors.Is(err, errPeerUnavailable) {
		d.logger.Warn().Err(err).Str("userId", userID).Msg("peer unreachable, using local fallback")
		return d.fallback.Initialize(ctx, userID)
	}
	return res, err
}

func (d *Delegate) Status(ctx context.Context, userID, sessionID string) (StatusResult, error) {
	res, err := d.post(ctx, userID, "/v1/session-status", map[string]any{"session_id": sessionID})
	if errors.Is(err, errPeerUnavailable) {
		d.logger.Warn().Err(err).Str("userId", userID).Msg("peer unreachable, using local fallback")
		return d.fallback.Status(ctx, userID, sessionID)
	}
	return res, err
}

func (d *Delegate) SimulateScan(ctx context.Context, userID string) (StatusResult, error) {
	res, err := d.post(ctx, userID, "/v1/simulate-scan", map[string]any{})
	if errors.Is(err, errPeerUnavailable) {
		d.logger.Warn().Err(err).Str("userId", userID).Msg("peer unreachable, using local fallback")
		return d.fallback.SimulateScan(ctx, userID)
	}
	return res, err
}

func (d *Delegate) Disconnect(ctx context.Context, userID string) (StatusResult, error) {
	res, err := d.post(ctx, userID, "/v1/disconnect", map[string]any{})
	if errors.Is(err, errPeerUnavailable) {
		d.logger.Warn().Err(err).Str("userId", userID).Msg("peer unreachable, using local fallback")
		return d.fallback.Disconnect(ctx, userID)
	}
	return res, err
}

func (d *Delegate) post(ctx context.Context, userID, path string, body map[string]any) (StatusResult, error) {
	token, err := auth.CreateToken(userID, d.tokenCfg)
	if err != nil {
		return StatusResult{}, fmt.Errorf("mint delegate token: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return StatusResult{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return StatusResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		return StatusResult{}, fmt.Errorf("%w: %v", errPeerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return StatusResult{}, fmt.Errorf("%w: peer returned %d", errPeerUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		// 4xx from the peer is a real answer, not unavailability.
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "simulate_scan_disabled" {
			return StatusResult{}, ErrSimulateScanDisabled
		}
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return StatusResult{}, fmt.Errorf("peer rejected request: %s", apiErr.Error)
	}

	var res StatusResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return StatusResult{}, fmt.Errorf("decode peer response: %w", err)
	}
	return res, nil
}
