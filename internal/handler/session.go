package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hiktan44/whatsappmini-sub000/internal/middleware"
	"github.com/hiktan44/whatsappmini-sub000/internal/session"
)

// SessionHandler maps the session lifecycle API onto the session service.
// Lifecycle outcomes (no_session, expired, auth_failed, ...) are 200
// responses with first-class statuses; only malformed requests, missing
// auth, and client boot failures are real HTTP errors.
type SessionHandler struct {
	Service session.Service
	Logger  zerolog.Logger
}

type statusBody struct {
	SessionID string `json:"session_id"`
}

func (h *SessionHandler) Initialize(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}

	res, err := h.Service.Initialize(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, session.ErrClientInit) {
			h.Logger.Error().Err(err).Str("userId", userID).Msg("client init failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "client_init_failed"})
			return
		}
		h.Logger.Error().Err(err).Str("userId", userID).Msg("initialize session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SessionHandler) Status(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}

	var body statusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	res, err := h.Service.Status(c.Request.Context(), userID, body.SessionID)
	if err != nil {
		h.Logger.Error().Err(err).Str("userId", userID).Msg("session status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SessionHandler) SimulateScan(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}

	res, err := h.Service.SimulateScan(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, session.ErrSimulateScanDisabled) {
			c.JSON(http.StatusForbidden, gin.H{"error": "simulate_scan_disabled"})
			return
		}
		h.Logger.Error().Err(err).Str("userId", userID).Msg("simulate scan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SessionHandler) Disconnect(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}

	res, err := h.Service.Disconnect(c.Request.Context(), userID)
	if err != nil {
		h.Logger.Error().Err(err).Str("userId", userID).Msg("disconnect session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, res)
}
