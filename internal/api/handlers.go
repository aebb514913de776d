package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sniper-trading-bot/internal/events"
)

func eventSniperToggled(active bool) events.Event {
	return events.Event{
		Type: events.EventSniperToggled,
		Data: map[string]interface{}{"active": active},
	}
}

// respond wraps payloads in the standard success envelope
func respond(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// respondError returns the error envelope. Operational failures keep HTTP
// 200 so dashboard clients always parse the body; the success flag carries
// the outcome.
func respondError(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{
		"success":   false,
		"error":     message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	respond(c, gin.H{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	if s.jwtManager == nil {
		respondError(c, "authentication is disabled")
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "username and password are required")
		return
	}

	if req.Username != s.adminUser || !s.passwordMgr.VerifyPassword(req.Password, s.adminHash) {
		respondError(c, "invalid credentials")
		return
	}

	token, err := s.jwtManager.GenerateAccessToken(req.Username)
	if err != nil {
		respondError(c, "failed to generate token")
		return
	}

	respond(c, gin.H{"token": token})
}

func (s *Server) handleSniperStart(c *gin.Context) {
	s.scheduler.StartSniper()
	if s.eventBus != nil {
		s.eventBus.Publish(eventSniperToggled(true))
	}
	respond(c, gin.H{"sniper_active": true})
}

func (s *Server) handleSniperStop(c *gin.Context) {
	s.scheduler.StopSniper()
	if s.eventBus != nil {
		s.eventBus.Publish(eventSniperToggled(false))
	}
	respond(c, gin.H{"sniper_active": false})
}

func (s *Server) handleSniperStatus(c *gin.Context) {
	respond(c, s.scheduler.GetStatus())
}

func (s *Server) handlePositions(c *gin.Context) {
	respond(c, s.cache.Snapshot())
}

func (s *Server) handleClosePosition(c *gin.Context) {
	symbol := c.Param("symbol")
	exchangeName := c.DefaultQuery("exchange", "BYBIT")

	closed, err := s.orderMgr.ClosePosition(symbol, "MANUAL_CLOSE", exchangeName)
	if err != nil {
		s.logger.Error("Manual close failed", "symbol", symbol, "error", err.Error())
		respondError(c, err.Error())
		return
	}

	respond(c, closed)
}

func (s *Server) handleHedges(c *gin.Context) {
	if s.hedging == nil {
		respond(c, []interface{}{})
		return
	}
	respond(c, s.hedging.ActiveHedges())
}

func (s *Server) handleOrderHistory(c *gin.Context) {
	symbol := c.Query("symbol")
	respond(c, s.orderMgr.History(symbol))
}

func (s *Server) handleSignals(c *gin.Context) {
	if s.repo == nil {
		respondError(c, "persistence is disabled")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	signals, err := s.repo.GetRecentSignals(ctx, limit)
	if err != nil {
		respondError(c, err.Error())
		return
	}
	respond(c, signals)
}
