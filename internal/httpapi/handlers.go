package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
)

func (s *Server) handleHealthz(c *gin.Context) {
	healthy, detail := s.health(c.Request.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, detail)
}

// handleIssueToken mints a dev/service token. Real user authentication lives
// in the platform's identity service; this endpoint stands in for it when the
// engine runs on its own.
func (s *Server) handleIssueToken(c *gin.Context) {
	var req struct {
		Subject string `json:"subject" binding:"required"`
		Role    string `json:"role" binding:"required,oneof=student instructor admin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tokens, err := auth.Issue(req.Subject, req.Role, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.AccessTTL, s.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (s *Server) handleCreateCode(c *gin.Context) {
	var req struct {
		AutoExpire        bool       `json:"auto_expire"`
		ExpirationMinutes int        `json:"expiration_minutes"`
		ExpiresAt         *time.Time `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code, err := s.svc.CreateCode(c.Request.Context(), c.Param("id"), auth.CallerFrom(c), attendance.CodeOptions{
		AutoExpire:        req.AutoExpire,
		ExpirationMinutes: req.ExpirationMinutes,
		ExpiresAt:         req.ExpiresAt,
	})
	if err != nil {
		s.reject(c, err)
		return
	}
	metrics.CodesIssued.Inc()
	c.JSON(http.StatusCreated, code)
}

func (s *Server) handleDeactivateCode(c *gin.Context) {
	if err := s.svc.DeactivateCode(c.Request.Context(), c.Param("id"), auth.CallerFrom(c)); err != nil {
		s.reject(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCurrentCode(c *gin.Context) {
	code, err := s.svc.CurrentCode(c.Request.Context(), c.Param("id"), auth.CallerFrom(c))
	if err != nil {
		s.reject(c, err)
		return
	}
	if code == nil {
		c.JSON(http.StatusOK, gin.H{"code": nil})
		return
	}
	resp := gin.H{"code": code}
	if remaining, ok := attendance.TimeRemaining(*code, time.Now()); ok {
		resp["remaining_seconds"] = int(remaining.Seconds())
	} else {
		resp["unlimited"] = true
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListCodes(c *gin.Context) {
	codes, err := s.svc.ListCodes(c.Request.Context(), c.Param("id"), auth.CallerFrom(c))
	if err != nil {
		s.reject(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"codes": codes})
}

func (s *Server) handleExtendExpiration(c *gin.Context) {
	var req struct {
		AdditionalMinutes int `json:"additional_minutes" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code, err := s.svc.ExtendExpiration(c.Request.Context(), c.Param("id"), auth.CallerFrom(c), req.AdditionalMinutes)
	if err != nil {
		s.reject(c, err)
		return
	}
	c.JSON(http.StatusOK, code)
}

func (s *Server) handleCheckIn(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := auth.CallerFrom(c)
	rec, err := s.svc.CheckIn(c.Request.Context(), c.Param("id"), actor.ID, req.Code, time.Now().UTC())
	if err != nil {
		if reason := rejectionReason(err); reason != "" {
			metrics.CheckinRejections.WithLabelValues(reason).Inc()
		}
		s.reject(c, err)
		return
	}
	metrics.CheckinsTotal.WithLabelValues(string(rec.Status)).Inc()

	if err := s.q.Publish(c.Request.Context(), queue.NewCheckinMessage(rec.SessionID, rec.ID)); err != nil {
		log.Printf("queue publish failed: %v", err)
	}

	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleMyStatus(c *gin.Context) {
	actor := auth.CallerFrom(c)
	rec, err := s.svc.MyStatus(c.Request.Context(), c.Param("id"), actor.ID)
	if err != nil {
		s.reject(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusOK, gin.H{"status": string(attendance.StatusAbsent), "checked_in": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(rec.Status), "checked_in": true, "record": rec})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.reporter.Stats(c.Request.Context(), c.Param("id"), auth.CallerFrom(c))
	if err != nil {
		s.reject(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleReport(c *gin.Context) {
	rows, err := s.reporter.Report(c.Request.Context(), c.Param("id"), auth.CallerFrom(c))
	if err != nil {
		s.reject(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": rows})
}

func (s *Server) reject(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "temporary failure, retry"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
