package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lexprep/achievement-engine/internal/application/command"
	"github.com/lexprep/achievement-engine/internal/application/query"
	"github.com/lexprep/achievement-engine/internal/domain/activity"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
	"github.com/lexprep/achievement-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(c, code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// handleSubmitEvent is POST /v1/events.
//
//	200 accepted (applied, duplicate or unknown kind)
//	400 body is not a decodable event
//	422 event decoded but failed validation
//	503 transient failure; redeliver the same event
func (s *Server) handleSubmitEvent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes)

	var e activity.Event
	if err := c.ShouldBindJSON(&e); err != nil {
		writeJSON(c, http.StatusBadRequest, &command.SubmitEventResult{
			Accepted: false,
			Reason:   "invalid event body: " + err.Error(),
			Outcome:  command.OutcomeRejected,
			Unlocked: []command.UnlockedAchievement{},
		})
		return
	}

	ctx := c.Request.Context()
	if s.config.EventTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.EventTimeout)
		defer cancel()
	}

	res, err := s.deps.SubmitEvent.Handle(ctx, e)
	if err != nil {
		s.handleError(c, err)
		return
	}

	status := http.StatusOK
	if !res.Accepted {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(c, status, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG & UNLOCKS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListCatalog(c *gin.Context) {
	res, err := s.deps.ListCatalog.Handle(c.Request.Context(), query.ListCatalogQuery{
		Type: c.Query("type"),
	})
	if err != nil {
		s.handleError(c, err)
		return
	}
	writeJSONWithMeta(c, http.StatusOK, res.Achievements, &ResponseMeta{TotalCount: res.Total})
}

func (s *Server) handleListUserAchievements(c *gin.Context) {
	onlyUnlocked := false
	if raw := c.Query("unlocked"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid_request", "unlocked must be a boolean")
			return
		}
		onlyUnlocked = v
	}

	res, err := s.deps.ListUserAchievements.Handle(c.Request.Context(), query.ListUserAchievementsQuery{
		UserID:       c.Param("userId"),
		OnlyUnlocked: onlyUnlocked,
	})
	if err != nil {
		s.handleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed",
			logger.String("path", c.Request.URL.Path),
			logger.Err(err),
		)
	}
	_ = c.Error(err)

	msg := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		msg = de.Message
	}
	if status == http.StatusInternalServerError {
		msg = "An unexpected error occurred"
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	writeError(c, status, code, msg)
}

func classify(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "invalid_request"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsRetryable(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "temporarily_unavailable"
	default:
		return http.StatusInternalServerError, "internal_server_error"
	}
}
