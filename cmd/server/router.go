package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/Skufu/triage/internal/clinical"
	"github.com/Skufu/triage/internal/feedback"
	"github.com/Skufu/triage/internal/pipeline"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Analyzer is the core service behind the HTTP surface.
type Analyzer interface {
	Analyze(ctx context.Context, payload clinical.Payload) pipeline.Analysis
	Health() pipeline.HealthStatus
}

// FeedbackSaver persists clinician feedback. It is nil when the database is disabled.
type FeedbackSaver interface {
	Save(ctx context.Context, userID string, fb map[string]any) (feedback.Entry, error)
}

type feedbackRequest struct {
	UserID   string         `json:"userId"`
	Feedback map[string]any `json:"feedback"`
}

func setupRouter(db HealthChecker, svc Analyzer, store FeedbackSaver, maxBodyBytes int64) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestID(),
		accessLog(),
		limitBodySize(maxBodyBytes),
		cors.New(cors.Config{
			AllowOrigins:  []string{"*"},
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
			ExposeHeaders: []string{requestIDHeader},
			MaxAge:        12 * time.Hour,
		}),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/readyz", func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "disabled"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"db":     fmt.Sprintf("unhealthy: %v", err),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "ok"})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "model": svc.Health()})
	})

	analyze := analyzeHandler(svc)
	router.POST("/analyze", analyze)
	router.POST("/api/diagnostics/analyze", analyze)

	router.POST("/api/feedback", feedbackHandler(store))

	return router
}

func analyzeHandler(svc Analyzer) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}

		// Only a JSON object is a payload; null, arrays and scalars are not.
		if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		var payload clinical.Payload
		if err := json.Unmarshal(raw, &payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		if utf8.RuneCountInString(payload.Notes) > clinical.MaxNotesLength {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("notes exceed %d characters", clinical.MaxNotesLength),
			})
			return
		}

		result := svc.Analyze(c.Request.Context(), payload)
		if result.Error != "" {
			log.Warn().Str("requestId", c.GetString(requestIDKey)).Str("error", result.Error).Msg("Analysis returned error envelope")
		}
		c.JSON(http.StatusOK, result)
	}
}

func feedbackHandler(store FeedbackSaver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "feedback storage disabled"})
			return
		}
		var req feedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid payload"})
			return
		}

		entry, err := store.Save(c.Request.Context(), req.UserID, req.Feedback)
		switch {
		case errors.Is(err, feedback.ErrEmptyFeedback):
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
			return
		case err != nil:
			log.Error().Err(err).Str("requestId", c.GetString(requestIDKey)).Msg("Saving feedback failed")
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "could not store feedback"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "data": entry})
	}
}
