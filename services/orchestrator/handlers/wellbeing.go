// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
	"github.com/igrowicare/workmate/services/orchestrator/ledger"
	"github.com/igrowicare/workmate/services/orchestrator/middleware"
	"github.com/igrowicare/workmate/services/orchestrator/observability"
)

// HandleGetPoints serves GET /points?user_id=.
func HandleGetPoints(l ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := queryUserID(c)
		if !ok {
			return
		}
		total, err := l.TotalPoints(c.Request.Context(), userID)
		if err != nil {
			slog.Error("Failed to read total points", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read points"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"total_points": total})
	}
}

// HandleMoodCheck serves GET /mood/check?user_id=.
func HandleMoodCheck(l ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := queryUserID(c)
		if !ok {
			return
		}
		entry, err := l.Today(c.Request.Context(), userID)
		if err != nil {
			slog.Error("Failed to check today's mood", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check mood"})
			return
		}
		if entry == nil {
			c.JSON(http.StatusOK, gin.H{"has_recorded": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"has_recorded": true,
			"mood":         entry.Mood,
			"mood_score":   entry.MoodScore,
		})
	}
}

// HandleMoodToday serves GET /mood/today?user_id=.
func HandleMoodToday(l ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := queryUserID(c)
		if !ok {
			return
		}
		entry, err := l.Today(c.Request.Context(), userID)
		if err != nil {
			slog.Error("Failed to read today's mood", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read mood"})
			return
		}
		if entry == nil {
			c.JSON(http.StatusOK, gin.H{"mood": nil})
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

// HandleMoodHistory serves GET /mood/history?user_id=&days=. A missing or
// unparsable days uses the default window.
func HandleMoodHistory(l ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := queryUserID(c)
		if !ok {
			return
		}
		days, _ := strconv.Atoi(c.Query("days"))
		history, err := l.History(c.Request.Context(), userID, days)
		if err != nil {
			slog.Error("Failed to read mood history", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read mood history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"history": history})
	}
}

// HandleMoodStreak serves GET /mood/streak?user_id=.
func HandleMoodStreak(l ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := queryUserID(c)
		if !ok {
			return
		}
		streak, err := l.Streak(c.Request.Context(), userID)
		if err != nil {
			slog.Error("Failed to compute streak", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute streak"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"streak": streak})
	}
}

// HandleMoodCheckin serves POST /mood/checkin.
func HandleMoodCheckin(l ledger.Ledger, metrics *observability.PipelineMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.MoodCheckinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
			return
		}
		mood, _ := datatypes.ParseMood(req.Mood)

		res, err := l.RecordMood(c.Request.Context(), req.UserID, mood)
		if err != nil {
			slog.Error("Failed to record mood", "user_id", req.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record mood"})
			return
		}
		metrics.RecordMoodCheckin(res.PointsEarned > 0)
		c.JSON(http.StatusOK, res)
	}
}

// HandleCreateAssessment serves POST /assessment. Requires AuthMiddleware.
func HandleCreateAssessment(l ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := middleware.GetAuthInfo(c)
		if auth == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req datatypes.AssessmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "scores must be integers between 0 and 3"})
			return
		}

		a, err := l.CreateAssessment(c.Request.Context(), auth.UserID, req.Scores(), req.ShareWithHR)
		if err != nil {
			slog.Error("Failed to store assessment", "user_id", auth.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store assessment"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":     a.ID,
			"total":  a.Total,
			"level":  a.Level,
			"advice": a.Advice,
		})
	}
}

// HandleLatestAssessment serves GET /assessment/latest. Requires
// AuthMiddleware.
func HandleLatestAssessment(l ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := middleware.GetAuthInfo(c)
		if auth == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		a, err := l.LatestAssessment(c.Request.Context(), auth.UserID)
		if err != nil {
			slog.Error("Failed to read latest assessment", "user_id", auth.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read assessment"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": a})
	}
}

// HandleAssessmentHistory serves GET /assessment/history?limit=. Requires
// AuthMiddleware. A missing or unparsable limit uses the default.
func HandleAssessmentHistory(l ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := middleware.GetAuthInfo(c)
		if auth == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		limit, _ := strconv.Atoi(c.Query("limit"))
		history, err := l.AssessmentHistory(c.Request.Context(), auth.UserID, limit)
		if err != nil {
			slog.Error("Failed to read assessment history", "user_id", auth.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read assessments"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": history})
	}
}

// HandleCreatePost serves POST /posts. Requires AuthMiddleware.
func HandleCreatePost(l ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := middleware.GetAuthInfo(c)
		if auth == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req datatypes.PostRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
			return
		}

		post, err := l.CreatePost(c.Request.Context(), auth.UserID, req.Content, req.ImageURL)
		if errors.Is(err, ledger.ErrEmptyPost) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "content must not be empty"})
			return
		}
		if err != nil {
			slog.Error("Failed to create post", "user_id", auth.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create post"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"post": post})
	}
}

// HandleListPosts serves GET /posts?limit=.
func HandleListPosts(l ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		posts, err := l.ListPosts(c.Request.Context(), limit)
		if err != nil {
			slog.Error("Failed to list posts", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list posts"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"posts": posts})
	}
}

// HandleInitDB serves POST /admin/init-db.
func HandleInitDB(l ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tables, err := l.InitSchema(c.Request.Context())
		if err != nil {
			slog.Error("Failed to initialise schema", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initialise database"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "tables": tables})
	}
}
