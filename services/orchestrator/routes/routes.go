// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/igrowicare/workmate/pkg/extensions"
	"github.com/igrowicare/workmate/services/orchestrator/handlers"
	"github.com/igrowicare/workmate/services/orchestrator/ledger"
	"github.com/igrowicare/workmate/services/orchestrator/middleware"
	"github.com/igrowicare/workmate/services/orchestrator/observability"
	"github.com/igrowicare/workmate/services/orchestrator/services"
)

// Dependencies are the collaborators the routes are wired to.
//
// Ledger nil disables every ledger-backed route; /chat then answers with
// no points. Options.UserDirectory nil disables /auth/me.
type Dependencies struct {
	Pipeline       services.Runner
	Ledger         ledger.Ledger
	Metrics        *observability.PipelineMetrics
	Options        extensions.ServiceOptions
	AllowedOrigins []string
	RateLimit      middleware.RateLimitConfig

	// MetricsHandler serves /metrics; nil uses the default registry.
	MetricsHandler http.Handler
}

// DefaultAllowedOrigin is the web client origin used when none is configured.
const DefaultAllowedOrigin = "http://localhost:5173"

// SetupRoutes registers every endpoint on router. A nil AuthProvider falls
// back to JWT validation with the development secret.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	if len(deps.AllowedOrigins) == 0 {
		deps.AllowedOrigins = []string{DefaultAllowedOrigin}
	}
	if deps.Options.AuthProvider == nil {
		deps.Options.AuthProvider = middleware.NewJWTAuthProvider("")
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     deps.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metricsHandler))
	router.GET("/health", handlers.HandleHealth())

	readiness := map[string]handlers.Pinger{}
	if deps.Ledger != nil {
		readiness["mysql"] = deps.Ledger
	}
	router.GET("/health/ready", handlers.HandleReady(readiness))

	chatDeps := handlers.ChatDeps{Pipeline: deps.Pipeline, Ledger: deps.Ledger, Metrics: deps.Metrics}
	limiter := middleware.NewRateLimiter(deps.RateLimit)
	chat := router.Group("/chat")
	chat.Use(limiter.Middleware(middleware.ClientIPKey))
	{
		chat.POST("", handlers.HandleChat(chatDeps))
		chat.GET("/ws", handlers.HandleChatWebSocket(chatDeps, handlers.NewUpgrader(deps.AllowedOrigins)))
	}

	authed := router.Group("/")
	authed.Use(middleware.AuthMiddleware(deps.Options.AuthProvider))
	if deps.Options.UserDirectory != nil {
		authed.GET("/auth/me", handlers.HandleAuthMe(deps.Options.UserDirectory))
	}

	if deps.Ledger == nil {
		return
	}
	router.GET("/points", handlers.HandleGetPoints(deps.Ledger))
	mood := router.Group("/mood")
	{
		mood.GET("/check", handlers.HandleMoodCheck(deps.Ledger))
		mood.GET("/today", handlers.HandleMoodToday(deps.Ledger))
		mood.GET("/history", handlers.HandleMoodHistory(deps.Ledger))
		mood.GET("/streak", handlers.HandleMoodStreak(deps.Ledger))
		mood.POST("/checkin", handlers.HandleMoodCheckin(deps.Ledger, deps.Metrics))
	}
	authed.POST("/assessment", handlers.HandleCreateAssessment(deps.Ledger))
	authed.GET("/assessment/latest", handlers.HandleLatestAssessment(deps.Ledger))
	authed.GET("/assessment/history", handlers.HandleAssessmentHistory(deps.Ledger))
	router.GET("/posts", handlers.HandleListPosts(deps.Ledger))
	authed.POST("/posts", handlers.HandleCreatePost(deps.Ledger))
	router.POST("/admin/init-db", handlers.HandleInitDB(deps.Ledger))
}
