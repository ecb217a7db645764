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
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
	"github.com/igrowicare/workmate/services/orchestrator/services"
)

// wsReadLimit bounds one client frame: the message cap plus JSON framing.
const wsReadLimit = datatypes.MaxMessageContentBytes + 1024

// NewUpgrader accepts browser origins in allowed. An empty list accepts any
// origin.
func NewUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowed) == 0 || origin == "" || slices.Contains(allowed, origin)
		},
	}
}

func sendJSON(ws *websocket.Conn, v any) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleChatWebSocket serves GET /chat/ws?session_id=&user_id=.
//
// Every text frame {message, mood?} runs one chat turn against the same
// session; the reply frame has the POST /chat body shape. Frames of one
// connection are processed in order.
func HandleChatWebSocket(deps ChatDeps, upgrader *websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		base := datatypes.ChatRequest{SessionID: c.Query("session_id")}
		if raw := c.Query("user_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "user_id must be a positive integer"})
				return
			}
			base.UserID = id
		}
		base.EnsureDefaults()
		if base.SessionID == "" || len(base.SessionID) > datatypes.MaxSessionIDLength {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id or user_id is required"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		ws.SetReadLimit(wsReadLimit)
		slog.Info("Websocket client connected", "session_id", base.SessionID)

		for {
			var frame datatypes.WSChatFrame
			if err := ws.ReadJSON(&frame); err != nil {
				slog.Info("Websocket client disconnected", "session_id", base.SessionID, "error", err.Error())
				return
			}
			if err := frame.Validate(); err != nil {
				if sendJSON(ws, datatypes.ErrorResponse{
					Error:     validationMessage(err),
					ErrorKind: string(services.KindMalformedInput),
				}) != nil {
					return
				}
				continue
			}

			req := base
			req.Message = frame.Message
			req.Mood = frame.Mood
			_, body := runChatTurn(c.Request.Context(), deps, req)
			if sendJSON(ws, body) != nil {
				return
			}
		}
	}
}
