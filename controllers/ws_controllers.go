package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yeremiapane/restaurant-pos/hub"
	"github.com/yeremiapane/restaurant-pos/utils"
)

type RealtimeController struct {
	Hub      *hub.Hub
	upgrader websocket.Upgrader
}

// NewRealtimeController accepts browsers from allowedOrigin, or any origin
// when it is "*" or empty.
func NewRealtimeController(h *hub.Hub, allowedOrigin string) *RealtimeController {
	return &RealtimeController{
		Hub: h,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if allowedOrigin == "" || allowedOrigin == "*" || origin == "" {
					return true
				}
				return strings.EqualFold(origin, allowedOrigin)
			},
		},
	}
}

// Subscribe -> endpoint WebSocket. ?room=orders joins a room right away,
// later rooms are joined with {"action":"join","room":"..."}.
func (rc *RealtimeController) Subscribe(c *gin.Context) {
	ws, err := rc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.Printf("Websocket upgrade failed: %v", err)
		return
	}

	var rooms []string
	for _, room := range c.QueryArray("room") {
		if room = strings.TrimSpace(room); room != "" {
			rooms = append(rooms, room)
		}
	}
	rc.Hub.Serve(ws, rooms...)
}
