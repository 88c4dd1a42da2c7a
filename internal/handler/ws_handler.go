package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/alert"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/session"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a session's alerts and navigation requests.
type WSHandler struct {
	manager    *session.Manager
	hub        *alert.Hub
	log        zerolog.Logger
	upgrader   websocket.Upgrader
	pingPeriod time.Duration
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(manager *session.Manager, hub *alert.Hub, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		manager:    manager,
		hub:        hub,
		log:        log.With().Str("component", "ws_handler").Logger(),
		upgrader:   buildUpgrader(allowedOrigins),
		pingPeriod: ws.PingPeriod,
	}
}

// SessionEvents godoc
// WS /ws/v1/sessions/:id/events
// Pushes alert, alert_cleared and navigate events until the session is
// closed or the client goes away.
func (h *WSHandler) SessionEvents(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if _, err := h.manager.Get(id); err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNoSession)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("session_id", id).Logger()
	wsLog.Info().Msg("UI connected")

	sub := h.hub.Subscribe(id)
	defer sub.Cancel()

	// Only this goroutine writes; the reader hands replies over.
	pongs := make(chan struct{}, 1)
	rejects := make(chan ws.Action, 1)
	done := make(chan struct{})
	conn.SetPongHandler(ws.ExtendReadDeadline(conn))
	go h.readLoop(conn, wsLog, pongs, rejects, done)

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-sub.C:
			if !open {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(time.Second))
				wsLog.Debug().Msg("Session closed, stream ended")
				return
			}
			if err := ws.WriteTyped(conn, ws.NewSessionEvent(ev)); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed")
				return
			}
		case <-pongs:
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				return
			}
		case action := <-rejects:
			if err := ws.WriteError(conn, fmt.Sprintf("unknown action %q", action)); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *WSHandler) readLoop(conn *websocket.Conn, wsLog zerolog.Logger, pongs chan<- struct{}, rejects chan<- ws.Action, done chan<- struct{}) {
	defer close(done)
	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionPing:
			select {
			case pongs <- struct{}{}:
			default:
			}
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			select {
			case rejects <- msg.Action:
			default:
			}
		}
	}
}
