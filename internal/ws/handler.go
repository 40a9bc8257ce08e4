// internal/ws/handler.go
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wordhex/wordhex/internal/auth"
	"github.com/wordhex/wordhex/internal/session"
)

const writeTimeout = 3 * time.Second

// ClientMessage is the structure for inbound WebSocket commands.
type ClientMessage struct {
	Type     string `json:"type"`
	Token    string `json:"token,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Channel  string `json:"channel,omitempty"`
	MatchID  string `json:"match_id,omitempty"`
	Action   string `json:"action,omitempty"`
	PlayerID string `json:"player_id,omitempty"`
}

// Handler upgrades the HTTP connection, registers it, and runs the read
// loop for registry commands: identify, subscribe/unsubscribe, the
// player:action relay, and ping. The server id comes from the ?server
// query parameter.
func Handler(logger *logrus.Logger, reg *Registry, sessions *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serverID := r.URL.Query().Get("server")

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"wordhex"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "wordhex" {
			logger.Warnf("Client connected with invalid subprotocol: %s", c.Subprotocol())
			c.Close(websocket.StatusPolicyViolation, "Client must use the 'wordhex' subprotocol.")
			return
		}
		logger.Infof("WebSocket connection established from %s", r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn := reg.Register(cancel)
		go writePump(ctx, c, conn, logger)

		readMessages(ctx, c, conn, reg, sessions, serverID, logger)

		reg.Unregister(conn)
		logger.Infof("WebSocket connection %s closed", conn.ID)
	}
}

// writePump drains the connection's outbound channel onto the socket.
func writePump(ctx context.Context, c *websocket.Conn, conn *Conn, logger *logrus.Logger) {
	for data := range conn.out {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			logger.Warnf("failed to write to connection %s: %v", conn.ID, err)
			return
		}
	}
}

func readMessages(ctx context.Context, c *websocket.Conn, conn *Conn, reg *Registry, sessions *session.Service, serverID string, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for connection %s", conn.ID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for connection %s", conn.ID)
			} else {
				logger.Warnf("Error reading from connection %s: %v (Status: %d)", conn.ID, err, status)
			}
			return
		}
		if msgType != websocket.MessageText {
			logger.Warnf("Received non-text message type %d on connection %s. Ignoring.", msgType, conn.ID)
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON on connection %s: %v", conn.ID, err)
			sendError(conn, "Invalid JSON format.", logger)
			continue
		}

		switch msg.Type {
		case "identify":
			handleIdentify(ctx, conn, reg, sessions, serverID, msg, logger)

		case "subscribe":
			reg.Subscribe(conn, msg.Channel)
			sendMessage(conn, map[string]interface{}{"type": "subscribed", "channel": msg.Channel}, logger)

		case "unsubscribe":
			reg.Unsubscribe(conn, msg.Channel)
			sendMessage(conn, map[string]interface{}{"type": "unsubscribed", "channel": msg.Channel}, logger)

		case "player:action":
			handlePlayerAction(conn, reg, msg, logger)

		case "ping":
			sendMessage(conn, map[string]string{"type": "pong"}, logger)

		default:
			logger.Warnf("Unknown message type '%s' on connection %s", msg.Type, conn.ID)
			sendError(conn, "Unknown message type: "+msg.Type, logger)
		}
	}
}

func handleIdentify(ctx context.Context, conn *Conn, reg *Registry, sessions *session.Service, serverID string, msg ClientMessage, logger *logrus.Logger) {
	var (
		userID   uuid.UUID
		username = msg.Username
		err      error
	)
	if msg.Token != "" {
		var tokenName string
		userID, tokenName, err = auth.VerifyToken(msg.Token)
		if err != nil {
			logger.Warnf("identify with invalid token on connection %s: %v", conn.ID, err)
			sendError(conn, "Invalid session token.", logger)
			return
		}
		if username == "" {
			username = tokenName
		}
	} else {
		userID, err = uuid.Parse(msg.UserID)
		if err != nil {
			sendError(conn, "Invalid user id.", logger)
			return
		}
	}

	reg.Identify(conn, userID, username)
	logger.Infof("connection %s identified as user %s (%s)", conn.ID, userID, username)

	if sessions != nil {
		if _, err := sessions.Begin(ctx, userID, username, serverID); err != nil {
			logger.Warnf("failed to begin session for user %s: %v", userID, err)
		}
	}

	sendMessage(conn, map[string]interface{}{
		"type":     "identified",
		"user_id":  userID.String(),
		"username": username,
	}, logger)
}

// handlePlayerAction relays an in-match action verbatim to everyone
// watching the match channel. The payload is not validated server-side;
// authoritative state still only changes through the match engine.
func handlePlayerAction(conn *Conn, reg *Registry, msg ClientMessage, logger *logrus.Logger) {
	if msg.MatchID == "" {
		sendError(conn, "player:action requires match_id.", logger)
		return
	}
	matchID, err := uuid.Parse(msg.MatchID)
	if err != nil {
		sendError(conn, "Invalid match id.", logger)
		return
	}

	channel := MatchChannel(matchID)
	envelope := map[string]interface{}{
		"channel":   channel,
		"type":      "player:action",
		"match_id":  msg.MatchID,
		"action":    msg.Action,
		"player_id": msg.PlayerID,
		"username":  msg.Username,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		logger.Errorf("failed to marshal player:action relay: %v", err)
		return
	}
	reg.Broadcast(channel, data)
}

func sendMessage(conn *Conn, message interface{}, logger *logrus.Logger) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Errorf("failed to marshal outbound message: %v", err)
		return
	}
	conn.send(data, logger)
}

func sendError(conn *Conn, errorMsg string, logger *logrus.Logger) {
	sendMessage(conn, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	}, logger)
}
