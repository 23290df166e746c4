package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sync-admin/internal/usecase/table"
	"sync-admin/pkg/logger"
	"sync-admin/pkg/security"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096
)

// Stream message types.
const (
	MsgTypeView    = "view"
	MsgTypeError   = "error"
	MsgTypeSearch  = "search"
	MsgTypeSort    = "sort"
	MsgTypePage    = "page"
	MsgTypeRefresh = "refresh"
)

// StreamCommand is a table interaction sent by the browser over the stream.
type StreamCommand struct {
	Type  string `json:"type"`
	Query string `json:"query,omitempty"`
	Key   string `json:"key,omitempty"`
	Page  int    `json:"page,omitempty"`
}

// StreamMessage is pushed to the browser.
type StreamMessage struct {
	Type    string      `json:"type"`
	View    *table.View `json:"view,omitempty"`
	Message string      `json:"message,omitempty"`
}

// StreamSessions is the session store the stream handler drives. A session
// stays attached, and is never reaped, while its stream is open.
type StreamSessions interface {
	Attach(id string) (table.Session, func(), error)
	Touch(id string) error
}

// StreamHandler pushes rendered table views over a WebSocket and accepts
// interactions on the same connection.
type StreamHandler struct {
	sessions StreamSessions
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewStreamHandler creates a new StreamHandler. checkOrigin may be nil to
// accept any origin.
func NewStreamHandler(sessions StreamSessions, checkOrigin func(r *http.Request) bool, log *zap.Logger) *StreamHandler {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &StreamHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		log: log,
	}
}

// Stream handles GET /v1/sessions/:id/stream
func (h *StreamHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	s, release, err := h.sessions.Attach(id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
		return
	}
	defer release()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("session_id", id), zap.Error(err))
		return
	}

	log := h.log.With(zap.String("session_id", id))
	log.Debug("stream opened")

	views, unsubscribe := s.Subscribe()
	replies := make(chan StreamMessage, 8)
	done := make(chan struct{})

	go h.readPump(conn, id, s, replies, done, log)
	h.writePump(conn, views, replies, done, log)

	unsubscribe()
	_ = conn.Close()
	log.Debug("stream closed")
}

// writePump is the only writer of conn. It returns when the client goes away
// or the session is closed.
func (h *StreamHandler) writePump(conn *websocket.Conn, views <-chan table.View, replies <-chan StreamMessage, done <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var msg StreamMessage
		select {
		case v, ok := <-views:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			msg = StreamMessage{Type: MsgTypeView, View: &v}
		case msg = <-replies:
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case <-done:
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug("stream write failed", zap.Error(err))
			return
		}
	}
}

// readPump applies commands from the client until the connection drops.
func (h *StreamHandler) readPump(conn *websocket.Conn, id string, s table.Session, replies chan<- StreamMessage, done chan<- struct{}, log *zap.Logger) {
	defer close(done)

	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("stream read failed", zap.Error(err))
			}
			return
		}

		if err := h.sessions.Touch(id); err != nil {
			return
		}

		// Each command is its own request for fetch tagging and logs.
		reqID := logger.NewRequestID()
		ctx := logger.WithRequestID(logger.WithSessionID(context.Background(), id), reqID)
		if errMsg := applyCommand(ctx, s, data); errMsg != "" {
			log.Debug("stream command rejected", zap.String("request_id", reqID), zap.String("reason", errMsg))
			select {
			case replies <- StreamMessage{Type: MsgTypeError, Message: errMsg}:
			default:
			}
		}
	}
}

// applyCommand runs one client command and returns an error message for the
// client, or "" on success. Resulting views arrive through the subscription.
func applyCommand(ctx context.Context, s table.Session, data []byte) string {
	var cmd StreamCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return "invalid message format"
	}

	switch cmd.Type {
	case MsgTypeSearch:
		if utf8.RuneCountInString(cmd.Query) > security.MaxSearchQueryLength {
			return "search query too long"
		}
		s.Search(ctx, cmd.Query)
	case MsgTypeSort:
		if cmd.Key == "" {
			return "key is required"
		}
		if _, err := s.RequestSort(ctx, cmd.Key); err != nil {
			return err.Error()
		}
	case MsgTypePage:
		if cmd.Page < 1 {
			return "page must be at least 1"
		}
		s.SetPage(ctx, cmd.Page)
	case MsgTypeRefresh:
		s.Refresh(ctx)
	default:
		return "unknown message type: " + cmd.Type
	}
	return ""
}
