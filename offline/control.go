package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/praktikumlab/go-praktikum/logger"
)

// Control message types accepted from the foreground application.
const (
	MsgSkipWaiting = "SKIP_WAITING"
	MsgGetVersion  = "GET_VERSION"
	MsgClearCache  = "CLEAR_CACHE"
)

// ControlMessage is a foreground-to-controller command.
type ControlMessage struct {
	Type string `json:"type"`
}

// ControlReply acknowledges a ControlMessage.
type ControlReply struct {
	Version string `json:"version,omitempty"`
	Success *bool  `json:"success,omitempty"`
}

func ackReply(ok bool) ControlReply {
	return ControlReply{Success: &ok}
}

// Message dispatches a single control message and returns its reply.
func (c *Controller) Message(ctx context.Context, msg ControlMessage) (ControlReply, error) {
	switch msg.Type {
	case MsgSkipWaiting:
		if err := c.SkipWaiting(ctx); err != nil {
			c.log.Error("skip waiting failed: %v", err)
			return ackReply(false), nil
		}
		return ackReply(true), nil
	case MsgGetVersion:
		return ControlReply{Version: c.cfg.Version}, nil
	case MsgClearCache:
		return ackReply(c.ClearCache(ctx)), nil
	default:
		return ControlReply{}, fmt.Errorf("offline: unknown control message type %q", msg.Type)
	}
}

const controlWriteTimeout = 5 * time.Second

// ControlServer exposes the controller's message channel over a websocket
// endpoint. Each received JSON message is dispatched and acknowledged on the
// same connection.
type ControlServer struct {
	ctrl *Controller
	log  logger.Logger

	// OriginPatterns authorizes cross-origin websocket clients.
	OriginPatterns []string
}

var _ http.Handler = (*ControlServer)(nil)

// NewControlServer returns the websocket control endpoint for ctrl.
func NewControlServer(ctrl *Controller, log logger.Logger) *ControlServer {
	return &ControlServer{
		ctrl: ctrl,
		log:  log.With(map[string]interface{}{"component": "offline-control"}),
	}
}

func (s *ControlServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.OriginPatterns,
	})
	if err != nil {
		s.log.Warn("websocket accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	ctx := r.Context()
	for {
		var msg ControlMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				return
			}
			s.log.Debug("control read failed: %v", err)
			return
		}
		reply, err := s.ctrl.Message(ctx, msg)
		if err != nil {
			s.log.Warn("control message rejected: %v", err)
			reply = ackReply(false)
		}
		wctx, cancel := context.WithTimeout(ctx, controlWriteTimeout)
		err = wsjson.Write(wctx, conn, reply)
		cancel()
		if err != nil {
			s.log.Debug("control write failed: %v", err)
			return
		}
	}
}
