package ws

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"

	server "little-sb/server"
	"little-sb/server/internal/proto"
	"little-sb/server/internal/telemetry"
)

const writeWait = 10 * time.Second

// serverSender identifies the hub on every outgoing reply envelope.
var serverSender = proto.Sender{PlayerName: "server", SessionName: "server"}

// Handler coordinates one websocket connection's command/reply loop.
type Handler struct {
	hub    *server.Hub
	logger telemetry.Logger
}

// NewHandler constructs a connection handler for the given hub.
func NewHandler(hub *server.Hub, logger telemetry.Logger) *Handler {
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	return &Handler{hub: hub, logger: logger}
}

// Serve reads command packets off the connection and writes back each
// dispatch reply, strictly in arrival order. It returns when the connection
// drops or a protocol error forces a close; either way the hub is told to
// drop whatever player the connection was bound to.
func (h *Handler) Serve(conn *websocket.Conn) {
	if h == nil || h.hub == nil || conn == nil {
		return
	}
	remote := server.NewRemote(conn)
	defer func() {
		h.hub.Disconnect(remote)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		packet, err := proto.DecodePacket(data)
		if err != nil {
			h.closeOnProtocolError(conn, remote, err)
			return
		}

		reply, err := h.hub.Dispatch(remote, packet)
		if err != nil {
			h.closeOnProtocolError(conn, remote, err)
			return
		}

		out, err := proto.EncodeEvent(serverSender, reply)
		if err != nil {
			h.logger.Printf("failed to encode reply for %s: %v", remote.PlayerName(), err)
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			return
		}
	}
}

// closeOnProtocolError announces why the connection is going away. Protocol
// errors are fatal to the connection, never retried.
func (h *Handler) closeOnProtocolError(conn *websocket.Conn, remote *server.Remote, err error) {
	code := websocket.ClosePolicyViolation
	if errors.Is(err, proto.ErrMalformedPayload) {
		code = websocket.CloseInvalidFramePayloadData
	}
	h.logger.Printf("closing connection for %q: %v", remote.PlayerName(), err)
	message := websocket.FormatCloseMessage(code, "protocol error")
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, message)
}
