package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"notification-hub/internal/realtime"
)

const defaultWriteWait = 5 * time.Second

var errTransportClosed = errors.New("transport closed")

// SocketConfig tunes the websocket transport.
type SocketConfig struct {
	ReadLimit    int64
	PongWait     time.Duration
	PingInterval time.Duration
}

// wsTransport implements realtime.Conn over a gorilla websocket connection.
// gorilla allows one concurrent writer, so data writes go through writeSlot.
type wsTransport struct {
	conn      *websocket.Conn
	cfg       SocketConfig
	writeSlot chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

var _ realtime.Conn = (*wsTransport)(nil)

func newWSTransport(conn *websocket.Conn, cfg SocketConfig) *wsTransport {
	t := &wsTransport{
		conn:      conn,
		cfg:       cfg,
		writeSlot: make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}

	conn.SetReadLimit(cfg.ReadLimit)
	t.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		t.extendReadDeadline()
		return nil
	})
	return t
}

func (t *wsTransport) Send(ctx context.Context, data []byte) error {
	select {
	case t.writeSlot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closed:
		return errTransportClosed
	}
	defer func() { <-t.writeSlot }()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteWait)
	}
	_ = t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Receive(context.Context) ([]byte, error) {
	for {
		typ, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		t.extendReadDeadline()
		return data, nil
	}
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}

// pingLoop keeps idle connections alive; a failed ping closes the transport.
func (t *wsTransport) pingLoop(ctx context.Context) {
	if t.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.closed:
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(defaultWriteWait)); err != nil {
				_ = t.Close()
				return
			}
		}
	}
}

func (t *wsTransport) extendReadDeadline() {
	if t.cfg.PongWait > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	}
}

// WebSocketHandler upgrades clients and runs their dispatcher loop.
type WebSocketHandler struct {
	dispatcher *realtime.Dispatcher
	cfg        SocketConfig
	upgrader   websocket.Upgrader
	log        zerolog.Logger
}

func NewWebSocketHandler(dispatcher *realtime.Dispatcher, cfg SocketConfig, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		dispatcher: dispatcher,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// CORS is already handled at Gin level; allow upgrade from any origin here
				return true
			},
		},
		log: log.With().Str("component", "websocket").Logger(),
	}
}

// Serve handles GET /ws. Connections start anonymous and authenticate with an auth message.
func (h *WebSocketHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", c.ClientIP()).Msg("websocket upgrade failed")
		return
	}

	transport := newWSTransport(conn, h.cfg)
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go transport.pingLoop(ctx)
	go func() {
		<-ctx.Done()
		_ = transport.Close()
	}()

	err = h.dispatcher.Serve(ctx, transport)
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
		h.log.Debug().Err(err).Str("remote", c.ClientIP()).Msg("connection ended")
	}
}
