package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	apperrors "github.com/kbukum/speechgate/errors"
	"github.com/kbukum/speechgate/logger"
	"github.com/kbukum/speechgate/server/middleware"
	"github.com/kbukum/speechgate/session"
)

const writeWait = 5 * time.Second

// errSlowConsumer is returned by Send when the connection's queue is full.
var errSlowConsumer = errors.New("websocket: send queue full")

// Sessions is the router surface the socket endpoint drives.
type Sessions interface {
	OnConnect(ctx context.Context, id string, t session.Transport) error
	OnMessage(ctx context.Context, id string, msg session.Message) error
	OnDisconnect(ctx context.Context, id string)
}

// Socket upgrades /ws requests and pumps messages between a websocket and
// the session router. Text frames carry JSON messages; binary frames are
// audio_chunk payloads.
type Socket struct {
	sessions Sessions
	cfg      session.Config
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewSocket creates the websocket endpoint. cors decides which browser
// origins may connect.
func NewSocket(sessions Sessions, cfg session.Config, cors *middleware.CORSConfig, log *logger.Logger) *Socket {
	cfg.ApplyDefaults()
	return &Socket{
		sessions: sessions,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 << 10,
			WriteBufferSize: 16 << 10,
			CheckOrigin: func(r *http.Request) bool {
				return cors == nil || cors.AllowsOrigin(r.Header.Get("Origin"))
			},
		},
		log: log.WithComponent("socket"),
	}
}

// RegisterRoutes mounts GET /ws.
func (s *Socket) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws", s.serve)
}

func (s *Socket) serve(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already answered the request.
		s.log.Debug("Websocket upgrade failed", logger.ErrorFields("upgrade", err))
		return
	}

	id := uuid.NewString()
	t := newConnTransport(conn, s.cfg, s.log.WithSession(id))
	ctx := context.WithoutCancel(c.Request.Context())

	go t.writeLoop()

	if err := s.sessions.OnConnect(ctx, id, t); err != nil {
		s.log.Warn("Session refused", logger.ErrorFields("connect", err))
		appErr := apperrors.From(err)
		_ = t.Send(session.Event{Kind: session.KindTerminalError, Code: string(appErr.Code), Message: appErr.Message})
		_ = t.Close()
		<-t.done
		return
	}
	defer s.sessions.OnDisconnect(ctx, id)

	s.readLoop(ctx, id, conn)
}

func (s *Socket) readLoop(ctx context.Context, id string, conn *websocket.Conn) {
	conn.SetReadLimit(s.cfg.ReadLimit)
	deadline := 2 * s.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Websocket read ended", logger.Fields(logger.FieldSessionID, id, logger.FieldError, err.Error()))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(deadline))

		msg, err := decodeMessage(kind, data)
		if err != nil {
			msg = session.Message{Type: "invalid"}
		}
		if err := s.sessions.OnMessage(ctx, id, msg); err != nil {
			// The session is gone (closed by stop or a fatal error).
			return
		}
	}
}

func decodeMessage(kind int, data []byte) (session.Message, error) {
	if kind == websocket.BinaryMessage {
		return session.Message{Type: session.MsgAudioChunk, Payload: data}, nil
	}
	var msg session.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return session.Message{}, err
	}
	return msg, nil
}

// connTransport is the outbound half of one websocket. Events are queued
// and written by a single goroutine. After Close the writer flushes the
// queue, sends a close frame and closes the socket.
type connTransport struct {
	conn         *websocket.Conn
	pingInterval time.Duration
	log          *logger.Logger

	mu     sync.Mutex
	send   chan session.Event
	closed bool
	done   chan struct{}
}

func newConnTransport(conn *websocket.Conn, cfg session.Config, log *logger.Logger) *connTransport {
	return &connTransport{
		conn:         conn,
		pingInterval: cfg.PingInterval,
		log:          log,
		send:         make(chan session.Event, cfg.SendBuffer),
		done:         make(chan struct{}),
	}
}

func (t *connTransport) Send(ev session.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return websocket.ErrCloseSent
	}
	select {
	case t.send <- ev:
		return nil
	default:
		return errSlowConsumer
	}
}

func (t *connTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.send)
	}
	return nil
}

// writeLoop writes queued events until the queue is closed, pinging on idle.
func (t *connTransport) writeLoop() {
	defer close(t.done)
	defer t.conn.Close()

	ping := time.NewTicker(t.pingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-t.send:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = t.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := t.conn.WriteJSON(ev); err != nil {
				t.log.Debug("Websocket write failed", logger.ErrorFields("write", err))
				return
			}
		case <-ping.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
