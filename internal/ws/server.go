package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"roomrelay/internal/services/relay"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 12 * time.Second
	pingPeriod     = 3 * time.Second // must be < pongWait
	handlerTimeout = 1900 * time.Millisecond
)

// signalCalls maps the toggle calls onto the push they produce.
var signalCalls = map[string]relay.Signal{
	"RaiseHand":               relay.SignalRaiseHand,
	"ToggleVirtualBackground": relay.SignalVirtualBackground,
	"StartScreenShare":        relay.SignalScreenShareStart,
	"StopScreenShare":         relay.SignalScreenShareStop,
	"ToggleRecording":         relay.SignalRecording,
}

type Options struct {
	// AllowedOrigins restricts browser origins; empty allows any.
	AllowedOrigins []string
	SendBuffer     int
	MaxMessageSize int64
}

type WsServer struct {
	relay    relay.IRelayService
	router   *Router
	upgrader websocket.Upgrader
	opts     Options

	mu      sync.Mutex
	conns   map[string]*clientConn
	closing bool
	readers sync.WaitGroup
}

func NewWsServer(svc relay.IRelayService, opts Options) *WsServer {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 16 * 1024
	}
	srv := &WsServer{
		relay:  svc,
		router: NewRouter(),
		opts:   opts,
		conns:  make(map[string]*clientConn),
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     srv.checkOrigin,
	}
	srv.registerHandlers() // ← all WS endpoints configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry‑point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}

	conn := newClientConn(uuid.NewString(), rawConn, s.opts.SendBuffer)
	if !s.track(conn) {
		conn.close()
		return
	}
	if err := s.relay.Connect(conn); err != nil {
		s.untrack(conn)
		zap.L().Error("ws.register", zap.String("conn_id", conn.id), zap.Error(err))
		conn.close()
		return
	}
	zap.L().Debug("ws.connected",
		zap.String("conn_id", conn.id),
		zap.String("remote", rawConn.RemoteAddr().String()),
	)

	go conn.writePump()
	go s.reader(conn)
}

// Shutdown closes every live connection and waits until each one has left
// its room, or until ctx is done. Connections accepted afterwards are refused.
func (s *WsServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*clientConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}

	drained := make(chan struct{})
	go func() {
		s.readers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		zap.L().Info("ws.shutdown", zap.Int("closed", len(conns)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	Register(
		s.router,
		"JoinRoom",
		func(ctx context.Context, cc *ConnContext, req JoinRoomRequest) ([]relay.Peer, error) {
			return s.relay.Join(cc.ConnID, req.Room, req.PeerID, req.DisplayName)
		},
	)

	Register(
		s.router,
		"BroadcastMessage",
		func(ctx context.Context, cc *ConnContext, req BroadcastMessageRequest) (AckBody, error) {
			return AckBody{}, s.relay.BroadcastMessage(cc.ConnID, req.Room, req.SenderName, req.Text)
		},
	)

	for call, sig := range signalCalls {
		Register(
			s.router,
			call,
			func(ctx context.Context, cc *ConnContext, req PeerSignalRequest) (AckBody, error) {
				return AckBody{}, s.relay.Signal(cc.ConnID, sig, req.Room, req.PeerID)
			},
		)
	}
}

// track registers conn for Shutdown. It reports false once shutdown has begun.
func (s *WsServer) track(conn *clientConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn.id] = conn
	s.readers.Add(1)
	return true
}

func (s *WsServer) untrack(conn *clientConn) {
	s.mu.Lock()
	delete(s.conns, conn.id)
	s.mu.Unlock()
	s.readers.Done()
}

func (s *WsServer) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" { // non-browser client
		return true
	}
	for _, o := range s.opts.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// reader owns the connection lifecycle: when it returns the connection is
// Closed and its membership is released exactly once.
func (s *WsServer) reader(conn *clientConn) {
	defer func() {
		if m, ok := s.relay.Leave(conn.id); ok {
			zap.L().Debug("ws.left",
				zap.String("conn_id", conn.id),
				zap.String("room", m.Room),
				zap.String("peer_id", m.PeerID),
			)
		}
		conn.close()
		s.untrack(conn)
	}()

	raw := conn.rawConn
	raw.SetReadLimit(s.opts.MaxMessageSize)
	_ = raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(pongWait))
	})

	cc := &ConnContext{ConnID: conn.id, RemoteAddr: raw.RemoteAddr().String()}

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Debug("ws.read", zap.String("conn_id", conn.id), zap.Error(err))
			}
			return // client closed or errored
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = conn.writeJSON(frame{Event: "error", Body: ErrorBody{Error: "malformed_frame"}})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		res, err := s.router.dispatch(ctx, cc, env)
		cancel()

		// ---- error -> {"event":"error", "body":{...}} ---------------
		if err != nil {
			zap.L().Debug("ws.call_rejected",
				zap.String("conn_id", conn.id),
				zap.String("event", env.Event),
				zap.Error(err),
			)
			_ = conn.writeJSON(frame{
				ID:    env.ID,
				Event: "error",
				Body:  ErrorBody{Error: errorCode(err), Request: env.Event},
			})
			continue
		}

		// ---- success -> {"event":"<evt>-ack", "body":{...}} --------
		_ = conn.writeJSON(frame{ID: env.ID, Event: env.Event + "-ack", Body: res})
	}
}

// errorCode turns a handler error into the code reported to the client.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, ErrMalformedBody):
		return "malformed_body"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, relay.ErrInvalidArgument):
		return "invalid_request"
	case errors.Is(err, relay.ErrNotJoined):
		return "not_joined"
	case errors.Is(err, relay.ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, relay.ErrPeerIDTaken):
		return "peer_id_taken"
	case errors.Is(err, relay.ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, relay.ErrUnknownConnection):
		return "connection_closed"
	default:
		return "internal_error"
	}
}
