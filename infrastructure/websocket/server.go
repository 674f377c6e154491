package websocket

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/services"
	"chat-relay/sink"
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
)

type Options struct {
	ConnectionBufferSize int
	WriteTimeout         time.Duration
	PongWait             time.Duration
	MaxMessageBytes      int64
}

// Server upgrades HTTP requests and runs one read and one write pump per peer.
// A peer missing pongs for PongWait is dropped, which runs its close transition.
type Server struct {
	log      *slog.Logger
	service  services.IChatService
	opts     Options
	upgrader gorilla.Upgrader

	mu    sync.Mutex
	conns map[*gorilla.Conn]struct{}
	wg    sync.WaitGroup
}

func NewServer(log *slog.Logger, service services.IChatService, opts Options) *Server {
	return &Server{
		log:     log,
		service: service,
		opts:    opts,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*gorilla.Conn]struct{}),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.track(conn)
	defer s.untrack(conn)

	out := sink.NewConnectionSink(s.opts.ConnectionBufferSize)
	connection := s.service.Connect(out)
	log := s.log.With("connection_id", connection.ID())
	log.Debug("Connection opened", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(ctx, log, conn, out)
	}()

	s.readPump(ctx, log, conn, connection, out)

	cancel()
	<-writerDone
	if err := connection.Close(context.Background()); err != nil {
		log.Error("Close transition failed", "error", err)
	}
	log.Debug("Connection closed")
}

func (s *Server) readPump(ctx context.Context, log *slog.Logger, conn *gorilla.Conn,
	connection services.IConnection, out *sink.ConnectionSink) {
	conn.SetReadLimit(s.opts.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseGoingAway, gorilla.CloseNormalClosure) {
				log.Warn("Connection lost", "error", err)
			}
			return
		}

		cmd, typ, err := DecodeCommand(data)
		if err != nil {
			log.Warn("Invalid frame ignored", "type", typ, "error", err)
			if typ == TypeJoin {
				_ = out.Consume(ctx, event.JoinError{Reason: errors.ReasonInvalidPayload})
			}
			continue
		}
		if cmd == nil {
			log.Debug("Unknown frame type ignored", "type", typ)
			continue
		}
		if err := connection.Handle(ctx, cmd); err != nil && !stderrors.Is(err, errors.ErrConnectionClosed) {
			log.Debug("Command rejected", "command", cmd.Name(), "error", err)
		}
	}
}

// writePump is the only writer of conn besides close control frames.
func (s *Server) writePump(ctx context.Context, log *slog.Logger, conn *gorilla.Conn, out *sink.ConnectionSink) {
	ticker := time.NewTicker(s.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-out.Overflow():
			log.Warn("Slow consumer disconnected")
			s.closeFrame(conn, gorilla.ClosePolicyViolation, "too slow")
			return
		case e := <-out.Events():
			data, err := EncodeEvent(e)
			if err != nil {
				log.Error("Failed to encode event", "event", e.Type(), "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(gorilla.TextMessage, data); err != nil {
				log.Warn("Failed to push event", "event", e.Type(), "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(gorilla.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Shutdown sends a close frame to every peer and waits for their close
// transitions to complete, or for ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.conns {
		s.closeFrame(conn, gorilla.CloseGoingAway, "server shutdown")
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) closeFrame(conn *gorilla.Conn, code int, text string) {
	msg := gorilla.FormatCloseMessage(code, text)
	_ = conn.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(s.opts.WriteTimeout))
}

func (s *Server) track(conn *gorilla.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wg.Add(1)
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn *gorilla.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
	s.wg.Done()
}
