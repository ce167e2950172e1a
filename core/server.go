package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdelaire/openbot/core/chat"
)

// Server accepts notify requests on a Unix domain socket and sends them
// through the matching platform adapter.
type Server struct {
	socketPath string
	adapters   *Registry
	listener   net.Listener
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewServer creates a socket server that delivers through adapters.
func NewServer(socketPath string, adapters *Registry, logger *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		adapters:   adapters,
		logger:     logger,
	}
}

// Start begins listening. The socket directory is created 0700 and the
// socket itself is 0600. A stale socket with no listener is removed.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	if _, err := os.Stat(s.socketPath); err == nil {
		conn, err := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return fmt.Errorf("another instance is already listening on %s", s.socketPath)
		}
		s.logger.Info("removing stale socket", "path", s.socketPath)
		if err := os.Remove(s.socketPath); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.listener = ln
	s.logger.Info("notify socket listening", "path", s.socketPath)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()
	return nil
}

// Shutdown closes the listener, waits for in-flight connections and removes
// the socket file.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept error", "error", err)
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(ctx, conn)
		}()
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	data, err := io.ReadAll(io.LimitReader(conn, MaxPayloadBytes+1))
	if err != nil {
		s.reply(conn, Response{Error: "read error"})
		return
	}

	req, err := ValidateRequest(data)
	if err != nil {
		s.logger.Warn("invalid request", "error", err)
		s.reply(conn, Response{Error: err.Error()})
		return
	}
	s.reply(conn, s.handle(ctx, req))
}

func (s *Server) handle(ctx context.Context, req *Request) Response {
	switch {
	case req.Notify != nil:
		return s.notify(ctx, req.Notify)
	case req.React != nil:
		return s.react(ctx, req.React)
	case req.Action == ActionPlatforms:
		return Response{OK: true, Platforms: s.adapters.Platforms()}
	}
	return Response{Error: fmt.Sprintf("unknown action %q", req.Action)}
}

func (s *Server) adapter(platform string) (chat.Adapter, *Response) {
	adapter, err := s.adapters.Get(platform)
	if err != nil {
		s.logger.Warn("socket request for unknown platform", "platform", platform)
		return nil, &Response{Error: fmt.Sprintf("platform %q not connected", platform)}
	}
	return adapter, nil
}

func (s *Server) notify(ctx context.Context, p *NotifyPayload) Response {
	adapter, fail := s.adapter(p.Platform)
	if fail != nil {
		return *fail
	}

	id := uuid.NewString()
	var msgID string
	err := chat.Protect(func() error {
		var sendErr error
		msgID, sendErr = adapter.SendText(ctx, p.ChatID, p.Text, chat.SendOptions{ReplyTo: p.ReplyTo})
		return sendErr
	})
	if err != nil {
		s.logger.Error("notify send failed", "id", id, "platform", p.Platform, "chat_id", p.ChatID, "error", err)
		return Response{Error: "delivery failed"}
	}

	s.logger.Info("notification sent", "id", id, "platform", p.Platform, "chat_id", p.ChatID, "source", p.Source)
	return Response{OK: true, ID: id, MessageID: msgID}
}

func (s *Server) react(ctx context.Context, p *ReactPayload) Response {
	adapter, fail := s.adapter(p.Platform)
	if fail != nil {
		return *fail
	}

	id := uuid.NewString()
	err := chat.Protect(func() error {
		return adapter.SendReaction(ctx, p.ChatID, p.MessageID, p.Emoji)
	})
	if err != nil {
		s.logger.Error("reaction failed", "id", id, "platform", p.Platform, "chat_id", p.ChatID, "error", err)
		return Response{Error: "delivery failed"}
	}
	return Response{OK: true, ID: id, MessageID: p.MessageID}
}

func (s *Server) reply(conn net.Conn, resp Response) {
	json.NewEncoder(conn).Encode(resp)
}
