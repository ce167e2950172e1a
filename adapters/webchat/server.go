// Package webchat is a local chat platform served over WebSocket. Each
// room is a group chat; every connected browser in a room sees the room's
// messages and the bot's replies.
package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jdelaire/openbot/core/chat"
)

const (
	platform    = "webchat"
	defaultRoom = "lobby"
)

// Server is the webchat adapter. It implements chat.Adapter and
// chat.Receiver.
type Server struct {
	listen   string
	admins   []string
	handler  chat.Handler
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
	ctx   context.Context
}

// New creates a webchat server. admins are the user ids treated as group
// admins in every room.
func New(listen string, admins []string, handler chat.Handler, logger *slog.Logger) *Server {
	return &Server{
		listen:  listen,
		admins:  admins,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]map[*client]struct{}),
		ctx:   context.Background(),
	}
}

func (s *Server) Platform() string { return platform }

// Handler serves the WebSocket endpoint at /ws. Clients pick their identity
// and room with the user and room query parameters.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start listens until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	srv := &http.Server{Addr: s.listen, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("webchat listening", "addr", s.listen)

	select {
	case err := <-errc:
		return fmt.Errorf("webchat listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webchat shutdown: %w", err)
	}
	s.closeAll()
	s.logger.Info("webchat stopped")
	return nil
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(r.URL.Query().Get("user"))
	if user == "" {
		http.Error(w, "user is required", http.StatusBadRequest)
		return
	}
	room := strings.TrimSpace(r.URL.Query().Get("room"))
	if room == "" {
		room = defaultRoom
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("webchat upgrade failed", "error", err)
		return
	}

	c := &client{server: s, conn: conn, send: make(chan []byte, sendBuffer), userID: user, chatID: room}
	s.join(c)
	c.sendFrame(Frame{Type: frameWelcome, UserID: user, ChatID: room})

	go c.writePump()
	go c.readPump()
}

func (s *Server) join(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[c.chatID] == nil {
		s.rooms[c.chatID] = make(map[*client]struct{})
	}
	s.rooms[c.chatID][c] = struct{}{}
	s.logger.Debug("webchat client joined", "user_id", c.userID, "chat_id", c.chatID)
}

func (s *Server) leave(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.rooms[c.chatID]
	if !ok {
		return
	}
	if _, ok := members[c]; !ok {
		return
	}
	delete(members, c)
	close(c.send)
	if len(members) == 0 {
		delete(s.rooms, c.chatID)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for room, members := range s.rooms {
		for c := range members {
			close(c.send)
		}
		delete(s.rooms, room)
	}
}

func (s *Server) broadcast(chatID string, f Frame) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.rooms[chatID]
	for c := range members {
		c.sendFrame(f)
	}
	return len(members)
}

// receive turns a client frame into an inbound message. The message is
// echoed to the room first so other members see it.
func (s *Server) receive(c *client, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil || f.Type != frameMessage {
		c.sendFrame(Frame{Type: frameError, Text: "expected a message frame"})
		return
	}
	if f.Text == "" && f.Sticker == "" {
		return
	}

	id := uuid.NewString()
	s.broadcast(c.chatID, Frame{
		Type:     frameMessage,
		ID:       id,
		ChatID:   c.chatID,
		SenderID: c.userID,
		Text:     f.Text,
		ReplyTo:  f.ReplyTo,
		Sticker:  f.Sticker,
	})

	msg := chat.Message{
		Platform:   platform,
		ChatID:     c.chatID,
		SenderID:   c.userID,
		SenderName: c.userID,
		Text:       f.Text,
		IsGroup:    true,
		QuotedID:   f.ReplyTo,
		AnchorID:   id,
		Timestamp:  time.Now(),
	}
	if f.Sticker != "" {
		msg.Media = &chat.Media{Kind: "sticker", ID: f.Sticker}
	}

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	s.handler(ctx, msg)
}

func (s *Server) SendText(_ context.Context, chatID, text string, opts chat.SendOptions) (string, error) {
	id := uuid.NewString()
	s.broadcast(chatID, Frame{Type: frameMessage, ID: id, ChatID: chatID, SenderID: botSender, Text: text, ReplyTo: opts.ReplyTo})
	return id, nil
}

func (s *Server) SendReaction(_ context.Context, chatID, messageID, emoji string) error {
	s.broadcast(chatID, Frame{Type: frameReaction, ChatID: chatID, MessageID: messageID, Emoji: emoji})
	return nil
}

func (s *Server) SendMedia(_ context.Context, chatID string, media chat.Media, opts chat.SendOptions) (string, error) {
	id := uuid.NewString()
	s.broadcast(chatID, Frame{
		Type:     frameMedia,
		ID:       id,
		ChatID:   chatID,
		SenderID: botSender,
		Kind:     media.Kind,
		URL:      media.URL,
		Sticker:  media.ID,
		Caption:  media.Caption,
		ReplyTo:  opts.ReplyTo,
	})
	return id, nil
}

func (s *Server) IsGroupAdmin(_ context.Context, _, userID string) (bool, error) {
	return chat.ContainsID(s.admins, userID), nil
}
