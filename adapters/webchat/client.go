package webchat

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 16 << 10
	sendBuffer = 64
)

type client struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	userID string
	chatID string
}

func (c *client) sendFrame(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.server.logger.Error("webchat marshal failed", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.server.logger.Warn("webchat send buffer full, frame dropped", "user_id", c.userID, "chat_id", c.chatID)
	}
}

func (c *client) readPump() {
	defer func() {
		c.server.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Info("webchat client disconnected", "user_id", c.userID, "error", err)
			}
			return
		}
		c.server.receive(c, data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
