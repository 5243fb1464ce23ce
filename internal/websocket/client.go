package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrClientNotFound   = errors.New("客户端未找到")
	ErrUserNotConnected = errors.New("用户未连接")
	ErrRoomEmpty        = errors.New("会话内没有客户端")
	ErrSendBufferFull   = errors.New("发送缓冲区已满")
	ErrInvalidMessage   = errors.New("无效的消息格式")
)

// Client WebSocket客户端
type Client struct {
	ID     string // 客户端ID
	UserID string // 聊天平台侧用户ID
	Name   string // 猫的显示名
	Room   string // 当前所在会话
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn, userID, name, room string) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Name:   name,
		Room:   room,
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}
}

// ReadPump 读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	maxSize := c.Hub.cfg.MaxMessageSize
	if maxSize <= 0 {
		maxSize = 64 * 1024
	}
	pongWait := c.Hub.cfg.PongTimeout
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}

	c.Conn.SetReadLimit(maxSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			break
		}

		c.handleMessage(raw)
	}
}

// WritePump 写入消息
func (c *Client) WritePump() {
	writeWait := c.Hub.cfg.WriteTimeout
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	pingPeriod := c.Hub.cfg.PingInterval
	if pingPeriod <= 0 {
		pingPeriod = 30 * time.Second
	}

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 解析入站消息并交给Hub分发
func (c *Client) handleMessage(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.Hub.logger.Warn("解析消息失败",
			zap.String("client_id", c.ID),
			zap.Error(err))
		c.SendError("无效的消息格式")
		return
	}

	// 来源字段由连接身份填充，不信任客户端自报的值
	msg.From = c.UserID
	msg.FromName = c.Name
	if msg.Room == "" {
		msg.Room = c.Room
	}

	c.Hub.dispatch(c, &msg)
}

// SendMessage 发送消息给本客户端
func (c *Client) SendMessage(msg *Message) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.Send <- data:
	default:
		c.Hub.logger.Warn("客户端发送缓冲区满",
			zap.String("client_id", c.ID))
	}
}

// SendError 发送错误消息给本客户端
func (c *Client) SendError(text string) {
	data, _ := json.Marshal(map[string]string{"message": text})
	c.SendMessage(&Message{
		Type: MessageTypeError,
		Data: data,
	})
}
