package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/wfunc/cat-game/internal/config"
	"go.uber.org/zap"
)

// Hub WebSocket连接管理中心
// 会话（聊天房间）即游戏里的conversation，同一用户允许多个连接
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 用户ID到客户端的映射
	userClients map[string][]*Client
	userMu      sync.RWMutex

	// 会话到客户端的映射
	rooms   map[string]map[string]*Client
	roomsMu sync.RWMutex

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	// 消息广播通道
	broadcast chan *Message

	// 入站消息处理器
	handler InboundHandler

	cfg    config.GatewayConfig
	logger *zap.Logger
}

// InboundHandler 入站消息处理器
// 客户端读到的每条消息都交给它分发
type InboundHandler interface {
	HandleInbound(client *Client, msg *Message)
}

// Message WebSocket消息
type Message struct {
	Type string `json:"type"`
	// Room 消息所属会话
	Room string `json:"room,omitempty"`
	// From/FromName 消息来源用户
	From      string          `json:"from,omitempty"`
	FromName  string          `json:"from_name,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// 消息类型
const (
	// 系统消息
	MessageTypeConnected = "connected"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"

	// 聊天消息
	MessageTypeChat = "chat"
	MessageTypeJoin = "join"

	// 游戏指令与结果
	MessageTypeCommand       = "command"
	MessageTypeCommandResult = "command_result"

	// 游戏事件
	MessageTypePassive    = "passive"
	MessageTypeEvolved    = "evolved"
	MessageTypeFishEvent  = "fish_event"
	MessageTypeFishResult = "fish_result"
	MessageTypeDarkNight  = "dark_night"

	// 定向通知（抢劫受害者等）
	MessageTypeNotice = "notice"
)

// NewHub 创建Hub
func NewHub(cfg config.GatewayConfig, logger *zap.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		userClients: make(map[string][]*Client),
		rooms:       make(map[string]map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		cfg:         cfg,
		logger:      logger,
	}
}

// SetHandler 设置入站消息处理器，必须在Run之前调用
func (h *Hub) SetHandler(handler InboundHandler) {
	h.handler = handler
}

// Run 运行Hub
func (h *Hub) Run() {
	go h.runHeartbeat()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	if client.UserID != "" {
		h.userMu.Lock()
		h.userClients[client.UserID] = append(h.userClients[client.UserID], client)
		h.userMu.Unlock()
	}

	if client.Room != "" {
		h.joinRoom(client, client.Room)
	}

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID),
		zap.String("room", client.Room))

	msg := &Message{
		Type:      MessageTypeConnected,
		Room:      client.Room,
		Timestamp: time.Now().Unix(),
		Data:      json.RawMessage(`{"message":"连接成功"}`),
	}
	h.SendToClient(client.ID, msg)
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	if client.UserID != "" {
		h.userMu.Lock()
		clients := h.userClients[client.UserID]
		for i, c := range clients {
			if c.ID == client.ID {
				h.userClients[client.UserID] = append(clients[:i], clients[i+1:]...)
				break
			}
		}
		if len(h.userClients[client.UserID]) == 0 {
			delete(h.userClients, client.UserID)
		}
		h.userMu.Unlock()
	}

	h.leaveRoom(client)

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID))
}

// joinRoom 把客户端加入会话
func (h *Hub) joinRoom(client *Client, room string) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	if client.Room != "" && client.Room != room {
		h.removeFromRoomLocked(client)
	}

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Client)
	}
	h.rooms[room][client.ID] = client
	client.Room = room
}

// leaveRoom 把客户端移出当前会话
func (h *Hub) leaveRoom(client *Client) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	h.removeFromRoomLocked(client)
}

func (h *Hub) removeFromRoomLocked(client *Client) {
	members, ok := h.rooms[client.Room]
	if !ok {
		return
	}
	delete(members, client.ID)
	if len(members) == 0 {
		delete(h.rooms, client.Room)
	}
}

// broadcastMessage 广播消息给所有客户端
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("客户端发送缓冲区满",
				zap.String("client_id", client.ID))
		}
	}
	h.clientsMu.RUnlock()
}

// SendToClient 发送消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	client, ok := h.clients[clientID]
	h.clientsMu.RUnlock()

	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendToUser 发送消息给指定用户的所有客户端
func (h *Hub) SendToUser(userID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.userMu.RLock()
	clients := h.userClients[userID]
	h.userMu.RUnlock()

	if len(clients) == 0 {
		return ErrUserNotConnected
	}

	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("用户客户端发送缓冲区满",
				zap.String("client_id", client.ID),
				zap.String("user_id", userID))
		}
	}

	return nil
}

// SendToRoom 发送消息给会话内的所有客户端
func (h *Hub) SendToRoom(room string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.roomsMu.RLock()
	members := h.rooms[room]
	clients := make([]*Client, 0, len(members))
	for _, c := range members {
		clients = append(clients, c)
	}
	h.roomsMu.RUnlock()

	if len(clients) == 0 {
		return ErrRoomEmpty
	}

	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("会话客户端发送缓冲区满",
				zap.String("client_id", client.ID),
				zap.String("room", room))
		}
	}
	return nil
}

// Broadcast 广播消息
func (h *Hub) Broadcast(message *Message) {
	h.broadcast <- message
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// GetOnlineUsers 获取在线用户列表
func (h *Hub) GetOnlineUsers() []string {
	h.userMu.RLock()
	defer h.userMu.RUnlock()

	users := make([]string, 0, len(h.userClients))
	for userID := range h.userClients {
		users = append(users, userID)
	}
	return users
}

// GetOnlineCount 获取在线人数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// runHeartbeat 心跳广播
func (h *Hub) runHeartbeat() {
	interval := h.cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		<-ticker.C
		ping := &Message{
			Type:      MessageTypePing,
			Timestamp: time.Now().Unix(),
		}
		h.broadcast <- ping
	}
}

// dispatch 把入站消息交给处理器
func (h *Hub) dispatch(client *Client, msg *Message) {
	if h.handler == nil {
		return
	}
	h.handler.HandleInbound(client, msg)
}
