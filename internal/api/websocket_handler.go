package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/cat-game/internal/config"
	"github.com/wfunc/cat-game/internal/middleware"
	ws "github.com/wfunc/cat-game/internal/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler 聊天网关握手处理器
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub *ws.Hub, cfg config.GatewayConfig, logger *zap.Logger) *WebSocketHandler {
	readBuf := cfg.ReadBufferSize
	if readBuf <= 0 {
		readBuf = 1024
	}
	writeBuf := cfg.WriteBufferSize
	if writeBuf <= 0 {
		writeBuf = 1024
	}

	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    readBuf,
			WriteBufferSize:   writeBuf,
			EnableCompression: cfg.EnableCompression,
			CheckOrigin: func(r *http.Request) bool {
				// 网关面向已签发令牌的客户端，不做Origin白名单
				return true
			},
		},
		logger: logger,
	}
}

// ChatWebSocket 建立聊天连接
// 身份来自认证中间件，会话从query参数room读取
func (h *WebSocketHandler) ChatWebSocket(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "NO_TOKEN",
			"message": "缺少认证信息",
		})
		return
	}

	room := c.Query("room")
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "MISSING_ROOM",
			"message": "缺少room参数",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, userID, middleware.GetUserName(c), room)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("聊天连接建立",
		zap.String("client_id", client.ID),
		zap.String("user_id", userID),
		zap.String("room", room))
}

// GetOnlineCount 查询在线人数
func (h *WebSocketHandler) GetOnlineCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online_count": h.hub.GetOnlineCount(),
		"online_users": h.hub.GetOnlineUsers(),
	})
}
