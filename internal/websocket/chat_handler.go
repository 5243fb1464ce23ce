package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/wfunc/cat-game/internal/errors"
	"github.com/wfunc/cat-game/internal/game"
	"go.uber.org/zap"
)

// ChatHandler 聊天网关与游戏引擎之间的适配层
// 会话内的普通聊天驱动被动触发与鱼事件，指令消息映射到引擎动作
type ChatHandler struct {
	engine *game.Engine
	hub    *Hub
	logger *zap.Logger
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(engine *game.Engine, hub *Hub, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		engine: engine,
		hub:    hub,
		logger: logger,
	}
}

// chatPayload 聊天消息体
type chatPayload struct {
	Text string `json:"text"`
}

// commandPayload 指令消息体
type commandPayload struct {
	Action     string `json:"action"`
	Target     string `json:"target,omitempty"`
	TargetName string `json:"target_name,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// joinPayload 切换会话消息体
type joinPayload struct {
	Room string `json:"room"`
}

// HandleInbound 分发入站消息
func (h *ChatHandler) HandleInbound(client *Client, msg *Message) {
	switch msg.Type {
	case MessageTypeChat:
		h.handleChat(client, msg)
	case MessageTypeCommand:
		h.handleCommand(client, msg)
	case MessageTypeJoin:
		h.handleJoin(client, msg)
	case MessageTypePong, MessageTypePing:
		// 心跳由底层协议处理
	default:
		client.SendError("未知的消息类型: " + msg.Type)
	}
}

// handleChat 会话内普通聊天
// 先尝试结算待处理的鱼事件，未消耗时落入被动触发
func (h *ChatHandler) handleChat(client *Client, msg *Message) {
	var payload chatPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil || strings.TrimSpace(payload.Text) == "" {
		return
	}

	ctx := context.Background()
	room := msg.Room

	// 聊天消息先回显给会话内所有人
	h.sendToRoom(room, &Message{
		Type:     MessageTypeChat,
		Room:     room,
		From:     client.UserID,
		FromName: client.Name,
		Data:     mustMarshal(payload),
	})

	fish, err := h.engine.FishReply(ctx, client.UserID, client.Name, room, payload.Text)
	if err != nil {
		h.logger.Warn("鱼事件结算失败",
			zap.String("user_id", client.UserID),
			zap.Error(err))
		client.SendError("鱼事件结算失败，请再试一次")
		return
	}
	if fish.Consumed {
		h.sendToRoom(room, &Message{
			Type:     MessageTypeFishResult,
			Room:     room,
			From:     client.UserID,
			FromName: client.Name,
			Data:     mustMarshal(fish),
		})
		if fish.Evolved {
			h.announceEvolution(room, client, fish.Tier)
		}
		return
	}

	out, err := h.engine.Passive(ctx, client.UserID, client.Name, room)
	if err != nil {
		h.logger.Warn("被动触发失败",
			zap.String("user_id", client.UserID),
			zap.Error(err))
		return
	}
	if !out.Fired {
		return
	}

	h.sendToRoom(room, &Message{
		Type:     MessageTypePassive,
		Room:     room,
		From:     client.UserID,
		FromName: client.Name,
		Data:     mustMarshal(out),
	})

	if out.Evolved {
		h.announceEvolution(room, client, out.Tier)
	}

	if out.FishEventOpened {
		h.sendToRoom(room, &Message{
			Type: MessageTypeFishEvent,
			Room: room,
			Data: json.RawMessage(`{"message":"一条鱼出现了！eat / save / share ?"}`),
		})
	}

	if out.DarkNightStarted {
		h.hub.Broadcast(&Message{
			Type:      MessageTypeDarkNight,
			Timestamp: time.Now().Unix(),
			Data:      json.RawMessage(`{"message":"暗夜降临了"}`),
		})
	}
}

// handleCommand 游戏指令
func (h *ChatHandler) handleCommand(client *Client, msg *Message) {
	var cmd commandPayload
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		client.SendError("无效的指令格式")
		return
	}

	ctx := context.Background()

	var (
		result interface{}
		err    error
	)

	switch cmd.Action {
	case "daily":
		result, err = h.engine.Daily(ctx, client.UserID, client.Name)
	case "give":
		result, err = h.engine.Give(ctx, client.UserID, client.Name, cmd.Target, cmd.TargetName, cmd.Amount)
	case "rob":
		result, err = h.engine.Rob(ctx, client.UserID, client.Name, cmd.Target, cmd.TargetName)
	case "kill":
		result, err = h.engine.Kill(ctx, client.UserID, client.Name, cmd.Target, cmd.TargetName)
	case "protect":
		result, err = h.engine.Protect(ctx, client.UserID, client.Name)
	case "profile":
		result, err = h.engine.Profile(ctx, client.UserID, client.Name)
	case "balance":
		var coins int64
		coins, err = h.engine.Balance(ctx, client.UserID, client.Name)
		result = map[string]int64{"coins": coins}
	case "top_coins":
		result, err = h.engine.TopCoins(ctx, cmd.Limit)
	case "top_kills":
		result, err = h.engine.TopKills(ctx, cmd.Limit)
	default:
		client.SendError("未知的指令: " + cmd.Action)
		return
	}

	if err != nil {
		h.sendCommandError(client, cmd.Action, err)
		return
	}

	client.SendMessage(&Message{
		Type: MessageTypeCommandResult,
		Room: msg.Room,
		Data: mustMarshal(map[string]interface{}{
			"action": cmd.Action,
			"ok":     true,
			"result": result,
		}),
	})
}

// handleJoin 切换会话
func (h *ChatHandler) handleJoin(client *Client, msg *Message) {
	var payload joinPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Room == "" {
		client.SendError("无效的会话")
		return
	}

	h.hub.joinRoom(client, payload.Room)
	client.SendMessage(&Message{
		Type: MessageTypeJoin,
		Room: payload.Room,
	})
}

// sendCommandError 把引擎错误按分类回给客户端
func (h *ChatHandler) sendCommandError(client *Client, action string, err error) {
	code := apperrors.CodeOf(err)
	message := err.Error()
	if appErr, ok := err.(*apperrors.AppError); ok {
		message = appErr.Message
		if appErr.Details != "" {
			message = message + ": " + appErr.Details
		}
	}

	// 存储类瞬时错误只告知重试，不暴露内部细节
	if apperrors.IsRetryable(err) {
		message = "系统繁忙，请稍后再试"
	} else {
		h.logger.Debug("指令被拒绝",
			zap.String("action", action),
			zap.String("user_id", client.UserID),
			zap.Error(err))
	}

	client.SendMessage(&Message{
		Type: MessageTypeCommandResult,
		Data: mustMarshal(map[string]interface{}{
			"action":  action,
			"ok":      false,
			"code":    code,
			"message": message,
		}),
	})
}

// announceEvolution 向会话宣布进化
func (h *ChatHandler) announceEvolution(room string, client *Client, tier string) {
	h.sendToRoom(room, &Message{
		Type:     MessageTypeEvolved,
		Room:     room,
		From:     client.UserID,
		FromName: client.Name,
		Data:     mustMarshal(map[string]string{"tier": tier}),
	})
}

// sendToRoom 发送消息到会话，房间为空时直接丢弃不投递
func (h *ChatHandler) sendToRoom(room string, msg *Message) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	if room == "" {
		return
	}
	if err := h.hub.SendToRoom(room, msg); err != nil {
		h.logger.Debug("会话消息发送失败",
			zap.String("room", room),
			zap.Error(err))
	}
}

// mustMarshal 序列化消息体，失败时返回空对象
func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
