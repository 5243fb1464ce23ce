package websocket

import (
	"context"
	"encoding/json"
	"time"
)

// HubNotifier 通过WebSocket连接给用户发定向通知
// 实现game.Notifier，用户不在线时返回错误，由调用方按尽力而为处理
type HubNotifier struct {
	hub *Hub
}

// NewHubNotifier 创建通知器
func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

// NotifyUser 给用户的所有在线连接发通知
func (n *HubNotifier) NotifyUser(_ context.Context, userID, message string) error {
	data, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return err
	}
	return n.hub.SendToUser(userID, &Message{
		Type:      MessageTypeNotice,
		Timestamp: time.Now().Unix(),
		Data:      data,
	})
}
