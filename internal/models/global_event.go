package models

import (
	"time"
)

// GlobalEventKeyDarkNight 暗夜事件的固定单例键
const GlobalEventKeyDarkNight = "dark_night"

// GlobalEvent 全局限时事件单例表
type GlobalEvent struct {
	Key         string    `gorm:"primaryKey;size:32" json:"key"`
	ActiveUntil time.Time `json:"active_until"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定GlobalEvent表名
func (GlobalEvent) TableName() string {
	return "global_events"
}

// IsActive 事件是否处于激活窗口内
func (e *GlobalEvent) IsActive(now time.Time) bool {
	return now.Before(e.ActiveUntil)
}
