package game

import (
	"time"

	"github.com/wfunc/cat-game/internal/models"
)

// PassiveOutcome 被动消息触发结果
type PassiveOutcome struct {
	// Fired 是否越过冷却窗口真正触发了一次结算
	Fired bool `json:"fired"`
	// XPGained 本次获得的经验
	XPGained int64 `json:"xp_gained"`
	// TraitRaised 本次随机提升的属性名
	TraitRaised string `json:"trait_raised,omitempty"`
	// Evolved 等级是否提升，用于一次性进化通知
	Evolved bool   `json:"evolved"`
	Tier    string `json:"tier,omitempty"`
	// FishEventOpened 是否在本会话开启了鱼事件
	FishEventOpened bool `json:"fish_event_opened"`
	// DarkNightStarted 是否开启了暗夜全局事件窗口
	DarkNightStarted bool `json:"dark_night_started"`
}

// DailyOutcome 每日奖励结果
type DailyOutcome struct {
	Reward int64 `json:"reward"`
	Coins  int64 `json:"coins"`
}

// GiveOutcome 转账结果
type GiveOutcome struct {
	// Amount 对方收到的金额
	Amount int64 `json:"amount"`
	// Fee 额外扣除的手续费
	Fee int64 `json:"fee"`
	// SenderCoins 转账后发送方余额
	SenderCoins int64 `json:"sender_coins"`
}

// RobOutcome 抢劫结果
type RobOutcome struct {
	// Amount 从受害者扣除的全额
	Amount int64 `json:"amount"`
	// Tax 被销毁的税额
	Tax int64 `json:"tax"`
	// Net 抢劫者实际入账金额
	Net int64 `json:"net"`
	// VictimName 受害者名字
	VictimName string `json:"victim_name"`
}

// KillOutcome 战斗结果
type KillOutcome struct {
	Reward  int64  `json:"reward"`
	Evolved bool   `json:"evolved"`
	Tier    string `json:"tier,omitempty"`
}

// ProtectOutcome 购买保护结果
type ProtectOutcome struct {
	Cost           int64     `json:"cost"`
	ProtectedUntil time.Time `json:"protected_until"`
}

// ProfileOutcome 档案快照
type ProfileOutcome struct {
	Cat  *models.Cat `json:"cat"`
	Rank int         `json:"rank"`
}

// FishOutcome 鱼事件结算结果
type FishOutcome struct {
	// Consumed 事件是否被本条消息消耗
	Consumed bool `json:"consumed"`
	// Choice 命中的关键词（eat/save/share）
	Choice  string `json:"choice,omitempty"`
	Evolved bool   `json:"evolved"`
	Tier    string `json:"tier,omitempty"`
}

// 鱼事件关键词，按优先级顺序匹配
const (
	FishChoiceEat   = "eat"
	FishChoiceSave  = "save"
	FishChoiceShare = "share"
)
