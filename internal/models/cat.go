package models

import (
	"time"
)

// 属性名定义
const (
	TraitAggression   = "aggression"
	TraitIntelligence = "intelligence"
	TraitLuck         = "luck"
	TraitCharm        = "charm"
)

// TraitNames 四项固定属性，顺序固定（随机选取时按此下标）
var TraitNames = []string{TraitAggression, TraitIntelligence, TraitLuck, TraitCharm}

// Cat 猫实体表（每个用户一只，按平台用户ID作主键）
type Cat struct {
	UserID string `gorm:"primaryKey;size:64" json:"user_id"`
	Name   string `gorm:"size:100" json:"name"`

	// 经济资源，coins在任何成功变更之后不得为负
	Coins int64 `gorm:"not null;default:0" json:"coins"`
	Fish  int64 `gorm:"not null;default:0" json:"fish"`

	// 成长，xp单调不减
	XP     int64 `gorm:"not null;default:0" json:"xp"`
	Kills  int64 `gorm:"not null;default:0" json:"kills"`
	Deaths int64 `gorm:"not null;default:0" json:"deaths"`

	// 会员标记，影响费率与上限
	Premium bool `gorm:"not null;default:false" json:"premium"`

	// 四项属性（原dna），每项≥1，只增不减
	Aggression   int64 `gorm:"not null;default:1" json:"aggression"`
	Intelligence int64 `gorm:"not null;default:1" json:"intelligence"`
	Luck         int64 `gorm:"not null;default:1" json:"luck"`
	Charm        int64 `gorm:"not null;default:1" json:"charm"`

	// 等级标签，由属性总和推导，不允许调用方直接设置
	Tier string `gorm:"size:50" json:"tier"`

	// 被动挂机冷却用的最近活跃时间
	LastActivityAt time.Time `json:"last_activity_at"`

	// 保护期与每日领取
	ProtectedUntil   *time.Time `json:"protected_until,omitempty"`
	LastDailyClaimAt *time.Time `json:"last_daily_claim_at,omitempty"`

	// 乐观锁版本号，Save时按版本条件更新
	Version int64 `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定Cat表名
func (Cat) TableName() string {
	return "cats"
}

// Trait 按名称读取属性值
func (c *Cat) Trait(name string) int64 {
	switch name {
	case TraitAggression:
		return c.Aggression
	case TraitIntelligence:
		return c.Intelligence
	case TraitLuck:
		return c.Luck
	case TraitCharm:
		return c.Charm
	}
	return 0
}

// AddTrait 按名称增加属性值
func (c *Cat) AddTrait(name string, delta int64) {
	switch name {
	case TraitAggression:
		c.Aggression += delta
	case TraitIntelligence:
		c.Intelligence += delta
	case TraitLuck:
		c.Luck += delta
	case TraitCharm:
		c.Charm += delta
	}
}

// TraitTotal 属性总和，等级按此推导
func (c *Cat) TraitTotal() int64 {
	return c.Aggression + c.Intelligence + c.Luck + c.Charm
}

// Traits 属性快照
func (c *Cat) Traits() map[string]int64 {
	return map[string]int64{
		TraitAggression:   c.Aggression,
		TraitIntelligence: c.Intelligence,
		TraitLuck:         c.Luck,
		TraitCharm:        c.Charm,
	}
}

// IsProtected 是否处于保护期
func (c *Cat) IsProtected(now time.Time) bool {
	return c.ProtectedUntil != nil && c.ProtectedUntil.After(now)
}
