package game

import (
	"github.com/wfunc/cat-game/internal/models"
)

// 等级标签定义
const (
	TierKitten = "Kitten"
	TierTeen   = "Teen"
	TierRogue  = "Rogue"
	TierAlpha  = "Alpha"
	TierLegend = "Legend"
)

// tierThreshold 等级阈值表项
type tierThreshold struct {
	Tier     string
	MinTotal int64
}

// tierTable 等级阈值表，按阈值升序排列
var tierTable = []tierThreshold{
	{TierKitten, 0},
	{TierTeen, 30},
	{TierRogue, 60},
	{TierAlpha, 100},
	{TierLegend, 160},
}

// TierFor 按属性总和推导等级
// 取满足 阈值 ≤ total 的最大阈值对应的等级
func TierFor(total int64) string {
	tier := tierTable[0].Tier
	for _, t := range tierTable {
		if total >= t.MinTotal {
			tier = t.Tier
		}
	}
	return tier
}

// Evolve 重算猫的等级，返回等级是否发生变化
// 每次属性变更之后必须调用，幂等
func Evolve(cat *models.Cat) bool {
	old := cat.Tier
	cat.Tier = TierFor(cat.TraitTotal())
	return cat.Tier != old
}
