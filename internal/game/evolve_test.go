package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wfunc/cat-game/internal/models"
)

// TestTierFor 测试属性总和到等级的映射
func TestTierFor(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		tier  string
	}{
		{"零总和", 0, TierKitten},
		{"阈值前一点", 29, TierKitten},
		{"少年阈值", 30, TierTeen},
		{"游侠阈值", 60, TierRogue},
		{"首领阈值", 100, TierAlpha},
		{"传奇阈值", 160, TierLegend},
		{"远超最高阈值", 1000, TierLegend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.tier, TierFor(tt.total))
		})
	}
}

// TestTierForMonotonic 测试等级映射随总和单调不降
func TestTierForMonotonic(t *testing.T) {
	rank := map[string]int{
		TierKitten: 0,
		TierTeen:   1,
		TierRogue:  2,
		TierAlpha:  3,
		TierLegend: 4,
	}

	prev := rank[TierFor(0)]
	for total := int64(1); total <= 200; total++ {
		cur := rank[TierFor(total)]
		assert.GreaterOrEqual(t, cur, prev, "总和 %d 处等级回退", total)
		prev = cur
	}
}

// TestEvolve 测试进化只在等级变化时报告
func TestEvolve(t *testing.T) {
	cat := &models.Cat{
		Aggression:   1,
		Intelligence: 1,
		Luck:         1,
		Charm:        1,
		Tier:         TierKitten,
	}

	// 总和4，仍是幼猫，不报告进化
	assert.False(t, Evolve(cat))
	assert.Equal(t, TierKitten, cat.Tier)

	// 总和越过少年阈值
	cat.Aggression = 27
	assert.True(t, Evolve(cat))
	assert.Equal(t, TierTeen, cat.Tier)

	// 同一总和重复调用是幂等的
	assert.False(t, Evolve(cat))
	assert.Equal(t, TierTeen, cat.Tier)

	// 直接跳到传奇
	cat.Luck = 200
	assert.True(t, Evolve(cat))
	assert.Equal(t, TierLegend, cat.Tier)
}
