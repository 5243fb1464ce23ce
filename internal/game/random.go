package game

import (
	"crypto/rand"
	"math/big"
)

// RandomGenerator 随机数生成器接口
// 引擎内所有随机决策都经过该接口，测试时可注入确定性实现
type RandomGenerator interface {
	// NextInt 返回[min, max]闭区间内的随机整数
	NextInt(min, max int64) int64
	// NextFloat 返回[0, 1)内的随机浮点数
	NextFloat() float64
}

// cryptoRandomGenerator 基于crypto/rand的实现
type cryptoRandomGenerator struct{}

// NewCryptoRandomGenerator 创建加密级随机数生成器
func NewCryptoRandomGenerator() RandomGenerator {
	return &cryptoRandomGenerator{}
}

// NextInt 返回[min, max]闭区间内的随机整数
func (g *cryptoRandomGenerator) NextInt(min, max int64) int64 {
	if max <= min {
		return min
	}
	diff := big.NewInt(max - min + 1)
	n, err := rand.Int(rand.Reader, diff)
	if err != nil {
		return min
	}
	return min + n.Int64()
}

// NextFloat 返回[0, 1)内的随机浮点数
func (g *cryptoRandomGenerator) NextFloat() float64 {
	const precision = 1 << 53
	n, err := rand.Int(rand.Reader, big.NewInt(precision))
	if err != nil {
		return 0
	}
	return float64(n.Int64()) / float64(precision)
}
