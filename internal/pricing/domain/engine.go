// Package domain 包含定价与决策引擎的领域模型
package domain

import (
	"math"
)

// EvaluateInput 定价引擎输入
type EvaluateInput struct {
	// 信号源概率（0-1，超出范围会被截断）
	SignalProbability float64
	// 执行端市场价格
	MarketPrice float64
	// 距到期天数（负数按 0 处理）
	DaysToExpiry int
	// 年化无风险利率，允许为负
	RiskFreeRate float64
	// 套利阈值，价差严格大于该值才触发交易
	Threshold float64
}

// Decision 定价引擎输出
// 携带全部输入以便审计和日志
type Decision struct {
	Input     EvaluateInput
	FairValue float64
	Spread    float64
	Trade     bool
}

// Evaluate 计算收益率调整后的公允价值、套利价差与交易决策
/// 公式: fair = p * (1 + r * d / 365)，单利 365 天计息
// 纯函数，无状态，任何输入都不会报错：越界输入被规整而不是拒绝
func Evaluate(input EvaluateInput) Decision {
	p := clamp01(sanitize(input.SignalProbability))

	d := input.DaysToExpiry
	if d < 0 {
		d = 0
	}

	r := sanitize(input.RiskFreeRate)

	// 短期合约用单利而非复利
	fair := p * (1 + r*float64(d)/365)

	// 概率类标的不可能超过确定性，收益率调整之后再截断
	fair = clamp01(fair)

	spread := fair - sanitize(input.MarketPrice)

	// 只评估 BUY 方向：正价差代表执行端定价偏低
	// 价差恰好等于阈值不触发，严格大于是有意为之的无交易区
	trade := spread > input.Threshold

	return Decision{
		Input:     input,
		FairValue: fair,
		Spread:    spread,
		Trade:     trade,
	}
}

// clamp01 截断到 [0, 1]
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// sanitize 将非有限值规整为 0
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
