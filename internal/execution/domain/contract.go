// Package domain 执行上下文领域模型
// ForecastEx 二元合约在经纪商侧建模为合成标的上的期权。
package domain

import (
	"fmt"
	"strings"
	"sync"
)

// ContractRight 期权方向，Yes 合约为 Call，No 合约为 Put
type ContractRight string

const (
	RightCall ContractRight = "C"
	RightPut  ContractRight = "P"
)

// InstrumentDescriptor 经纪商下单所需的完整合约描述，值对象
type InstrumentDescriptor struct {
	SymbolRoot string
	SecType    string
	Exchange   string
	Currency   string
	Right      ContractRight
	Strike     float64
	// Expiry 到期日，YYYYMMDD
	Expiry string
}

// LocalSymbol 人类可读的合约标识
func (d InstrumentDescriptor) LocalSymbol() string {
	return fmt.Sprintf("%s %s %.1f %s", d.SymbolRoot, d.Expiry, d.Strike, d.Right)
}

// ErrUnknownMarket 描述无法映射到已知合约
var ErrUnknownMarket = fmt.Errorf("unknown market description")

// symbolRootMap 市场描述到合约根代码的静态映射
var symbolRootMap = map[string]string{
	"US CPI YoY":    "USCPI",
	"BTC Quarterly": "BTCQ",
}

// ContractFactory 将人类可读的市场描述解析为合约描述符并缓存
type ContractFactory struct {
	mu    sync.RWMutex
	cache map[string]InstrumentDescriptor
}

func NewContractFactory() *ContractFactory {
	return &ContractFactory{cache: make(map[string]InstrumentDescriptor)}
}

// Resolve 解析市场描述为合约描述符
// description 如 "US CPI YoY"；expiryDate 为 YYYY-MM-DD，转换为 YYYYMMDD；
// isYes 为真取 Call，否则取 Put。未知描述返回 ErrUnknownMarket。
func (f *ContractFactory) Resolve(description string, strike float64, expiryDate string, isYes bool) (InstrumentDescriptor, error) {
	symbolRoot, ok := symbolRootMap[description]
	if !ok {
		return InstrumentDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownMarket, description)
	}

	expiry := strings.ReplaceAll(expiryDate, "-", "")
	right := RightPut
	if isYes {
		right = RightCall
	}

	key := fmt.Sprintf("%s-%v-%s-%s", symbolRoot, strike, expiry, right)

	f.mu.RLock()
	cached, hit := f.cache[key]
	f.mu.RUnlock()
	if hit {
		return cached, nil
	}

	desc := InstrumentDescriptor{
		SymbolRoot: symbolRoot,
		SecType:    "OPT",
		Exchange:   "FORECASTX",
		Currency:   "USD",
		Right:      right,
		Strike:     strike,
		Expiry:     expiry,
	}

	f.mu.Lock()
	f.cache[key] = desc
	f.mu.Unlock()
	return desc, nil
}
