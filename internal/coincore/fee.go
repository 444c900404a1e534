package coincore

import "coincore/pkg/money"

// FeeLevel 手续费档位
type FeeLevel int

const (
	FeeLevelNone FeeLevel = iota
	FeeLevelRegular
	FeeLevelPriority
	FeeLevelCustom
)

func (l FeeLevel) String() string {
	switch l {
	case FeeLevelNone:
		return "NONE"
	case FeeLevelRegular:
		return "REGULAR"
	case FeeLevelPriority:
		return "PRIORITY"
	case FeeLevelCustom:
		return "CUSTOM"
	default:
		return "NONE"
	}
}

// CustomFeeUnset CustomAmount 的未设置哨兵值
const CustomFeeUnset int64 = -1

// FeeSelection 描述当前选中的手续费档位和可选档位
// 契约: SelectedLevel 必须始终包含在 AvailableLevels 中
type FeeSelection struct {
	SelectedLevel   FeeLevel
	AvailableLevels []FeeLevel
	// CustomAmount 自定义费率 (最小单位)，-1 表示未设置
	CustomAmount int64
	// Asset 手续费币种，为 nil 表示与交易资产相同
	// (ERC-20 转账的 gas 用 ETH 支付时不同)
	Asset *money.Currency
}

// NewFeeSelection 返回默认的空手续费选择 (无手续费概念的流程使用)
func NewFeeSelection() FeeSelection {
	return FeeSelection{
		SelectedLevel:   FeeLevelNone,
		AvailableLevels: []FeeLevel{FeeLevelNone},
		CustomAmount:    CustomFeeUnset,
	}
}

// HasLevel 判断档位是否可选
func (f FeeSelection) HasLevel(level FeeLevel) bool {
	for _, l := range f.AvailableLevels {
		if l == level {
			return true
		}
	}
	return false
}

// WithLevels 返回替换档位后的副本
func (f FeeSelection) WithLevels(selected FeeLevel, available ...FeeLevel) FeeSelection {
	out := f
	out.SelectedLevel = selected
	out.AvailableLevels = append([]FeeLevel(nil), available...)
	return out
}
