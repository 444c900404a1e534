package money

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Money 是一个带币种标签的不可变金额，内部以最小单位整数存储
// (BTC 用 satoshi, ETH 用 wei, EUR 用 cent)
//
// 不同币种之间的算术运算是编程错误，直接 panic，
// 而不是返回 error —— 见 mismatch 说明
type Money struct {
	currency Currency
	minor    *big.Int
}

// New 以最小单位构造 Money
func New(c Currency, minor *big.Int) Money {
	if minor == nil {
		minor = big.NewInt(0)
	}
	return Money{currency: c, minor: new(big.Int).Set(minor)}
}

// NewFromInt64 以最小单位 (int64) 构造 Money
func NewFromInt64(c Currency, minor int64) Money {
	return Money{currency: c, minor: big.NewInt(minor)}
}

// Zero 返回指定币种的零值
func Zero(c Currency) Money {
	return Money{currency: c, minor: big.NewInt(0)}
}

// FromMajor 以主单位构造 Money (例如 "1.5" BTC -> 150000000 satoshi)
// 超出精度的小数位会被截断
func FromMajor(c Currency, major decimal.Decimal) Money {
	minor := major.Shift(c.Precision).Truncate(0)
	return Money{currency: c, minor: minor.BigInt()}
}

// ParseMinor 从最小单位的十进制字符串还原 Money (缓存/存储层使用)
func ParseMinor(c Currency, s string) (Money, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Money{}, false
	}
	return Money{currency: c, minor: v}, true
}

// Currency 返回币种
func (m Money) Currency() Currency { return m.currency }

// Minor 返回最小单位数值的副本
func (m Money) Minor() *big.Int {
	if m.minor == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(m.minor)
}

// MinorInt64 返回最小单位数值 (调用方保证不溢出，例如 UTXO 链金额)
func (m Money) MinorInt64() int64 {
	return m.Minor().Int64()
}

// ToMajor 转换为主单位十进制表示
func (m Money) ToMajor() decimal.Decimal {
	return decimal.NewFromBigInt(m.Minor(), -m.currency.Precision)
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.Minor().Sign() == 0 }

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Minor().Sign() > 0 }

// SameCurrency 判断两个金额是否同币种
func (m Money) SameCurrency(o Money) bool { return m.currency.Code == o.currency.Code }

func (m Money) mismatch(op string, o Money) {
	panic(fmt.Sprintf("money: %s on mismatched currencies %s/%s", op, m.currency.Code, o.currency.Code))
}

// Add 同币种相加
func (m Money) Add(o Money) Money {
	if !m.SameCurrency(o) {
		m.mismatch("add", o)
	}
	return Money{currency: m.currency, minor: new(big.Int).Add(m.Minor(), o.Minor())}
}

// Sub 同币种相减 (结果可能为负，由调用方校验)
func (m Money) Sub(o Money) Money {
	if !m.SameCurrency(o) {
		m.mismatch("sub", o)
	}
	return Money{currency: m.currency, minor: new(big.Int).Sub(m.Minor(), o.Minor())}
}

// Cmp 同币种比较: -1 / 0 / 1
func (m Money) Cmp(o Money) int {
	if !m.SameCurrency(o) {
		m.mismatch("cmp", o)
	}
	return m.Minor().Cmp(o.Minor())
}

// LessThan 同币种小于
func (m Money) LessThan(o Money) bool { return m.Cmp(o) < 0 }

// GreaterThan 同币种大于
func (m Money) GreaterThan(o Money) bool { return m.Cmp(o) > 0 }

// MulRate 按汇率换算到另一币种 (rate 为 1 主单位 m.currency 对应的 to 主单位数)
// 用于法币限额换算为加密资产限额
func (m Money) MulRate(to Currency, rate decimal.Decimal) Money {
	major := m.ToMajor().Mul(rate)
	return FromMajor(to, major)
}

// String 格式化为 "<major> <code>"，用于日志与确认项展示
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.ToMajor().String(), m.currency.Code)
}
