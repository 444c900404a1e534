package money

// Currency 描述一种资产: 代码 + 最小单位精度
// 加密资产与法币共用同一个类型，通过 IsFiat 区分
type Currency struct {
	Code      string // BTC, ETH, EUR...
	Precision int32  // 最小单位精度 (BTC=8, ETH=18, EUR=2)
	IsFiat    bool
	// L1Chain 表示手续费所在的链资产 (ERC-20 代币的手续费用 ETH 支付)
	// 为空表示手续费与自身同币种
	L1Chain string
	// ContractAddress ERC-20 代币的合约地址，其余资产为空
	ContractAddress string
}

// Supported currencies.
// 新增资产时在这里注册即可，engine 层通过 Currency 值做类型安全的金额运算
var (
	BTC  = Currency{Code: "BTC", Precision: 8}
	BCH  = Currency{Code: "BCH", Precision: 8}
	ETH  = Currency{Code: "ETH", Precision: 18}
	USDT = Currency{
		Code: "USDT", Precision: 6, L1Chain: "ETH",
		ContractAddress: "0xdAC17F958D2ee523a2206206994597C13D831ec7",
	}

	EUR = Currency{Code: "EUR", Precision: 2, IsFiat: true}
	GBP = Currency{Code: "GBP", Precision: 2, IsFiat: true}
	USD = Currency{Code: "USD", Precision: 2, IsFiat: true}
)

var registry = map[string]Currency{
	"BTC":  BTC,
	"BCH":  BCH,
	"ETH":  ETH,
	"USDT": USDT,
	"EUR":  EUR,
	"GBP":  GBP,
	"USD":  USD,
}

// FromCode 按代码查找已注册的币种
func FromCode(code string) (Currency, bool) {
	c, ok := registry[code]
	return c, ok
}

// IsErc20 判断是否为 ERC-20 代币 (手续费链为 ETH 且自身不是 ETH)
func (c Currency) IsErc20() bool {
	return c.L1Chain == "ETH" && c.Code != "ETH"
}

// FeeCurrency 返回手续费币种 (ERC-20 返回 ETH，其余返回自身)
func (c Currency) FeeCurrency() Currency {
	if c.L1Chain == "" {
		return c
	}
	fee, ok := FromCode(c.L1Chain)
	if !ok {
		panic("money: unregistered L1 chain " + c.L1Chain)
	}
	return fee
}
