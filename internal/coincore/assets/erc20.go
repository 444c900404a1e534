package assets

import (
	"context"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"coincore/internal/coincore"
	"coincore/pkg/money"
)

// Erc20Asset ERC-20 代币资产模块
// 地址解析只认 hex 格式；BTC 等其他资产模块先于本模块注册时不受影响，
// 因为 hex 地址不会被 btcutil 解码成功
type Erc20Asset struct {
	token    money.Currency
	accounts []coincore.BlockchainAccount
}

func NewErc20Asset(token money.Currency, accounts ...coincore.BlockchainAccount) *Erc20Asset {
	coincore.EngineCheck(token.IsErc20(), "%s is not an ERC-20 token", token.Code)
	return &Erc20Asset{token: token, accounts: accounts}
}

func (a *Erc20Asset) Currency() money.Currency { return a.token }

func (a *Erc20Asset) Init(ctx context.Context) error {
	return warmBalances(ctx, a.accounts)
}

func (a *Erc20Asset) Accounts(ctx context.Context) ([]coincore.BlockchainAccount, error) {
	return a.accounts, nil
}

func (a *Erc20Asset) ParseAddress(address string) (coincore.TransactionTarget, bool) {
	if !ethcommon.IsHexAddress(address) {
		return nil, false
	}
	// 规范化为 EIP-55 大小写
	checksummed := ethcommon.HexToAddress(address).Hex()
	return &coincore.CryptoAddress{Asset: a.token, Address: checksummed}, true
}
