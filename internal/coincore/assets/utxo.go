package assets

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"coincore/internal/coincore"
	"coincore/pkg/money"
)

// UTXOAsset BTC/BCH 资产模块
type UTXOAsset struct {
	chain    money.Currency
	params   *chaincfg.Params
	accounts []coincore.BlockchainAccount
}

func NewUTXOAsset(chain money.Currency, params *chaincfg.Params, accounts ...coincore.BlockchainAccount) *UTXOAsset {
	return &UTXOAsset{chain: chain, params: params, accounts: accounts}
}

func (a *UTXOAsset) Currency() money.Currency { return a.chain }

func (a *UTXOAsset) Init(ctx context.Context) error {
	return warmBalances(ctx, a.accounts)
}

func (a *UTXOAsset) Accounts(ctx context.Context) ([]coincore.BlockchainAccount, error) {
	return a.accounts, nil
}

// ParseAddress 能被本链网络参数解码的地址即认领
func (a *UTXOAsset) ParseAddress(address string) (coincore.TransactionTarget, bool) {
	decoded, err := btcutil.DecodeAddress(address, a.params)
	if err != nil || !decoded.IsForNet(a.params) {
		return nil, false
	}
	return &coincore.CryptoAddress{Asset: a.chain, Address: address}, true
}
