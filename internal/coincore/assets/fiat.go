package assets

import (
	"context"

	"coincore/internal/coincore"
	"coincore/pkg/money"
)

// FiatAsset 法币资产模块: 法币钱包 + 已关联的银行账户
type FiatAsset struct {
	fiat     money.Currency
	wallet   *coincore.FiatCustodialAccount
	banks    []*coincore.LinkedBankAccount
	accounts []coincore.BlockchainAccount
}

func NewFiatAsset(fiat money.Currency, wallet *coincore.FiatCustodialAccount, banks ...*coincore.LinkedBankAccount) *FiatAsset {
	a := &FiatAsset{fiat: fiat, wallet: wallet, banks: banks}
	a.accounts = append(a.accounts, wallet)
	for _, b := range banks {
		a.accounts = append(a.accounts, b)
	}
	return a
}

func (a *FiatAsset) Currency() money.Currency { return a.fiat }

func (a *FiatAsset) Init(ctx context.Context) error {
	_, err := a.wallet.Balance(ctx)
	return err
}

func (a *FiatAsset) Accounts(ctx context.Context) ([]coincore.BlockchainAccount, error) {
	return a.accounts, nil
}

// ParseAddress 法币没有链上地址概念
func (a *FiatAsset) ParseAddress(address string) (coincore.TransactionTarget, bool) {
	return nil, false
}
