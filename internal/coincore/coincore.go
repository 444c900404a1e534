// Package coincore 提供多资产钱包的统一交易门面:
// 账户发现、目标过滤、交易流程的创建与驱动
package coincore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"coincore/pkg/errno"
	"coincore/pkg/logger"
	"coincore/pkg/money"
)

// Asset 单一资产模块: 账户发现 + 地址解析
// 每种资产 (BTC/BCH/ERC-20/法币) 各自实现一份，门面按注册顺序聚合
type Asset interface {
	Currency() money.Currency
	// Init 预热资产模块 (余额缓存等)。失败不阻塞其他资产
	Init(ctx context.Context) error
	// Accounts 该资产下的全部账户
	Accounts(ctx context.Context) ([]BlockchainAccount, error)
	// ParseAddress 尝试把字符串解析为本资产的转账目标
	ParseAddress(address string) (TransactionTarget, bool)
}

// EngineFactory 按流程组装交易引擎 (txengine 包提供实现)
type EngineFactory interface {
	Engine(source BlockchainAccount, target TransactionTarget, action AssetAction) (TxEngine, error)
}

// Coincore 是对外的唯一入口
type Coincore struct {
	assets  []Asset
	factory EngineFactory

	recorder ExecutionRecorder
	events   ExecutionEvents

	initOnce sync.Once
	initErr  error
}

func New(factory EngineFactory, assets ...Asset) *Coincore {
	return &Coincore{assets: assets, factory: factory}
}

// WithSinks 注入执行后的落库与广播，透传给每个新建的处理器
func (c *Coincore) WithSinks(recorder ExecutionRecorder, events ExecutionEvents) *Coincore {
	c.recorder = recorder
	c.events = events
	return c
}

// Init 依次预热全部资产模块，只执行一次
// 单个资产失败不中断其余资产，错误聚合后一起返回
func (c *Coincore) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		var errs []error
		for _, a := range c.assets {
			if err := a.Init(ctx); err != nil {
				logger.Error("asset init failed",
					zap.String("asset", a.Currency().Code), zap.Error(err))
				errs = append(errs, fmt.Errorf("init %s: %w", a.Currency().Code, err))
			}
		}
		c.initErr = errors.Join(errs...)
	})
	return c.initErr
}

// Asset 按币种代码查找资产模块
func (c *Coincore) Asset(code string) (Asset, bool) {
	for _, a := range c.assets {
		if a.Currency().Code == code {
			return a, true
		}
	}
	return nil, false
}

// AllWallets 全部资产的全部账户，跳过已归档的
func (c *Coincore) AllWallets(ctx context.Context) ([]BlockchainAccount, error) {
	var out []BlockchainAccount
	for _, a := range c.assets {
		accounts, err := a.Accounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("accounts of %s: %w", a.Currency().Code, err)
		}
		for _, acc := range accounts {
			if acc.IsArchived() {
				continue
			}
			out = append(out, acc)
		}
	}
	return out, nil
}

// AllWalletsWithActions 支持给定动作的账户
func (c *Coincore) AllWalletsWithActions(ctx context.Context, action AssetAction) ([]BlockchainAccount, error) {
	all, err := c.AllWallets(ctx)
	if err != nil {
		return nil, err
	}
	var out []BlockchainAccount
	for _, acc := range all {
		if supportsAction(acc, action) {
			out = append(out, acc)
		}
	}
	return out, nil
}

func supportsAction(acc BlockchainAccount, action AssetAction) bool {
	for _, a := range acc.Actions() {
		if a == action {
			return true
		}
	}
	return false
}

// TransactionTargets 给定来源账户和动作下，合法的目标账户集合
func (c *Coincore) TransactionTargets(ctx context.Context, source BlockchainAccount, action AssetAction) ([]BlockchainAccount, error) {
	all, err := c.AllWallets(ctx)
	if err != nil {
		return nil, err
	}
	var out []BlockchainAccount
	for _, candidate := range all {
		if candidate == source {
			continue
		}
		if isValidTarget(source, candidate, action) {
			out = append(out, candidate)
		}
	}
	return out, nil
}

// isValidTarget 目标过滤规则按动作区分:
// 卖出 -> 法币钱包；兑换 -> 同托管形态的其他币种；
// 发送 -> 同币种非法币账户；利息取出 -> 同币种链上账户
func isValidTarget(source, candidate BlockchainAccount, action AssetAction) bool {
	switch action {
	case ActionSell:
		_, fiat := candidate.(*FiatCustodialAccount)
		return fiat
	case ActionSwap:
		if candidate.Currency().IsFiat {
			return false
		}
		if candidate.Currency().Code == source.Currency().Code {
			return false
		}
		return sameCustody(source, candidate)
	case ActionSend:
		if candidate.Currency().IsFiat {
			return false
		}
		// 生息账户只能走利息存入流程
		if _, interest := candidate.(*InterestAccount); interest {
			return false
		}
		return candidate.Currency().Code == source.Currency().Code
	case ActionInterestWithdraw:
		if _, ok := candidate.(*CryptoNonCustodialAccount); !ok {
			return false
		}
		return candidate.Currency().Code == source.Currency().Code
	default:
		return false
	}
}

// sameCustody 托管账户只和托管账户互换，非托管同理
func sameCustody(a, b BlockchainAccount) bool {
	_, aCustodial := a.(*CustodialTradingAccount)
	_, bCustodial := b.(*CustodialTradingAccount)
	return aCustodial == bCustodial
}

// FindAccountByAddress 在某个资产下按收款地址查找账户
func (c *Coincore) FindAccountByAddress(ctx context.Context, asset money.Currency, address string) (BlockchainAccount, error) {
	module, ok := c.Asset(asset.Code)
	if !ok {
		return nil, errno.ErrAccountNotFound
	}
	accounts, err := module.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, acc := range accounts {
		recv, err := acc.ReceiveAddress(ctx)
		if err != nil {
			continue
		}
		if recv != "" && recv == address {
			return acc, nil
		}
	}
	return nil, errno.ErrAccountNotFound
}

// ParseAddress 让每个资产模块尝试解析，第一个认领的赢
func (c *Coincore) ParseAddress(address string) (TransactionTarget, bool) {
	for _, a := range c.assets {
		if target, ok := a.ParseAddress(address); ok {
			return target, true
		}
	}
	return nil, false
}

// CreateTransactionProcessor 为 (来源, 目标, 动作) 建立交易流程
func (c *Coincore) CreateTransactionProcessor(source BlockchainAccount, target TransactionTarget, action AssetAction) (*TransactionProcessor, error) {
	engine, err := c.factory.Engine(source, target, action)
	if err != nil {
		return nil, err
	}
	return NewTransactionProcessor(engine, source, target, action).
		WithSinks(c.recorder, c.events), nil
}
