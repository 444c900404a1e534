package txengine

import (
	"context"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"coincore/internal/coincore"
	"coincore/pkg/errno"
	"coincore/pkg/money"
)

// EVMSigner 以太坊侧的签名/广播原语
type EVMSigner interface {
	SignAndBroadcast(ctx context.Context, tx *ethtypes.Transaction, secondPassword string) (string, error)
	// Nonce 下一个可用 nonce
	Nonce(ctx context.Context, account string) (uint64, error)
}

// erc20TransferMethodID transfer(address,uint256) 的 4 字节方法选择器
var erc20TransferMethodID = []byte{0xa9, 0x05, 0x9c, 0xbb}

// Erc20Engine ERC-20 代币转账引擎
// 金额是代币，手续费是 ETH (gasPrice * gasLimit)，两者分别校验:
// 代币不足 -> INSUFFICIENT_FUNDS, ETH 不足 -> INSUFFICIENT_GAS
type Erc20Engine struct {
	coincore.TxEngineBase

	Token money.Currency
	// ContractAddress 代币合约地址
	ContractAddress string
	Fees            coincore.FeeProvider
	Signer          EVMSigner

	feeOptions coincore.FeeOptions
}

func (e *Erc20Engine) AssertInputsValid() {
	coincore.EngineCheck(e.Token.IsErc20(), "%s is not an ERC-20 token", e.Token.Code)

	src, ok := e.SourceAccount().(*coincore.CryptoNonCustodialAccount)
	coincore.EngineCheck(ok, "erc20 engine requires a non-custodial source, got %T", e.SourceAccount())
	coincore.EngineCheck(src.Asset.Code == e.Token.Code,
		"source asset %s does not match token %s", src.Asset.Code, e.Token.Code)

	switch t := e.Target().(type) {
	case *coincore.CryptoAddress:
		coincore.EngineCheck(t.Asset.Code == e.Token.Code, "target asset mismatch: %s", t.Asset.Code)
		coincore.EngineCheck(ethcommon.IsHexAddress(t.Address), "target address %q is not a hex address", t.Address)
	case *coincore.InterestAccount:
		coincore.EngineCheck(t.Asset.Code == e.Token.Code, "interest asset mismatch: %s", t.Asset.Code)
	case *coincore.CustodialTradingAccount:
		coincore.EngineCheck(t.Asset.Code == e.Token.Code, "trading asset mismatch: %s", t.Asset.Code)
		coincore.EngineCheck(ethcommon.IsHexAddress(t.DepositAddress),
			"trading deposit address %q is not a hex address", t.DepositAddress)
	default:
		coincore.EngineCheck(false, "unsupported target type %T", e.Target())
	}
}

// gasCurrency 手续费币种 (ETH)
func (e *Erc20Engine) gasCurrency() money.Currency {
	return e.Token.FeeCurrency()
}

func (e *Erc20Engine) DoInitialiseTx(ctx context.Context) (coincore.PendingTx, error) {
	bal, err := e.SourceAccount().Balance(ctx)
	if err != nil {
		return coincore.PendingTx{}, err
	}
	opts, err := e.Fees.FeeOptions(ctx, e.Token)
	if err != nil {
		return coincore.PendingTx{}, err
	}
	e.feeOptions = opts

	gas := e.gasCurrency()
	fs := coincore.NewFeeSelection().
		WithLevels(coincore.FeeLevelRegular, coincore.FeeLevelRegular, coincore.FeeLevelPriority)
	fs.Asset = &gas

	return coincore.PendingTx{
		Amount:              money.Zero(e.Token),
		TotalBalance:        bal.Total,
		AvailableBalance:    bal.Available,
		FeeForFullAvailable: money.Zero(e.Token),
		FeeAmount:           money.Zero(gas),
		SelectedFiat:        e.UserFiat(),
		FeeSelection:        fs,
		ValidationState:     coincore.Uninitialised,
		EngineState:         map[string]any{},
	}, nil
}

// absoluteGasFee 当前费档的 gas 总费用 (wei)
func (e *Erc20Engine) absoluteGasFee(fs coincore.FeeSelection) money.Money {
	var gasPrice int64
	if fs.SelectedLevel == coincore.FeeLevelPriority {
		gasPrice = e.feeOptions.PriorityFee
	} else {
		gasPrice = e.feeOptions.RegularFee
	}
	fee := new(big.Int).Mul(big.NewInt(gasPrice), big.NewInt(e.feeOptions.GasLimit))
	return money.New(e.gasCurrency(), fee)
}

func (e *Erc20Engine) DoUpdateAmount(ctx context.Context, amount money.Money, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	bal, err := e.SourceAccount().Balance(ctx)
	if err != nil {
		return ptx, err
	}
	// 代币余额不受 gas 影响，gas 在 ETH 侧单独校验
	return ptx.WithAmount(amount).
		WithBalances(bal.Total, bal.Available, money.Zero(e.Token), e.absoluteGasFee(ptx.FeeSelection)), nil
}

func (e *Erc20Engine) DoUpdateFeeLevel(ctx context.Context, ptx coincore.PendingTx, level coincore.FeeLevel, customAmount int64) (coincore.PendingTx, error) {
	if !ptx.FeeSelection.HasLevel(level) {
		return ptx, errno.ErrFeeLevelNotOffered
	}
	fs := ptx.FeeSelection
	fs.SelectedLevel = level
	fs.CustomAmount = customAmount
	out := ptx.WithFeeSelection(fs)
	return out.WithBalances(out.TotalBalance, out.AvailableBalance, out.FeeForFullAvailable, e.absoluteGasFee(fs)), nil
}

func (e *Erc20Engine) DoBuildConfirmations(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	return ptx.WithConfirmations(
		coincore.ConfirmationFrom{Label: e.SourceAccount().Label()},
		coincore.ConfirmationTo{Label: e.Target().TargetLabel(), Action: coincore.ActionSend},
		coincore.ConfirmationAmount{Amount: ptx.Amount},
		coincore.ConfirmationNetworkFee{Fee: ptx.FeeAmount, Asset: e.gasCurrency()},
	), nil
}

func (e *Erc20Engine) DoRefreshConfirmations(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	return e.DoBuildConfirmations(ctx, ptx)
}

func (e *Erc20Engine) DoOptionUpdateRequest(ctx context.Context, ptx coincore.PendingTx, newValue coincore.TxConfirmationValue) (coincore.PendingTx, error) {
	return ptx.AddOrReplaceConfirmation(newValue), nil
}

func (e *Erc20Engine) DoValidateAmount(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	out := validateBalance(ptx)
	if out.ValidationState != coincore.CanExecute {
		return out, nil
	}
	return e.validateGas(ctx, out)
}

// validateGas ETH 余额必须覆盖 gas 费
func (e *Erc20Engine) validateGas(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	src := e.SourceAccount().(*coincore.CryptoNonCustodialAccount)
	gasBal, err := src.GasBalance(ctx)
	if err != nil {
		return ptx, err
	}
	if gasBal.Available.LessThan(ptx.FeeAmount) {
		return ptx.WithValidationState(coincore.InsufficientGas), nil
	}
	return ptx, nil
}

func (e *Erc20Engine) DoValidateAll(ctx context.Context, ptx coincore.PendingTx) (coincore.PendingTx, error) {
	out, err := e.DoValidateAmount(ctx, ptx)
	if err != nil {
		return ptx, err
	}
	if out.ValidationState == coincore.CanExecute && !optionsValid(out) {
		return out.WithValidationState(coincore.OptionInvalid), nil
	}
	return out, nil
}

func (e *Erc20Engine) DoExecute(ctx context.Context, ptx coincore.PendingTx, secondPassword string) (coincore.TxResult, error) {
	src := e.SourceAccount().(*coincore.CryptoNonCustodialAccount)
	nonce, err := e.Signer.Nonce(ctx, src.Address)
	if err != nil {
		return nil, err
	}

	target, err := e.targetAddress()
	if err != nil {
		return nil, err
	}
	data := transferCalldata(target, ptx.Amount.Minor())

	var gasPrice int64
	if ptx.FeeSelection.SelectedLevel == coincore.FeeLevelPriority {
		gasPrice = e.feeOptions.PriorityFee
	} else {
		gasPrice = e.feeOptions.RegularFee
	}

	contract := ethcommon.HexToAddress(e.ContractAddress)
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Value:    big.NewInt(0), // 代币转账 ETH value 恒为 0
		Gas:      uint64(e.feeOptions.GasLimit),
		GasPrice: big.NewInt(gasPrice),
		Data:     data,
	})

	hash, err := e.Signer.SignAndBroadcast(ctx, tx, secondPassword)
	if err != nil {
		return nil, err
	}
	return coincore.HashedTxResult{TxID: hash, Amount: ptx.Amount}, nil
}

func (e *Erc20Engine) DoPostExecute(ctx context.Context, ptx coincore.PendingTx, result coincore.TxResult) (coincore.TxResult, error) {
	return result, e.Target().OnTxCompleted(ctx, result)
}

func (e *Erc20Engine) targetAddress() (string, error) {
	switch t := e.Target().(type) {
	case *coincore.CryptoAddress:
		return t.Address, nil
	case *coincore.InterestAccount:
		return t.Address, nil
	case *coincore.CustodialTradingAccount:
		return t.DepositAddress, nil
	default:
		return "", errno.ErrTargetNotFound
	}
}

// transferCalldata 构造 transfer(address,uint256) 的调用数据
func transferCalldata(to string, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, erc20TransferMethodID...)
	data = append(data, ethcommon.LeftPadBytes(ethcommon.HexToAddress(to).Bytes(), 32)...)
	data = append(data, ethcommon.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}
