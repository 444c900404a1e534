// Package service 承载 HTTP 层之下的业务编排
package service

import (
	"context"
	"sync"

	"coincore/internal/coincore"
	"coincore/pkg/errno"
	"coincore/pkg/money"
	"coincore/pkg/safe_random"
)

// flowIDBytes 流程 ID 的随机字节数 (hex 后 32 字符)
const flowIDBytes = 16

// TxFlowService 管理进行中的交易流程
// 每个流程一个 TransactionProcessor，以随机 ID 对外引用
type TxFlowService struct {
	core *coincore.Coincore

	mu    sync.RWMutex
	flows map[string]*coincore.TransactionProcessor
}

func NewTxFlowService(core *coincore.Coincore) *TxFlowService {
	return &TxFlowService{
		core:  core,
		flows: make(map[string]*coincore.TransactionProcessor),
	}
}

// Snapshot 对外暴露的 PendingTx 视图
type Snapshot struct {
	FlowID          string                         `json:"flow_id"`
	ValidationState string                         `json:"validation_state"`
	Amount          string                         `json:"amount"`
	Available       string                         `json:"available"`
	Fee             string                         `json:"fee"`
	FeeLevel        string                         `json:"fee_level"`
	MinLimit        string                         `json:"min_limit,omitempty"`
	MaxLimit        string                         `json:"max_limit,omitempty"`
	Confirmations   []coincore.TxConfirmationValue `json:"confirmations,omitempty"`
}

func (s *TxFlowService) snapshot(id string, ptx coincore.PendingTx) Snapshot {
	snap := Snapshot{
		FlowID:          id,
		ValidationState: ptx.ValidationState.String(),
		Amount:          ptx.Amount.String(),
		Available:       ptx.AvailableBalance.String(),
		Fee:             ptx.FeeAmount.String(),
		FeeLevel:        ptx.FeeSelection.SelectedLevel.String(),
		Confirmations:   ptx.Confirmations,
	}
	if ptx.MinLimit != nil {
		snap.MinLimit = ptx.MinLimit.String()
	}
	if ptx.MaxLimit != nil {
		snap.MaxLimit = ptx.MaxLimit.String()
	}
	return snap
}

// CreateFlow 建立流程并完成初始化
func (s *TxFlowService) CreateFlow(ctx context.Context, sourceAsset, sourceAddress, targetAddress string, action coincore.AssetAction) (Snapshot, error) {
	asset, ok := money.FromCode(sourceAsset)
	if !ok {
		return Snapshot{}, errno.ErrAccountNotFound
	}

	source, err := s.core.FindAccountByAddress(ctx, asset, sourceAddress)
	if err != nil {
		return Snapshot{}, err
	}

	target, err := s.resolveTarget(ctx, source, targetAddress, action)
	if err != nil {
		return Snapshot{}, err
	}

	proc, err := s.core.CreateTransactionProcessor(source, target, action)
	if err != nil {
		return Snapshot{}, err
	}

	ptx, err := proc.Initialise(ctx)
	if err != nil {
		proc.Close()
		return Snapshot{}, err
	}

	id, err := safe_random.GenerateRandomHexString(flowIDBytes)
	if err != nil {
		proc.Close()
		return Snapshot{}, err
	}

	s.mu.Lock()
	s.flows[id] = proc
	s.mu.Unlock()

	return s.snapshot(id, ptx), nil
}

// resolveTarget 优先按地址解析，解析不出来时按账户地址查找
func (s *TxFlowService) resolveTarget(ctx context.Context, source coincore.BlockchainAccount, targetAddress string, action coincore.AssetAction) (coincore.TransactionTarget, error) {
	// 卖出 / 法币入金的目标是账户而不是地址
	if action == coincore.ActionSell || action == coincore.ActionFiatDeposit || action == coincore.ActionInterestDeposit {
		targets, err := s.core.TransactionTargets(ctx, source, action)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			if t.Label() == targetAddress {
				return t, nil
			}
		}
		// interest_deposit 的目标不在 TransactionTargets 过滤器覆盖内，按标签全局找
		all, err := s.core.AllWallets(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range all {
			if t.Label() == targetAddress {
				return t, nil
			}
		}
		return nil, errno.ErrTargetNotFound
	}

	if target, ok := s.core.ParseAddress(targetAddress); ok {
		return target, nil
	}
	return nil, errno.ErrTargetNotFound
}

func (s *TxFlowService) flow(id string) (*coincore.TransactionProcessor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	proc, ok := s.flows[id]
	if !ok {
		return nil, errno.ErrFlowNotFound
	}
	return proc, nil
}

// UpdateAmount 更新流程金额 (最小单位十进制字符串)
func (s *TxFlowService) UpdateAmount(ctx context.Context, id, assetCode, minor string) (Snapshot, error) {
	proc, err := s.flow(id)
	if err != nil {
		return Snapshot{}, err
	}
	asset, ok := money.FromCode(assetCode)
	if !ok {
		return Snapshot{}, errno.ErrAccountNotFound
	}
	amount, ok := money.ParseMinor(asset, minor)
	if !ok {
		return Snapshot{}, errno.ErrBind
	}
	ptx, err := proc.UpdateAmount(ctx, amount)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(id, ptx), nil
}

// UpdateFeeLevel 切换费档
func (s *TxFlowService) UpdateFeeLevel(ctx context.Context, id string, level coincore.FeeLevel, customAmount int64) (Snapshot, error) {
	proc, err := s.flow(id)
	if err != nil {
		return Snapshot{}, err
	}
	ptx, err := proc.UpdateFeeLevel(ctx, level, customAmount)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(id, ptx), nil
}

// BuildConfirmations 生成确认列表
func (s *TxFlowService) BuildConfirmations(ctx context.Context, id string) (Snapshot, error) {
	proc, err := s.flow(id)
	if err != nil {
		return Snapshot{}, err
	}
	ptx, err := proc.BuildConfirmations(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(id, ptx), nil
}

// AcceptOption 用户勾选/取消一个布尔确认项
func (s *TxFlowService) AcceptOption(ctx context.Context, id string, kind coincore.TxConfirmation, accepted bool) (Snapshot, error) {
	proc, err := s.flow(id)
	if err != nil {
		return Snapshot{}, err
	}
	current, ok := proc.PendingTx().GetConfirmation(kind)
	if !ok {
		return Snapshot{}, errno.ErrBind
	}
	opt, ok := current.(coincore.ConfirmationOption)
	if !ok {
		return Snapshot{}, errno.ErrBind
	}
	opt.Accepted = accepted

	ptx, err := proc.UpdateOption(ctx, opt)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(id, ptx), nil
}

// Validate 完整校验
func (s *TxFlowService) Validate(ctx context.Context, id string) (Snapshot, error) {
	proc, err := s.flow(id)
	if err != nil {
		return Snapshot{}, err
	}
	ptx, err := proc.ValidateAll(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(id, ptx), nil
}

// ExecutionView 执行结果视图
type ExecutionView struct {
	TxID             string `json:"tx_id,omitempty"`
	Amount           string `json:"amount"`
	NeedsApproval    bool   `json:"needs_approval"`
	AuthorisationURL string `json:"authorisation_url,omitempty"`
}

// Execute 执行流程，成功后流程保留 (幂等保护在处理器内)
func (s *TxFlowService) Execute(ctx context.Context, id, secondPassword string) (ExecutionView, error) {
	proc, err := s.flow(id)
	if err != nil {
		return ExecutionView{}, err
	}
	result, err := proc.Execute(ctx, secondPassword)
	if err != nil {
		return ExecutionView{}, err
	}

	view := ExecutionView{Amount: result.ResultAmount().String()}
	switch r := result.(type) {
	case coincore.HashedTxResult:
		view.TxID = r.TxID
	case coincore.NeedsApprovalResult:
		view.TxID = r.PaymentID
		view.NeedsApproval = true
		view.AuthorisationURL = r.AuthorisationURL
	}
	return view, nil
}

// CloseFlow 放弃流程并释放资源
func (s *TxFlowService) CloseFlow(id string) error {
	s.mu.Lock()
	proc, ok := s.flows[id]
	delete(s.flows, id)
	s.mu.Unlock()

	if !ok {
		return errno.ErrFlowNotFound
	}
	proc.Close()
	return nil
}

// CloseAll 停机时释放所有在途流程
func (s *TxFlowService) CloseAll() {
	s.mu.Lock()
	flows := s.flows
	s.flows = make(map[string]*coincore.TransactionProcessor)
	s.mu.Unlock()

	for _, proc := range flows {
		proc.Close()
	}
}
