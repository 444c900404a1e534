// Package store 提供基于 GORM 的持久化实现
package store

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"coincore/internal/coincore"
	"coincore/internal/model"
	"coincore/pkg/errno"
)

// TransactionStore 交易记录存储
// 实现 coincore.ExecutionRecorder
type TransactionStore struct {
	db *gorm.DB
}

func NewTransactionStore(db *gorm.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// RecordExecution 落库一笔已执行交易
func (s *TransactionStore) RecordExecution(ctx context.Context, rec coincore.ExecutionRecord) error {
	amount, err := parseAmount(rec.Amount)
	if err != nil {
		return err
	}
	fee, err := parseAmount(rec.Fee)
	if err != nil {
		return err
	}

	row := model.Transaction{
		TxID:             rec.TxID,
		Asset:            rec.Asset,
		Action:           string(rec.Action),
		Amount:           amount,
		Fee:              fee,
		Source:           rec.Source,
		Target:           rec.Target,
		AuthorisationURL: rec.AuthorisationURL,
		ExecutedAt:       rec.ExecutedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errno.ErrDatabase
	}
	return nil
}

// parseAmount ExecutionRecord 里的金额是 "<major> <code>" 格式
func parseAmount(s string) (decimal.Decimal, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return decimal.NewFromString(s[:i])
		}
	}
	return decimal.NewFromString(s)
}

// ListByAsset 查询某资产最近的交易记录
func (s *TransactionStore) ListByAsset(ctx context.Context, asset string, limit int) ([]model.Transaction, error) {
	var rows []model.Transaction
	q := s.db.WithContext(ctx).Order("executed_at DESC").Limit(limit)
	if asset != "" {
		q = q.Where("asset = ?", asset)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, errno.ErrDatabase
	}
	return rows, nil
}

// RecordInvoicePayment 记录一次发票支付提交
func (s *TransactionStore) RecordInvoicePayment(ctx context.Context, invoiceID, merchant, chain, txHash string) error {
	row := model.InvoicePayment{
		InvoiceID: invoiceID,
		Merchant:  merchant,
		Chain:     chain,
		TxHash:    txHash,
		Status:    "submitted",
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errno.ErrDatabase
	}
	return nil
}
