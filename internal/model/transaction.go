package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction 已执行交易记录表
type Transaction struct {
	ID               uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TxID             string          `gorm:"type:varchar(255);uniqueIndex:idx_txid" json:"tx_id"`
	Asset            string          `gorm:"type:varchar(20);not null;index" json:"asset"`
	Action           string          `gorm:"type:varchar(32);not null;index" json:"action"` // send, sell, fiat_deposit...
	Amount           decimal.Decimal `gorm:"type:decimal(32,18);not null" json:"amount"`
	Fee              decimal.Decimal `gorm:"type:decimal(32,18);not null" json:"fee"`
	Source           string          `gorm:"type:varchar(255);not null" json:"source"`
	Target           string          `gorm:"type:varchar(255);not null" json:"target"`
	AuthorisationURL string          `gorm:"type:text" json:"authorisation_url,omitempty"` // open banking 入金待授权
	ExecutedAt       time.Time       `gorm:"not null;index" json:"executed_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// InvoicePayment 商户发票支付记录表
type InvoicePayment struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	InvoiceID string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_invoice" json:"invoice_id"`
	Merchant  string    `gorm:"type:varchar(255)" json:"merchant"`
	Chain     string    `gorm:"type:varchar(20);not null" json:"chain"`
	TxHash    string    `gorm:"type:varchar(255)" json:"tx_hash"`
	Status    string    `gorm:"type:varchar(20);not null;default:'submitted'" json:"status"` // submitted, confirmed, failed
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (InvoicePayment) TableName() string {
	return "invoice_payments"
}
