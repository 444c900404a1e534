package mq

import (
	"context"
	"encoding/json"
	"time"

	"coincore/internal/coincore"
)

// TopicTxExecuted 交易执行事件主题
const TopicTxExecuted = "coincore_tx_executed"

// executedEvent 交易执行事件的 JSON 载荷
type executedEvent struct {
	TxID             string    `json:"tx_id"`
	Asset            string    `json:"asset"`
	Action           string    `json:"action"`
	Amount           string    `json:"amount"`
	Fee              string    `json:"fee"`
	Source           string    `json:"source"`
	Target           string    `json:"target"`
	AuthorisationURL string    `json:"authorisation_url,omitempty"`
	ExecutedAt       time.Time `json:"executed_at"`
}

// ExecutionPublisher 把已执行交易广播到消息队列
// 实现 coincore.ExecutionEvents
type ExecutionPublisher struct {
	producer Producer
	topic    string
}

func NewExecutionPublisher(producer Producer) *ExecutionPublisher {
	return &ExecutionPublisher{producer: producer, topic: TopicTxExecuted}
}

func (p *ExecutionPublisher) PublishExecuted(ctx context.Context, rec coincore.ExecutionRecord) error {
	payload, err := json.Marshal(executedEvent{
		TxID:             rec.TxID,
		Asset:            rec.Asset,
		Action:           string(rec.Action),
		Amount:           rec.Amount,
		Fee:              rec.Fee,
		Source:           rec.Source,
		Target:           rec.Target,
		AuthorisationURL: rec.AuthorisationURL,
		ExecutedAt:       rec.ExecutedAt,
	})
	if err != nil {
		return err
	}
	// 资产代码作分区键，同一资产的事件保序
	return p.producer.Publish(ctx, p.topic, rec.Asset, payload)
}
