// Package bitpay 实现商户发票后端的 HTTP 客户端
package bitpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"coincore/pkg/errno"
	"coincore/pkg/logger"
)

// 发票支付协议的两段式提交:
// 先 POST 未签名交易做验签，再 POST 已签名交易完成支付
const (
	contentTypeVerify  = "application/verify-payment"
	contentTypePayment = "application/payment"
)

// Client 为 coincore.InvoiceBackend 的 HTTP 实现
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// paymentBody 验签与提交共用的请求体
type paymentBody struct {
	Chain        string      `json:"chain"`
	Transactions []paymentTx `json:"transactions"`
	Currency     string      `json:"currency"`
}

type paymentTx struct {
	Tx           string `json:"tx"`
	WeightedSize int    `json:"weightedSize"`
}

type paymentResponse struct {
	Memo string `json:"memo"`
	TxID string `json:"txid"`
}

// VerifyPayment 后端验签未签名交易，不通过返回错误
func (c *Client) VerifyPayment(ctx context.Context, invoiceID, chain, txHex string, weight int) error {
	_, err := c.post(ctx, invoiceID, contentTypeVerify, chain, txHex, weight)
	return err
}

// SubmitPayment 提交已签名交易，由后端代为广播，返回交易哈希
func (c *Client) SubmitPayment(ctx context.Context, invoiceID, chain, txHex string, weight int) (string, error) {
	resp, err := c.post(ctx, invoiceID, contentTypePayment, chain, txHex, weight)
	if err != nil {
		return "", err
	}
	return resp.TxID, nil
}

func (c *Client) post(ctx context.Context, invoiceID, contentType, chain, txHex string, weight int) (paymentResponse, error) {
	body, err := json.Marshal(paymentBody{
		Chain:    chain,
		Currency: chain,
		Transactions: []paymentTx{
			{Tx: txHex, WeightedSize: weight},
		},
	})
	if err != nil {
		return paymentResponse{}, err
	}

	url := fmt.Sprintf("%s/i/%s", c.baseURL, invoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return paymentResponse{}, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return paymentResponse{}, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		logger.Warn("invoice backend rejected request",
			zap.String("invoice", invoiceID),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(raw)))
		return paymentResponse{}, errno.ErrInvoiceRejected
	}

	var decoded paymentResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return paymentResponse{}, err
	}
	return decoded, nil
}
