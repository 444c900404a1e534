// Package chain 是钱包守护进程的 HTTP 客户端
// 密钥派生与节点通信都在守护进程里，这里只做费率/余额查询和签名/广播的转发
package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/wire"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"coincore/internal/coincore"
	"coincore/internal/coincore/txengine"
	"coincore/pkg/money"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		var dto struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &dto) == nil && dto.Message != "" {
			return fmt.Errorf("wallet daemon: %s", dto.Message)
		}
		return fmt.Errorf("wallet daemon: status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// ---- coincore.FeeProvider ----

func (c *Client) FeeOptions(ctx context.Context, asset money.Currency) (coincore.FeeOptions, error) {
	var dto struct {
		Regular  int64 `json:"regular"`
		Priority int64 `json:"priority"`
		GasLimit int64 `json:"gas_limit"`
	}
	if err := c.do(ctx, http.MethodGet, "/fees/"+asset.Code, nil, &dto); err != nil {
		return coincore.FeeOptions{}, err
	}
	return coincore.FeeOptions{
		RegularFee:  dto.Regular,
		PriorityFee: dto.Priority,
		GasLimit:    dto.GasLimit,
	}, nil
}

// ---- coincore.BalanceProvider ----

func (c *Client) Balance(ctx context.Context, currency money.Currency) (coincore.AccountBalance, error) {
	var dto struct {
		TotalMinor     string `json:"total_minor"`
		AvailableMinor string `json:"available_minor"`
	}
	if err := c.do(ctx, http.MethodGet, "/balance/"+currency.Code, nil, &dto); err != nil {
		return coincore.AccountBalance{}, err
	}
	total, ok1 := money.ParseMinor(currency, dto.TotalMinor)
	available, ok2 := money.ParseMinor(currency, dto.AvailableMinor)
	if !ok1 || !ok2 {
		return coincore.AccountBalance{}, errors.New("wallet daemon: malformed balance")
	}
	return coincore.AccountBalance{Total: total, Available: available}, nil
}

// ReceiveAddress 当前钱包在该链上的收款地址
func (c *Client) ReceiveAddress(ctx context.Context, asset money.Currency) (string, error) {
	var dto struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, http.MethodGet, "/address/"+asset.Code, nil, &dto); err != nil {
		return "", err
	}
	return dto.Address, nil
}

// ---- txengine.UTXOSigner ----

func (c *Client) Sign(ctx context.Context, unsigned *wire.MsgTx, secondPassword string) (txengine.EngineTransaction, error) {
	var buf bytes.Buffer
	if err := unsigned.Serialize(&buf); err != nil {
		return txengine.EngineTransaction{}, err
	}
	body := map[string]string{
		"unsigned_hex":    hex.EncodeToString(buf.Bytes()),
		"second_password": secondPassword,
	}
	var dto struct {
		Hash      string `json:"hash"`
		SignedHex string `json:"signed_hex"`
		Vsize     int    `json:"vsize"`
	}
	if err := c.do(ctx, http.MethodPost, "/utxo/sign", body, &dto); err != nil {
		return txengine.EngineTransaction{}, err
	}
	return txengine.EngineTransaction{
		Hash:       dto.Hash,
		EncodedMsg: dto.SignedHex,
		MsgSize:    dto.Vsize,
	}, nil
}

func (c *Client) Broadcast(ctx context.Context, tx txengine.EngineTransaction) (string, error) {
	body := map[string]string{"signed_hex": tx.EncodedMsg}
	var dto struct {
		TxID string `json:"txid"`
	}
	if err := c.do(ctx, http.MethodPost, "/utxo/broadcast", body, &dto); err != nil {
		return "", err
	}
	return dto.TxID, nil
}

// ---- txengine.EVMSigner ----

func (c *Client) SignAndBroadcast(ctx context.Context, tx *ethtypes.Transaction, secondPassword string) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	body := map[string]string{
		"unsigned_hex":    hex.EncodeToString(raw),
		"second_password": secondPassword,
	}
	var dto struct {
		TxHash string `json:"tx_hash"`
	}
	if err := c.do(ctx, http.MethodPost, "/evm/send", body, &dto); err != nil {
		return "", err
	}
	return dto.TxHash, nil
}

func (c *Client) Nonce(ctx context.Context, account string) (uint64, error) {
	var dto struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := c.do(ctx, http.MethodGet, "/evm/nonce/"+account, nil, &dto); err != nil {
		return 0, err
	}
	return dto.Nonce, nil
}
