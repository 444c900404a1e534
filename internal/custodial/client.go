// Package custodial 是托管后端的 HTTP 客户端，
// 实现引擎层需要的限额/报价/银行/身份等协作方接口
package custodial

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"coincore/internal/coincore"
	"coincore/pkg/money"
)

// Client 单个 HTTP 客户端承载全部托管侧接口
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e apiError) Error() string {
	return fmt.Sprintf("custodial backend: %s (%s)", e.Message, e.Code)
}

// errCodePendingOrders 后端的挂单上限错误码
const errCodePendingOrders = "PENDING_ORDERS_LIMIT_REACHED"

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
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Code != "" {
			if apiErr.Code == errCodePendingOrders {
				return coincore.ErrPendingOrdersLimitReached
			}
			return apiErr
		}
		return fmt.Errorf("custodial backend: status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// ---- LimitsProvider ----

type limitsDTO struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

func decodeLimits(fiat money.Currency, dto limitsDTO) (coincore.TransferLimits, error) {
	min, ok1 := money.ParseMinor(fiat, dto.Min)
	max, ok2 := money.ParseMinor(fiat, dto.Max)
	if !ok1 || !ok2 {
		return coincore.TransferLimits{}, errors.New("custodial backend: malformed limits")
	}
	return coincore.TransferLimits{Min: min, Max: max}, nil
}

func (c *Client) ProductTransferLimits(ctx context.Context, fiat money.Currency, product string, tier coincore.Tier) (coincore.TransferLimits, error) {
	var dto limitsDTO
	path := fmt.Sprintf("/limits/product?currency=%s&product=%s&tier=%d", fiat.Code, product, tier)
	if err := c.do(ctx, http.MethodGet, path, nil, &dto); err != nil {
		return coincore.TransferLimits{}, err
	}
	return decodeLimits(fiat, dto)
}

func (c *Client) BankTransferLimits(ctx context.Context, fiat money.Currency, onlyEligible bool) (coincore.TransferLimits, error) {
	var dto limitsDTO
	path := fmt.Sprintf("/limits/bank-transfer?currency=%s&eligible=%t", fiat.Code, onlyEligible)
	if err := c.do(ctx, http.MethodGet, path, nil, &dto); err != nil {
		return coincore.TransferLimits{}, err
	}
	return decodeLimits(fiat, dto)
}

// ---- BalanceProvider (托管账户余额) ----

func (c *Client) Balance(ctx context.Context, currency money.Currency) (coincore.AccountBalance, error) {
	var dto struct {
		TotalMinor     string `json:"total_minor"`
		AvailableMinor string `json:"available_minor"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts/balance?currency="+currency.Code, nil, &dto); err != nil {
		return coincore.AccountBalance{}, err
	}
	total, ok1 := money.ParseMinor(currency, dto.TotalMinor)
	available, ok2 := money.ParseMinor(currency, dto.AvailableMinor)
	if !ok1 || !ok2 {
		return coincore.AccountBalance{}, errors.New("custodial backend: malformed balance")
	}
	return coincore.AccountBalance{Total: total, Available: available}, nil
}

// ---- UserIdentity ----

func (c *Client) VerificationTier(ctx context.Context) (coincore.Tier, error) {
	var dto struct {
		Tier int `json:"tier"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/current/tier", nil, &dto); err != nil {
		return 0, err
	}
	return coincore.Tier(dto.Tier), nil
}

// ---- WithdrawLocksProvider ----

func (c *Client) WithdrawLockSeconds(ctx context.Context, paymentMethod string, fiat money.Currency) (int64, error) {
	var dto struct {
		LockSeconds int64 `json:"lock_seconds"`
	}
	path := fmt.Sprintf("/payments/withdrawal-locks?paymentMethod=%s&currency=%s", paymentMethod, fiat.Code)
	if err := c.do(ctx, http.MethodGet, path, nil, &dto); err != nil {
		return 0, err
	}
	return dto.LockSeconds, nil
}

// ---- BankTransferService ----

func (c *Client) StartBankTransfer(ctx context.Context, beneficiaryID string, amount money.Money, callback string) (string, error) {
	body := map[string]interface{}{
		"beneficiary_id": beneficiaryID,
		"amount_minor":   amount.Minor().String(),
		"currency":       amount.Currency().Code,
	}
	if callback != "" {
		body["callback"] = callback
	}
	var dto struct {
		PaymentID string `json:"payment_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/payments/banktransfer", body, &dto); err != nil {
		return "", err
	}
	return dto.PaymentID, nil
}

func (c *Client) BankTransferCharge(ctx context.Context, paymentID string) (coincore.BankTransferDetails, error) {
	var dto struct {
		ID               string `json:"id"`
		AmountMinor      string `json:"amount_minor"`
		Currency         string `json:"currency"`
		AuthorisationURL string `json:"authorisation_url"`
	}
	if err := c.do(ctx, http.MethodGet, "/payments/payment/"+paymentID, nil, &dto); err != nil {
		return coincore.BankTransferDetails{}, err
	}

	details := coincore.BankTransferDetails{ID: dto.ID, AuthorisationURL: dto.AuthorisationURL}
	if fiat, ok := money.FromCode(dto.Currency); ok {
		if amount, ok := money.ParseMinor(fiat, dto.AmountMinor); ok {
			details.Amount = amount
		}
	}
	return details, nil
}

// ---- BankPartnerCallbackProvider ----

// Callback 银行授权完成后的回跳 deep-link
func (c *Client) Callback(partner coincore.BankPartner, action coincore.BankTransferAction) (string, error) {
	switch partner {
	case coincore.BankPartnerYapily:
		return fmt.Sprintf("https://coincore.page.link/obapproval?action=%s", action), nil
	case coincore.BankPartnerYodlee:
		// Yodlee 走站内授权，不需要回跳
		return "", nil
	default:
		return "", fmt.Errorf("custodial backend: unknown bank partner %q", partner)
	}
}

// ---- 银行账户列表 (启动时的账户装配用) ----

type linkedBankDTO struct {
	Label         string `json:"label"`
	Currency      string `json:"currency"`
	AccountNumber string `json:"account_number"`
	AccountType   string `json:"account_type"`
	Partner       string `json:"partner"`
	BeneficiaryID string `json:"beneficiary_id"`
}

func (c *Client) LinkedBanks(ctx context.Context, fiat money.Currency) ([]*coincore.LinkedBankAccount, error) {
	var dtos []linkedBankDTO
	if err := c.do(ctx, http.MethodGet, "/payments/banking-info?currency="+fiat.Code, nil, &dtos); err != nil {
		return nil, err
	}

	banks := make([]*coincore.LinkedBankAccount, 0, len(dtos))
	for _, dto := range dtos {
		banks = append(banks, &coincore.LinkedBankAccount{
			AccountLabel:  dto.Label,
			Fiat:          fiat,
			AccountNumber: dto.AccountNumber,
			AccountType:   dto.AccountType,
			Partner:       coincore.BankPartner(dto.Partner),
			BeneficiaryID: dto.BeneficiaryID,
		})
	}
	return banks, nil
}

// ---- QuoteProvider ----

func (c *Client) PricedQuote(ctx context.Context, pair coincore.CurrencyPair, direction coincore.TransferDirection, amount money.Money) (coincore.PricedQuote, error) {
	var dto struct {
		Rate                 string `json:"rate"`
		SampleDepositAddress string `json:"sample_deposit_address"`
		ExpiresAt            int64  `json:"expires_at_ms"`
	}
	path := fmt.Sprintf("/brokerage/quote?pair=%s-%s&direction=%s", pair.From.Code, pair.To.Code, direction)
	// 按量报价: 金额未输入时拿基准价
	if amount.IsPositive() {
		path += "&amount_minor=" + amount.Minor().String()
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &dto); err != nil {
		return coincore.PricedQuote{}, err
	}

	rate, err := decimal.NewFromString(dto.Rate)
	if err != nil {
		return coincore.PricedQuote{}, fmt.Errorf("custodial backend: malformed rate: %w", err)
	}
	return coincore.PricedQuote{
		Rate:                 rate,
		SampleDepositAddress: dto.SampleDepositAddress,
		ExpiresAt:            time.UnixMilli(dto.ExpiresAt),
	}, nil
}

// ---- MinDepositProvider ----

func (c *Client) MinInterestDeposit(ctx context.Context, fiat money.Currency) (money.Money, error) {
	var dto struct {
		MinMinor string `json:"min_minor"`
	}
	if err := c.do(ctx, http.MethodGet, "/savings/limits?currency="+fiat.Code, nil, &dto); err != nil {
		return money.Money{}, err
	}
	min, ok := money.ParseMinor(fiat, dto.MinMinor)
	if !ok {
		return money.Money{}, errors.New("custodial backend: malformed deposit limit")
	}
	return min, nil
}

// DepositAddress 托管账户 (交易/生息) 的链上入金地址
func (c *Client) DepositAddress(ctx context.Context, product string, currency money.Currency) (string, error) {
	var dto struct {
		Address string `json:"address"`
	}
	path := fmt.Sprintf("/payments/deposit-address?product=%s&currency=%s", product, currency.Code)
	if err := c.do(ctx, http.MethodGet, path, nil, &dto); err != nil {
		return "", err
	}
	if dto.Address == "" {
		return "", errors.New("custodial backend: empty deposit address")
	}
	return dto.Address, nil
}

// ---- rates.Source ----

func (c *Client) FetchRate(ctx context.Context, crypto, fiat money.Currency) (decimal.Decimal, error) {
	var dto struct {
		Price string `json:"price"`
	}
	path := fmt.Sprintf("/price/index?base=%s&quote=%s", crypto.Code, fiat.Code)
	if err := c.do(ctx, http.MethodGet, path, nil, &dto); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(dto.Price)
}
